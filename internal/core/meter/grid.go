package meter

import (
	"fmt"

	"github.com/xn--nding-jua/mqtt2victron/internal/config"
	"github.com/xn--nding-jua/mqtt2victron/pkg/vedbus"

	"go.uber.org/zap"
)

// Grid-side voltage is not measured; the GX display convention assumes
// the nominal European line voltage.
const gridLineVoltage = 230.0

// ET340-compatible identifiers, as used by dbus-cgwacs.
const (
	gridProductID  = 45069
	gridDeviceType = 345
)

// NewGridMeter builds the service model and update coordinator for the
// grid meter variant.
func NewGridMeter(cfg config.GridMeterConfig, logger *zap.Logger, opts ...vedbus.ServiceOption) (*Coordinator, error) {
	svc := vedbus.NewService(fmt.Sprintf("com.victronenergy.grid.mqtt_grid_%d", cfg.DeviceInstance), opts...)

	logger = logger.With(zap.String("meter", ServiceGrid))

	if err := addManagementPaths(svc, cfg.Topic); err != nil {
		return nil, err
	}
	static := []staticPath{
		{"/DeviceInstance", cfg.DeviceInstance, nil},
		{"/ProductId", gridProductID, nil},
		{"/DeviceType", gridDeviceType, nil},
		{"/Role", "grid", nil},
		{"/ProductName", "Grid meter", nil},
		{"/FirmwareVersion", 0.1, nil},
		{"/HardwareVersion", 0, nil},
		{"/Connected", 1, nil},
		{"/Position", cfg.Position, vedbus.Integer},
	}
	if err := addStaticPaths(svc, static); err != nil {
		return nil, err
	}

	metered := []meteredPath{
		{"/Ac/Power", vedbus.Watts},
		{"/Ac/L1/Voltage", vedbus.Volts},
		{"/Ac/L2/Voltage", vedbus.Volts},
		{"/Ac/L3/Voltage", vedbus.Volts},
		{"/Ac/L1/Current", vedbus.Amps},
		{"/Ac/L2/Current", vedbus.Amps},
		{"/Ac/L3/Current", vedbus.Amps},
		{"/Ac/L1/Power", vedbus.Watts},
		{"/Ac/L2/Power", vedbus.Watts},
		{"/Ac/L3/Power", vedbus.Watts},
		// forward = energy bought from the grid, reverse = energy sold
		{"/Ac/Energy/Forward", vedbus.KWh},
		{"/Ac/Energy/Reverse", vedbus.KWh},
	}
	if err := addMeteredPaths(svc, metered, acceptExternalWrite(logger)); err != nil {
		return nil, err
	}
	if err := addUpdateIndexPath(svc, acceptExternalWrite(logger)); err != nil {
		return nil, err
	}

	return NewCoordinator(ServiceGrid, cfg.Topic, gridRoutes(), gridDeriver{}, svc, logger), nil
}

type gridDeriver struct{}

func (gridDeriver) Derive(store *FieldStore) []Update {
	var updates []Update

	if power, ok := store.Get(FieldPower); ok {
		// positive: consumption, negative: feed into grid
		updates = append(updates, Update{Path: "/Ac/Power", Value: power})
	}
	for i, field := range phaseFields {
		phase := i + 1
		if p, ok := store.Get(field); ok {
			updates = append(updates,
				Update{Path: fmt.Sprintf("/Ac/L%d/Power", phase), Value: p},
				Update{Path: fmt.Sprintf("/Ac/L%d/Current", phase), Value: round(p/gridLineVoltage, 2)},
			)
		}
		updates = append(updates, Update{Path: fmt.Sprintf("/Ac/L%d/Voltage", phase), Value: gridLineVoltage})
	}
	if e, ok := store.Get(FieldEnergyForward); ok {
		updates = append(updates, Update{Path: "/Ac/Energy/Forward", Value: e})
	}
	if e, ok := store.Get(FieldEnergyReverse); ok {
		updates = append(updates, Update{Path: "/Ac/Energy/Reverse", Value: e})
	}

	return updates
}
