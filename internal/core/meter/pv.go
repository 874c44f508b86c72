package meter

import (
	"fmt"

	"github.com/xn--nding-jua/mqtt2victron/internal/config"
	"github.com/xn--nding-jua/mqtt2victron/pkg/vedbus"

	"go.uber.org/zap"
)

// PV inverter status codes shown by the GX (0..6 are startup stages,
// 9 boot loading, 10 error; only these two are reachable here).
const (
	StatusRunning = 7
	StatusStandby = 8
)

// A PV inverter counts as producing above this power.
const runningPowerThreshold = 10.0

// NewPVMeter builds the service model and update coordinator for the
// PV inverter variant. Nominal voltage and frequency from the config
// fill in for measurements that never arrive.
func NewPVMeter(cfg config.PVMeterConfig, logger *zap.Logger, opts ...vedbus.ServiceOption) (*Coordinator, error) {
	svc := vedbus.NewService(fmt.Sprintf("com.victronenergy.pvinverter.mqtt_pv_%d", cfg.DeviceInstance), opts...)

	logger = logger.With(zap.String("meter", ServicePV))

	if err := addManagementPaths(svc, cfg.Topic); err != nil {
		return nil, err
	}
	productName := cfg.DeviceName
	if productName == "" {
		productName = "PV inverter"
	}
	static := []staticPath{
		{"/DeviceInstance", cfg.DeviceInstance, nil},
		{"/ProductId", 0xFFFF, nil},
		{"/ProductName", productName, nil},
		{"/FirmwareVersion", 0.1, nil},
		{"/Connected", 1, nil},
		{"/Latency", 0, nil},
		{"/ErrorCode", 0, nil},
		{"/Position", cfg.Position, vedbus.Integer},
		{"/StatusCode", 0, vedbus.Integer},
		{"/Ac/MaxPower", cfg.MaxPower, vedbus.Watts},
		{"/Ac/Position", cfg.Position, vedbus.Integer},
	}
	if err := addStaticPaths(svc, static); err != nil {
		return nil, err
	}

	metered := []meteredPath{
		{"/Ac/Power", vedbus.Watts},
		{"/Ac/Current", vedbus.Amps},
		{"/Ac/Voltage", vedbus.Volts},
		{"/Ac/Energy/Forward", vedbus.KWh},
		{"/Ac/L1/Power", vedbus.Watts},
		{"/Ac/L1/Current", vedbus.Amps},
		{"/Ac/L1/Voltage", vedbus.Volts},
		{"/Ac/L1/Frequency", vedbus.Hertz},
		{"/Ac/L1/Energy/Forward", vedbus.KWh},
	}
	if err := addMeteredPaths(svc, metered, acceptExternalWrite(logger)); err != nil {
		return nil, err
	}
	if err := addUpdateIndexPath(svc, acceptExternalWrite(logger)); err != nil {
		return nil, err
	}

	deriver := pvDeriver{
		nominalVoltage:   cfg.NominalVoltage,
		nominalFrequency: cfg.NominalFrequency,
	}
	return NewCoordinator(ServicePV, cfg.Topic, pvRoutes(), deriver, svc, logger), nil
}

type pvDeriver struct {
	nominalVoltage   float64
	nominalFrequency float64
}

func (d pvDeriver) Derive(store *FieldStore) []Update {
	var updates []Update

	power, powerKnown := store.Get(FieldPower)
	if powerKnown {
		updates = append(updates,
			Update{Path: "/Ac/Power", Value: power},
			Update{Path: "/Ac/L1/Power", Value: power},
		)
	}

	// measured current wins; otherwise derive it from power over the
	// configured nominal voltage
	if current, ok := store.Get(FieldCurrent); ok {
		updates = append(updates,
			Update{Path: "/Ac/Current", Value: current},
			Update{Path: "/Ac/L1/Current", Value: current},
		)
	} else if powerKnown {
		derived := round(power/d.nominalVoltage, 2)
		updates = append(updates,
			Update{Path: "/Ac/Current", Value: derived},
			Update{Path: "/Ac/L1/Current", Value: derived},
		)
	}

	voltage, ok := store.Get(FieldVoltage)
	if !ok {
		voltage = d.nominalVoltage
	}
	updates = append(updates,
		Update{Path: "/Ac/Voltage", Value: voltage},
		Update{Path: "/Ac/L1/Voltage", Value: voltage},
	)

	frequency, ok := store.Get(FieldFrequency)
	if !ok {
		frequency = d.nominalFrequency
	}
	updates = append(updates, Update{Path: "/Ac/L1/Frequency", Value: frequency})

	// the only field with a hard zero default instead of keep-previous
	forward, ok := store.Get(FieldEnergyForward)
	if !ok {
		forward = 0
	}
	updates = append(updates,
		Update{Path: "/Ac/Energy/Forward", Value: forward},
		Update{Path: "/Ac/L1/Energy/Forward", Value: forward},
	)

	status := StatusStandby
	if powerKnown && power >= runningPowerThreshold {
		status = StatusRunning
	}
	updates = append(updates, Update{Path: "/StatusCode", Value: status, OnlyIfChanged: true})

	return updates
}
