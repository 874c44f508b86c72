package meter

import (
	"fmt"
	"testing"

	"github.com/xn--nding-jua/mqtt2victron/internal/config"
	"github.com/xn--nding-jua/mqtt2victron/pkg/vedbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGridMeter(t *testing.T, opts ...vedbus.ServiceOption) *Coordinator {
	coord, err := NewGridMeter(config.GridMeterConfig{
		Topic:          "meters/grid",
		DeviceInstance: 31,
	}, zap.NewNop(), opts...)
	require.NoError(t, err)
	return coord
}

func mustGet(t *testing.T, svc *vedbus.Service, path string) any {
	v, err := svc.Get(path)
	require.NoError(t, err)
	return v
}

func mustText(t *testing.T, svc *vedbus.Service, path string) string {
	s, err := svc.Text(path)
	require.NoError(t, err)
	return s
}

func TestGridMeterStaticPaths(t *testing.T) {
	coord := newTestGridMeter(t)
	svc := coord.Service()

	assert.Equal(t, "com.victronenergy.grid.mqtt_grid_31", svc.Name())
	assert.Equal(t, 45069, mustGet(t, svc, "/ProductId"))
	assert.Equal(t, 345, mustGet(t, svc, "/DeviceType"))
	assert.Equal(t, "grid", mustGet(t, svc, "/Role"))
	assert.Equal(t, 1, mustGet(t, svc, "/Connected"))
	assert.Equal(t, "MQTT meters/grid", mustGet(t, svc, "/Mgmt/Connection"))

	// metered paths start invalid
	assert.Nil(t, mustGet(t, svc, "/Ac/Power"))
	assert.Equal(t, "", mustText(t, svc, "/Ac/Power"))
	assert.Equal(t, 0, mustGet(t, svc, UpdateIndexPath))
}

func TestGridMeterAggregatePowerSplit(t *testing.T) {
	coord := newTestGridMeter(t)
	svc := coord.Service()

	require.NoError(t, coord.HandleMessage("meters/grid/power", []byte("900")))

	assert.Equal(t, float64(900), mustGet(t, svc, "/Ac/Power"))
	assert.Equal(t, "900W", mustText(t, svc, "/Ac/Power"))
	for phase := 1; phase <= 3; phase++ {
		assert.Equal(t, float64(300), mustGet(t, svc, fmt.Sprintf("/Ac/L%d/Power", phase)))
		assert.Equal(t, 1.3, mustGet(t, svc, fmt.Sprintf("/Ac/L%d/Current", phase)))
		assert.Equal(t, 230.0, mustGet(t, svc, fmt.Sprintf("/Ac/L%d/Voltage", phase)))
		assert.Equal(t, "230.0V", mustText(t, svc, fmt.Sprintf("/Ac/L%d/Voltage", phase)))
	}
	assert.Equal(t, 1, mustGet(t, svc, UpdateIndexPath))
}

func TestGridMeterDirectPhaseReadingWins(t *testing.T) {
	coord := newTestGridMeter(t)
	svc := coord.Service()

	require.NoError(t, coord.HandleMessage("meters/grid/p_l1", []byte("500")))

	assert.Equal(t, float64(500), mustGet(t, svc, "/Ac/L1/Power"))
	assert.Equal(t, 2.17, mustGet(t, svc, "/Ac/L1/Current"))
	// no aggregate and no readings for the other phases yet
	assert.Nil(t, mustGet(t, svc, "/Ac/Power"))
	assert.Nil(t, mustGet(t, svc, "/Ac/L2/Power"))

	// a later aggregate fills the unmeasured phases but leaves L1 alone
	require.NoError(t, coord.HandleMessage("meters/grid/power", []byte("900")))

	assert.Equal(t, float64(900), mustGet(t, svc, "/Ac/Power"))
	assert.Equal(t, float64(500), mustGet(t, svc, "/Ac/L1/Power"))
	assert.Equal(t, float64(300), mustGet(t, svc, "/Ac/L2/Power"))
	assert.Equal(t, float64(300), mustGet(t, svc, "/Ac/L3/Power"))
	assert.Equal(t, 2, mustGet(t, svc, UpdateIndexPath))
}

func TestGridMeterEnergyCounters(t *testing.T) {
	coord := newTestGridMeter(t)
	svc := coord.Service()

	require.NoError(t, coord.HandleMessage("meters/grid/180", []byte("12345")))
	require.NoError(t, coord.HandleMessage("meters/grid/280", []byte("6789.1")))

	assert.Equal(t, 12.345, mustGet(t, svc, "/Ac/Energy/Forward"))
	assert.Equal(t, 6.789, mustGet(t, svc, "/Ac/Energy/Reverse"))
	assert.Equal(t, 2, mustGet(t, svc, UpdateIndexPath))
}

func TestGridMeterBadPayload(t *testing.T) {
	coord := newTestGridMeter(t)
	svc := coord.Service()

	require.NoError(t, coord.HandleMessage("meters/grid/power", []byte("900")))
	err := coord.HandleMessage("meters/grid/power", []byte("not-a-number"))
	require.Error(t, err)

	// failed pass leaves everything untouched
	assert.Equal(t, float64(900), mustGet(t, svc, "/Ac/Power"))
	assert.Equal(t, 1, mustGet(t, svc, UpdateIndexPath))
	assert.Equal(t, uint64(1), coord.Passes())
}

func TestGridMeterUnknownSuffixIgnored(t *testing.T) {
	coord := newTestGridMeter(t)
	svc := coord.Service()

	require.NoError(t, coord.HandleMessage("meters/grid/temperature", []byte("21.5")))

	assert.Equal(t, 0, mustGet(t, svc, UpdateIndexPath))
	assert.Equal(t, uint64(0), coord.Passes())
}

func TestGridMeterForeignTopicIgnored(t *testing.T) {
	coord := newTestGridMeter(t)

	require.NoError(t, coord.HandleMessage("other/power", []byte("900")))

	assert.Equal(t, uint64(0), coord.Passes())
	assert.True(t, coord.LastUpdate().IsZero())
}

func TestGridMeterRedeliveryBumpsIndex(t *testing.T) {
	coord := newTestGridMeter(t)
	svc := coord.Service()

	require.NoError(t, coord.HandleMessage("meters/grid/power", []byte("900")))
	require.NoError(t, coord.HandleMessage("meters/grid/power", []byte("900")))

	// identical payloads still count as fresh data
	assert.Equal(t, 2, mustGet(t, svc, UpdateIndexPath))
	assert.Equal(t, uint64(2), coord.Passes())
}

func TestGridMeterUpdateIndexWraps(t *testing.T) {
	coord := newTestGridMeter(t)
	svc := coord.Service()

	for i := 0; i < 300; i++ {
		require.NoError(t, coord.HandleMessage("meters/grid/power", []byte("900")))
	}

	// 255 wraps to 0, so after 300 passes the index is 300 mod 256
	assert.Equal(t, 44, mustGet(t, svc, UpdateIndexPath))
	assert.Equal(t, uint64(300), coord.Passes())
}

func TestGridMeterExternalWriteOverwrittenByNextPass(t *testing.T) {
	coord := newTestGridMeter(t)
	svc := coord.Service()

	require.NoError(t, coord.HandleMessage("meters/grid/power", []byte("900")))

	// writes from the bus are accepted but never fed back
	require.NoError(t, svc.SetExternal("/Ac/Power", float64(0)))
	assert.Equal(t, float64(0), mustGet(t, svc, "/Ac/Power"))

	require.NoError(t, coord.HandleMessage("meters/grid/power", []byte("901")))
	assert.Equal(t, float64(901), mustGet(t, svc, "/Ac/Power"))
}
