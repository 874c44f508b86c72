package actor

import (
	"testing"
	"time"

	adactor "github.com/xn--nding-jua/mqtt2victron/internal/adapter/actor"
	"github.com/xn--nding-jua/mqtt2victron/internal/core/domain"
	"github.com/xn--nding-jua/mqtt2victron/internal/core/meter"
	"github.com/xn--nding-jua/mqtt2victron/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func spawnTestMaster(t *testing.T, as *actor.ActorSystem) *actor.PID {
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	specs := []MeterSpec{
		{
			Service: meter.ServiceGrid,
			Topic:   cfg.Grid.Topic,
			New: func() *meter.Coordinator {
				c, err := meter.NewGridMeter(cfg.Grid, logger)
				require.NoError(t, err)
				return c
			},
		},
		{
			Service: meter.ServicePV,
			Topic:   cfg.PV.Topic,
			New: func() *meter.Coordinator {
				c, err := meter.NewPVMeter(cfg.PV, logger)
				require.NoError(t, err)
				return c
			},
		},
	}

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfMetersActor(cfg, func() *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, logger)
		}, specs, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	require.NoError(t, err)
	return pid
}

func TestMasterActorHealthCheck(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root
	pid := spawnTestMaster(t, as)
	defer as.Shutdown()
	defer context.Stop(pid)

	time.Sleep(500 * time.Millisecond)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)

	assert.True(t, healthResp.Healthy, "healthy is true")
}

func TestMasterActorListMeters(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root
	pid := spawnTestMaster(t, as)
	defer as.Shutdown()
	defer context.Stop(pid)

	res, err := context.RequestFuture(pid, domain.ListMetersRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	list, ok := res.(domain.ListMetersResponse)
	require.True(t, ok)

	require.Len(t, list.Meters, 2)
	assert.Equal(t, meter.ServiceGrid, list.Meters[0].Service)
	assert.Equal(t, "meters/grid", list.Meters[0].Topic)
	assert.Equal(t, meter.ServicePV, list.Meters[1].Service)
}

func TestMasterActorRoutesMeasurements(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root
	pid := spawnTestMaster(t, as)
	defer as.Shutdown()
	defer context.Stop(pid)

	context.Send(pid, domain.RawMeasurement{Topic: "meters/grid/power", Payload: []byte("900")})
	// unconfigured prefix, dropped silently
	context.Send(pid, domain.RawMeasurement{Topic: "meters/heatpump/power", Payload: []byte("250")})

	time.Sleep(500 * time.Millisecond)

	res, err := context.RequestFuture(pid, domain.GetMeterValuesRequest{Service: meter.ServiceGrid}, 10*time.Second).Result()
	require.NoError(t, err)
	values, ok := res.(domain.GetMeterValuesResponse)
	require.True(t, ok)
	require.NoError(t, values.GetResponseError())

	assert.Equal(t, meter.ServiceGrid, values.Service)
	assert.Equal(t, "com.victronenergy.grid.mqtt_grid_31", values.ServiceName)
	assert.Equal(t, float64(900), values.Values["/Ac/Power"].Value)
	assert.Equal(t, "900W", values.Values["/Ac/Power"].Text)
	assert.Equal(t, 1, values.Values["/UpdateIndex"].Value)

	status, err := context.RequestFuture(pid, domain.GetMeterStatusRequest{Service: meter.ServiceGrid}, 10*time.Second).Result()
	require.NoError(t, err)
	statusResp, ok := status.(domain.GetMeterStatusResponse)
	require.True(t, ok)
	assert.Equal(t, uint64(1), statusResp.Passes)
	assert.False(t, statusResp.LastUpdate.IsZero())
}

func TestMasterActorUnknownMeterService(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root
	pid := spawnTestMaster(t, as)
	defer as.Shutdown()
	defer context.Stop(pid)

	res, err := context.RequestFuture(pid, domain.GetMeterValuesRequest{Service: "battery"}, 10*time.Second).Result()
	require.NoError(t, err)
	values, ok := res.(domain.GetMeterValuesResponse)
	require.True(t, ok)
	assert.Error(t, values.GetResponseError())
}
