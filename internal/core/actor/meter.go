package actor

import (
	"fmt"

	"github.com/xn--nding-jua/mqtt2victron/internal/core/domain"
	"github.com/xn--nding-jua/mqtt2victron/internal/core/meter"
	. "github.com/xn--nding-jua/mqtt2victron/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// MeterActor owns one update coordinator. Its mailbox serializes the
// field-update-and-publish pass: transport goroutines only enqueue
// RawMeasurement messages, the pass itself always runs here.
type MeterActor struct {
	behavior    actor.Behavior
	coordinator *meter.Coordinator
	logger      *zap.Logger
}

func NewMeterActor(coordinator *meter.Coordinator, logger *zap.Logger) *MeterActor {
	act := &MeterActor{
		behavior:    actor.NewBehavior(),
		coordinator: coordinator,
		logger:      ActorLogger(coordinator.ID(), logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *MeterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MeterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("meter started", zap.String("service", state.coordinator.Service().Name()))
	case domain.RawMeasurement:
		// a bad payload aborts this pass only; the service keeps running
		if err := state.coordinator.HandleMessage(msg.Topic, msg.Payload); err != nil {
			state.logger.Warn("measurement dropped", zap.String("topic", msg.Topic), zap.Error(err))
		}
	case domain.ActorHealthRequest:
		state.logger.Debug("meter ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      state.coordinator.ID(),
			Healthy: true,
			State:   "idle",
		})
	case domain.GetMeterValuesRequest:
		state.logger.Debug("meter GetMeterValuesRequest")
		ForRequest(msg).Respond(ctx, state.valuesResponse())
	case domain.GetMeterStatusRequest:
		state.logger.Debug("meter GetMeterStatusRequest")
		ForRequest(msg).Respond(ctx, domain.GetMeterStatusResponse{
			Service:    state.coordinator.ID(),
			LastUpdate: state.coordinator.LastUpdate(),
			Passes:     state.coordinator.Passes(),
		})
	default:
		state.logger.Debug("meter unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MeterActor) valuesResponse() domain.GetMeterValuesResponse {
	svc := state.coordinator.Service()
	values := make(map[string]domain.PathValue)
	for _, path := range svc.Paths() {
		value, err := svc.Get(path)
		if err != nil {
			continue
		}
		text, _ := svc.Text(path)
		values[path] = domain.PathValue{Value: value, Text: text}
	}
	return domain.GetMeterValuesResponse{
		Service:     state.coordinator.ID(),
		ServiceName: svc.Name(),
		Values:      values,
	}
}
