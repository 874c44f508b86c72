package actor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	adactor "github.com/xn--nding-jua/mqtt2victron/internal/adapter/actor"
	"github.com/xn--nding-jua/mqtt2victron/internal/config"
	"github.com/xn--nding-jua/mqtt2victron/internal/core/domain"
	"github.com/xn--nding-jua/mqtt2victron/internal/core/meter"
	. "github.com/xn--nding-jua/mqtt2victron/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

type MQTTActorProvider func() *adactor.MQTTActor

// MeterSpec describes one hosted meter. New builds a fresh coordinator
// and is called again on restart, so a restarted meter starts from
// unknown fields like a restarted process would.
type MeterSpec struct {
	Service string
	Topic   string
	New     func() *meter.Coordinator
}

type meterRoute struct {
	service string
	prefix  string
	pid     *actor.PID
}

// MasterOfMetersActor supervises the MQTT transport actor and one meter
// actor per configured meter, and routes measurements between them.
type MasterOfMetersActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	mqttActor          *actor.PID
	meters             []meterRoute
	mqttActorProvider  MQTTActorProvider
	meterSpecs         []MeterSpec
	logger             *zap.Logger
}

type healthCheckResult struct {
	healthy        map[string]bool
	expected       int
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterOfMetersActor(config config.Config, mqttActorProvider MQTTActorProvider, meterSpecs []MeterSpec, logger *zap.Logger) *MasterOfMetersActor {
	act := &MasterOfMetersActor{
		config:            config,
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		logger:            ActorLogger(domain.ACTOR_ID_MASTER, logger),
		mqttActorProvider: mqttActorProvider,
		meterSpecs:        meterSpecs,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfMetersActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfMetersActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset(0)

		// start meter children first so measurement routing is ready
		// before the transport subscribes
		for _, spec := range state.meterSpecs {
			pid, err := state.startMeterActor(ctx, spec)
			if err != nil {
				panic(err)
			}
			state.meters = append(state.meters, meterRoute{service: spec.Service, prefix: spec.Topic, pid: pid})
		}

		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfMetersActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.RawMeasurement:
		// route by topic prefix; events for unconfigured prefixes are
		// dropped silently
		if route := state.routeForTopic(msg.Topic); route != nil {
			ctx.Send(route.pid, msg)
		}
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset(1 + len(state.meters))
		state.currentHealthCheck.respondTo = ctx.Sender()

		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		for _, route := range state.meters {
			service := route.service
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(route.pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
				return domain.ActorHealthResponse{
					Id:      service,
					Healthy: false,
				}
			})
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case domain.ListMetersRequest:
		state.logger.Debug("master@default ListMetersRequest")
		resp := domain.ListMetersResponse{}
		for _, route := range state.meters {
			resp.Meters = append(resp.Meters, domain.MeterInfo{
				Service: route.service,
				Topic:   route.prefix,
			})
		}
		ForRequest(msg).Respond(ctx, resp)
	case domain.GetMeterValuesRequest:
		state.logger.Debug("master@default GetMeterValuesRequest", zap.String("service", msg.Service))
		state.forwardToMeter(ctx, msg.Service, msg, func() domain.ActorResponse {
			return domain.GetMeterValuesResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: errors.New("unknown meter service")},
			}
		})
	case domain.GetMeterStatusRequest:
		state.logger.Debug("master@default GetMeterStatusRequest", zap.String("service", msg.Service))
		state.forwardToMeter(ctx, msg.Service, msg, func() domain.ActorResponse {
			return domain.GetMeterStatusResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: errors.New("unknown meter service")},
			}
		})
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("who", msg.Who.GetId()))
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfMetersActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// a silent actor counts as unhealthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			state.currentHealthCheck.healthy[msg.Id] = true
		}
		if state.currentHealthCheck.allReceived() {
			state.currentHealthCheck.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfMetersActor) routeForTopic(topic string) *meterRoute {
	for i := range state.meters {
		if strings.HasPrefix(topic, state.meters[i].prefix+"/") {
			return &state.meters[i]
		}
	}
	return nil
}

func (state *MasterOfMetersActor) forwardToMeter(ctx actor.Context, service string, msg any, notFound func() domain.ActorResponse) {
	replyTo := ctx.Sender()
	for _, route := range state.meters {
		if route.service == service {
			ctx.RequestWithCustomSender(route.pid, msg, replyTo)
			return
		}
	}
	if replyTo != nil {
		ctx.Send(replyTo, notFound())
	}
}

func (state *MasterOfMetersActor) startMeterActor(ctx actor.Context, spec MeterSpec) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		state.logger.Warn("meter actor failure", zap.Any("reason", reason))
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMeterActor(spec.New(), state.logger)
	}, actor.WithSupervisor(supervisor))

	pid, err := ctx.SpawnNamed(props, spec.Service)
	if err != nil {
		return nil, err
	}
	return pid, nil
}

func (state *MasterOfMetersActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider()
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *healthCheckResult) reset(expected int) {
	state.healthy = make(map[string]bool)
	state.expected = expected
	state.checksReceived = 0
	state.respondTo = nil
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.expected
}

func (state *healthCheckResult) allHealthy() bool {
	return len(state.healthy) == state.expected
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
