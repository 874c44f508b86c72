package actor

import (
	"fmt"
	"time"

	"github.com/xn--nding-jua/mqtt2victron/internal/config"
	"github.com/xn--nding-jua/mqtt2victron/internal/core/domain"
	"github.com/xn--nding-jua/mqtt2victron/internal/mqtt"
	"github.com/xn--nding-jua/mqtt2victron/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTActor owns the broker connection. Measurements are handed to the
// parent from paho's network goroutine as plain mailbox sends, so the
// meter actors always process them serialized. Connection loss panics
// the actor; the supervisor's exponential backoff is the reconnect
// timer, outside the coordinators' critical path.
type MQTTActor struct {
	config   *config.Config
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   *mqtt.MQTTClient
	prefixes []string
	logger   *zap.Logger
}

type mqttConnected struct {
}

type mqttSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

func NewMQTTActor(config *config.Config, logger *zap.Logger) *MQTTActor {
	var prefixes []string
	if config.Grid.Enable {
		prefixes = append(prefixes, config.Grid.Topic)
	}
	if config.PV.Enable {
		prefixes = append(prefixes, config.PV.Topic)
	}
	act := &MQTTActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		prefixes: prefixes,
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			ctx.Send(ctx.Self(), MQTTConnectionLost{Error: err})
		})

		client := state.client
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskErr(ctx, func() error {
			return client.ConnectSync(10 * time.Second)
		}), func(*any) *any {
			var done any = mqttConnected{}
			return &done
		}).Recover(func(err error) any {
			return MQTTConnectionLost{Error: err}
		}).WithTimeout(15 * time.Second).PipeTo(ctx.Self())

	case mqttConnected:
		state.logger.Debug("mqtt@starting connected")

		client := state.client
		parent := ctx.Parent()
		self := ctx.Self()
		prefixes := state.prefixes
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskErr(ctx, func() error {
			for _, prefix := range prefixes {
				err := client.SubscribeSync(mqtt.MeterSubscriptionTopic(prefix), 0, func(_ pahomqtt.Client, m pahomqtt.Message) {
					ctx.Send(parent, domain.RawMeasurement{Topic: m.Topic(), Payload: m.Payload()})
				}, 5*time.Second)
				if err != nil {
					return err
				}
			}
			return nil
		}), func(*any) *any {
			var done any = mqttSubscribed{}
			return &done
		}).Recover(func(err error) any {
			return MQTTConnectionLost{Error: err}
		}).WithTimeout(30 * time.Second).PipeTo(self)

	case mqttSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed", zap.Strings("prefixes", state.prefixes))
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop()
	case *actor.Stopping:
		state.stop()
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "connected",
		})
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) stop() {
	state.logger.Debug("mqtt: disconnect")
	if state.client != nil {
		state.client.Disconnect(500 * time.Millisecond)
	}
}

// Dummy actor for tests: no broker, accepts everything.
func NewTestMQTTActor(config *config.Config, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:   config,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	}
}
