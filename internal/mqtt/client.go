package mqtt

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/xn--nding-jua/mqtt2victron/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var ErrTimeout = errors.New("mqtt operation timed out")

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("mqtt2victron_%d", rand.Intn(1000))
	}
	opts.SetClientID(clientID)
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	// reconnection is supervised at the actor layer
	opts.SetAutoReconnect(false)

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client: mqtt.NewClient(opts),
		cfg:    cfg.MQTT,
	}
}

type MQTTClient struct {
	client mqtt.Client
	cfg    config.MQTTConfig
}

// MeterSubscriptionTopic is the wildcard subscription covering every
// measurement suffix under a meter's topic prefix.
func MeterSubscriptionTopic(prefix string) string {
	return fmt.Sprintf("%s/#", prefix)
}

// ConnectSync connects and waits up to timeout for the broker handshake.
func (c *MQTTClient) ConnectSync(timeout time.Duration) error {
	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("connect: %w", ErrTimeout)
	}
	return token.Error()
}

// SubscribeSync subscribes and waits up to timeout for the broker ack.
// The handler runs on paho's network goroutine; it must only enqueue.
func (c *MQTTClient) SubscribeSync(topic string, qos byte, handler mqtt.MessageHandler, timeout time.Duration) error {
	token := c.client.Subscribe(topic, qos, handler)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("subscribe %s: %w", topic, ErrTimeout)
	}
	return token.Error()
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}
