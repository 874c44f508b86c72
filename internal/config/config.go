package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	MQTT     MQTTConfig `mapstructure:"mqtt"`

	Grid     GridMeterConfig `mapstructure:"grid"`
	PV       PVMeterConfig   `mapstructure:"pv"`
	Watchdog WatchdogConfig  `mapstructure:"watchdog"`
	Port     uint            `mapstructure:"port"`
	HttpLog  bool            `mapstructure:"http_log"`
}

type MQTTConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string `mapstructure:"client_id"`
}

type GridMeterConfig struct {
	Enable         bool
	Topic          string
	DeviceInstance int `mapstructure:"device_instance"`
	Position       int
}

type PVMeterConfig struct {
	Enable           bool
	Topic            string
	DeviceInstance   int     `mapstructure:"device_instance"`
	Position         int     // 0=AC input 1, 1=AC output, 2=AC input 2
	MaxPower         int     `mapstructure:"max_power"`
	NominalVoltage   float64 `mapstructure:"nominal_voltage"`
	NominalFrequency float64 `mapstructure:"nominal_frequency"`
	DeviceName       string  `mapstructure:"device_name"`
}

type WatchdogConfig struct {
	IntervalMillis uint32 `mapstructure:"interval_millis"`
	StaleMillis    uint32 `mapstructure:"stale_millis"`
}

// CheckMQTTTopic validates a meter topic prefix. Prefixes are
// slash-separated segments of letters, numbers and underscores, no
// wildcards and no trailing slash.
func CheckMQTTTopic(topic string) (string, error) {
	lowerTopic := strings.ToLower(strings.TrimSuffix(topic, "/"))
	topicRegexp := regexp.MustCompile("^[a-z0-9_]+(/[a-z0-9_]+)*$")
	matches := topicRegexp.FindAllStringSubmatch(lowerTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. segments can only contain letters, numbers and underscores")
	}
	return lowerTopic, nil
}
