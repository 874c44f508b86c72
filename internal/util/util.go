package util

import (
	"github.com/xn--nding-jua/mqtt2victron/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		MQTT: config.MQTTConfig{
			Host: "localhost",
			Port: 1883,
		},
		Grid: config.GridMeterConfig{
			Enable:         true,
			Topic:          "meters/grid",
			DeviceInstance: 31,
		},
		PV: config.PVMeterConfig{
			Enable:           true,
			Topic:            "meters/pv",
			DeviceInstance:   32,
			MaxPower:         6000,
			NominalVoltage:   230,
			NominalFrequency: 50,
		},
		Watchdog: config.WatchdogConfig{
			IntervalMillis: 30000,
			StaleMillis:    120000,
		},
		Port: 8080,
	}
}
