package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/xn--nding-jua/mqtt2victron/internal/adapter/actor"
	"github.com/xn--nding-jua/mqtt2victron/internal/config"
	"github.com/xn--nding-jua/mqtt2victron/internal/core/actor"
	"github.com/xn--nding-jua/mqtt2victron/internal/core/meter"
	"github.com/xn--nding-jua/mqtt2victron/internal/server"
	"github.com/xn--nding-jua/mqtt2victron/internal/util/actorutil"
	"github.com/xn--nding-jua/mqtt2victron/internal/watchdog"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfMetersActor(*cfg, mqttActorProvider(cfg, logger), meterSpecs(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	// stale-data watchdog
	wdCtx, wdCancel := context.WithCancel(context.Background())
	defer wdCancel()
	wd, err := watchdog.NewWatchdog(cfg.Watchdog, ctx, pid, logger)
	if err != nil {
		panic(err)
	}
	if err := wd.Start(wdCtx); err != nil {
		panic(err)
	}
	defer wd.Stop()

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => MQTT2VICTRON_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("MQTT2VICTRON_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("mqtt2victron")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if !cfg.Grid.Enable && !cfg.PV.Enable {
		return nil, errors.New("at least one meter (grid or pv) must be enabled")
	}

	// check and fix meter topic prefixes
	if cfg.Grid.Enable {
		topic, err := config.CheckMQTTTopic(cfg.Grid.Topic)
		if err != nil {
			return nil, errors.New("invalid grid topic. segments can only contain letters, numbers and underscores")
		}
		cfg.Grid.Topic = topic
	}
	if cfg.PV.Enable {
		topic, err := config.CheckMQTTTopic(cfg.PV.Topic)
		if err != nil {
			return nil, errors.New("invalid pv topic. segments can only contain letters, numbers and underscores")
		}
		cfg.PV.Topic = topic
	}
	if cfg.Grid.Enable && cfg.PV.Enable && cfg.Grid.Topic == cfg.PV.Topic {
		return nil, errors.New("grid and pv meters cannot share a topic prefix")
	}

	// check bounds
	if cfg.PV.NominalVoltage <= 0 {
		return nil, errors.New("config param pv.nominal_voltage should be > 0")
	}
	if cfg.PV.NominalFrequency <= 0 {
		return nil, errors.New("config param pv.nominal_frequency should be > 0")
	}
	if cfg.Watchdog.IntervalMillis < 1000 {
		return nil, errors.New("config param watchdog.interval_millis should be >= 1000")
	}
	if cfg.Watchdog.StaleMillis < cfg.Watchdog.IntervalMillis {
		return nil, errors.New("config param watchdog.stale_millis should be >= watchdog.interval_millis")
	}

	return &cfg, nil
}

func meterSpecs(cfg *config.Config, logger *zap.Logger) []actor.MeterSpec {
	var specs []actor.MeterSpec
	if cfg.Grid.Enable {
		gridCfg := cfg.Grid
		specs = append(specs, actor.MeterSpec{
			Service: meter.ServiceGrid,
			Topic:   gridCfg.Topic,
			New: func() *meter.Coordinator {
				c, err := meter.NewGridMeter(gridCfg, logger)
				if err != nil {
					panic(err)
				}
				return c
			},
		})
	}
	if cfg.PV.Enable {
		pvCfg := cfg.PV
		specs = append(specs, actor.MeterSpec{
			Service: meter.ServicePV,
			Topic:   pvCfg.Topic,
			New: func() *meter.Coordinator {
				c, err := meter.NewPVMeter(pvCfg, logger)
				if err != nil {
					panic(err)
				}
				return c
			},
		})
	}
	return specs
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func() *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("grid.enable", false)
	viper.SetDefault("grid.topic", "meters/grid")
	viper.SetDefault("grid.device_instance", 31)
	viper.SetDefault("grid.position", 0)
	viper.SetDefault("pv.enable", false)
	viper.SetDefault("pv.topic", "meters/pv")
	viper.SetDefault("pv.device_instance", 32)
	viper.SetDefault("pv.position", 0)
	viper.SetDefault("pv.max_power", 6000)
	viper.SetDefault("pv.nominal_voltage", 230)
	viper.SetDefault("pv.nominal_frequency", 50)
	viper.SetDefault("watchdog.interval_millis", 30000)
	viper.SetDefault("watchdog.stale_millis", 120000)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
