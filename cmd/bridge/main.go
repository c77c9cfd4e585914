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

	adactor "github.com/matfroh/abl-emh1-modbus/internal/adapter/actor"
	"github.com/matfroh/abl-emh1-modbus/internal/config"
	"github.com/matfroh/abl-emh1-modbus/internal/core/actor"
	"github.com/matfroh/abl-emh1-modbus/internal/server"
	"github.com/matfroh/abl-emh1-modbus/internal/util/actorutil"
	"github.com/matfroh/abl-emh1-modbus/pkg/emh1_modbus"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
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

	// init EVSE actor provider
	evseProv, err := evseActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, evseProv, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

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

	// alias PORT => EMH1_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("EMH1_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("emh1")
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

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.Charger.Device == "" && cfg.Charger.TCPAddress == "" {
		return nil, errors.New("config param charger.device or charger.tcp_address is required")
	}
	if err := config.CheckBaudrate(cfg.Charger.Baudrate); err != nil {
		return nil, err
	}
	if cfg.Charger.SlaveId < 1 || cfg.Charger.SlaveId > emh1_modbus.MaxSlaveID {
		return nil, fmt.Errorf("config param charger.slave_id should be between 1 and %d", emh1_modbus.MaxSlaveID)
	}
	if cfg.Charger.MaxCurrent < emh1_modbus.MinCurrentAmps || cfg.Charger.MaxCurrent > 32 {
		return nil, fmt.Errorf("config param charger.max_current should be between %d and 32", emh1_modbus.MinCurrentAmps)
	}
	if cfg.MonitorConfig.PollIntervalMillis < 1000 {
		return nil, errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}

	return &cfg, nil
}

func evseActorProvider(cfg *config.Config, logger *zap.Logger) (actor.EVSEActorProvider, error) {

	deviceCfg := emh1_modbus.DeviceConfig{
		SlaveID:           uint8(cfg.Charger.SlaveId),
		MaxCurrentAmps:    uint8(cfg.Charger.MaxCurrent),
		PhaseCurrentScale: cfg.Charger.PhaseCurrentScale,
	}

	var device *emh1_modbus.Device
	var err error
	if cfg.Charger.TCPAddress != "" {
		device, err = emh1_modbus.CreateTCPDevice(cfg.Charger.TCPAddress, deviceCfg, logger)
	} else {
		device, err = emh1_modbus.CreateSerialDevice(cfg.Charger.Device, cfg.Charger.Baudrate, deviceCfg, logger)
	}
	if err != nil {
		return nil, err
	}

	return func() *adactor.EVSEActor {
		return adactor.NewEVSEActor(device, logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(stream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, stream, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "evcharger")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("charger.baudrate", 38400)
	viper.SetDefault("charger.slave_id", 1)
	viper.SetDefault("charger.max_current", 16)
	viper.SetDefault("charger.phase_current_scale", 0)
	viper.SetDefault("monitor.poll_interval_millis", 30000)
	viper.SetDefault("monitor.identity_refresh_cron", "")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
