package util

import (
	"github.com/matfroh/abl-emh1-modbus/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Charger: config.ChargerConfig{
			Device:     "/dev/null",
			Baudrate:   38400,
			SlaveId:    1,
			MaxCurrent: 16,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "evcharger",
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis: 5000,
		},
		Port: 8080,
	}
}
