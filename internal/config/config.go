package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Charger  ChargerConfig `mapstructure:"charger"`
	MQTT     MQTTConfig    `mapstructure:"mqtt"`

	MonitorConfig MonitorConfig `mapstructure:"monitor"`
	Port          uint          `mapstructure:"port"`
	HttpLog       bool          `mapstructure:"http_log"`
}

type ChargerConfig struct {
	// Device is the serial port path (e.g. /dev/ttyUSB0). Ignored when
	// TCPAddress is set.
	Device string `mapstructure:"device"`
	// TCPAddress selects a host:port tunneled serial link instead of a
	// local port.
	TCPAddress        string  `mapstructure:"tcp_address"`
	Baudrate          uint    `mapstructure:"baudrate"`
	SlaveId           uint    `mapstructure:"slave_id"`
	MaxCurrent        uint    `mapstructure:"max_current"`
	PhaseCurrentScale float64 `mapstructure:"phase_current_scale"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
	// IdentityRefreshCron re-reads serial number and firmware on this
	// schedule, catching firmware upgrades without a restart.
	IdentityRefreshCron string `mapstructure:"identity_refresh_cron"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

// validBaudrates are the rates the eMH1 RS485 port supports.
var validBaudrates = map[uint]bool{
	9600:   true,
	19200:  true,
	38400:  true,
	57600:  true,
	115200: true,
}

func CheckBaudrate(baudrate uint) error {
	if !validBaudrates[baudrate] {
		return fmt.Errorf("invalid baudrate %d. must be one of 9600, 19200, 38400, 57600, 115200", baudrate)
	}
	return nil
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
