package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LIGHTBRIDGE_"

// Roster sources.
const (
	RosterConfig   = "config"
	RosterDatabase = "database"
)

// Config is the root configuration structure for the lightbridge daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Devices   []DeviceConfig  `yaml:"devices"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Roster    RosterSettings  `yaml:"roster"`
	Reload    ReloadConfig    `yaml:"reload"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BridgeConfig identifies the bridge and its datagram listener.
type BridgeConfig struct {
	ID             string `yaml:"id" env:"ID"`
	Name           string `yaml:"name" env:"NAME"`
	Host           string `yaml:"host" env:"HOST"`
	Port           int    `yaml:"port" env:"PORT"`
	ResourcePrefix string `yaml:"resource_prefix" env:"RESOURCE_PREFIX"`
	EventBuffer    int    `yaml:"event_buffer" env:"EVENT_BUFFER"`
}

// DeviceConfig declares one bulb.
type DeviceConfig struct {
	ID      string `yaml:"id"`
	Key     string `yaml:"key"`
	IP      string `yaml:"ip"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// TimeoutConfig bounds device round trips, in milliseconds.
type TimeoutConfig struct {
	ConnectMS int `yaml:"connect_ms" env:"CONNECT_MS"`
	RequestMS int `yaml:"request_ms" env:"REQUEST_MS"`
}

// RosterSettings selects where device declarations come from.
type RosterSettings struct {
	Source string `yaml:"source" env:"SOURCE"`
}

// ReloadConfig schedules periodic reloads. An empty schedule disables them.
type ReloadConfig struct {
	Schedule string `yaml:"schedule" env:"SCHEDULE"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path" env:"PATH"`
	WALMode     bool   `yaml:"wal_mode" env:"WAL_MODE"`
	BusyTimeout int    `yaml:"busy_timeout" env:"BUSY_TIMEOUT"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled" env:"ENABLED"`
	Broker      MQTTBrokerConfig    `yaml:"broker" envPrefix:"BROKER_"`
	Auth        MQTTAuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	QoS         int                 `yaml:"qos" env:"QOS"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix" env:"TOPIC_PREFIX"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	TLS      bool   `yaml:"tls" env:"TLS"`
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP facade settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" env:"ENABLED"`
	Host     string           `yaml:"host" env:"HOST"`
	Port     int              `yaml:"port" env:"PORT"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path" env:"PATH"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// DiscoveryConfig controls the mDNS advertisement.
type DiscoveryConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Instance  string `yaml:"instance" env:"INSTANCE"`
	Interface string `yaml:"interface" env:"INTERFACE"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	Output string `yaml:"output" env:"OUTPUT"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LIGHTBRIDGE_SECTION_KEY
// For example: LIGHTBRIDGE_BRIDGE_PORT, LIGHTBRIDGE_MQTT_BROKER_HOST
//
// A missing bridge id is filled with a random UUID after validation, so
// every run without a configured id advertises a fresh identity.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.Bridge.ID == "" {
		cfg.Bridge.ID = uuid.NewString()
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			Name:           "lightbridge",
			Host:           "127.0.0.1",
			Port:           8090,
			ResourcePrefix: "bulb",
			EventBuffer:    256,
		},
		Timeouts: TimeoutConfig{
			ConnectMS: 3000,
			RequestMS: 500,
		},
		Roster: RosterSettings{
			Source: RosterConfig,
		},
		Database: DatabaseConfig{
			Path:        "./data/lightbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lightbridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			TopicPrefix: "lightbridge",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 1337,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies LIGHTBRIDGE_<SECTION>_<KEY> environment
// variables section by section. Unset variables leave the file value
// untouched. The device list is never overridden from the environment.
func applyEnvOverrides(cfg *Config) error {
	sections := []struct {
		prefix string
		target any
	}{
		{"BRIDGE_", &cfg.Bridge},
		{"TIMEOUTS_", &cfg.Timeouts},
		{"ROSTER_", &cfg.Roster},
		{"RELOAD_", &cfg.Reload},
		{"DATABASE_", &cfg.Database},
		{"MQTT_", &cfg.MQTT},
		{"API_", &cfg.API},
		{"WEBSOCKET_", &cfg.WebSocket},
		{"DISCOVERY_", &cfg.Discovery},
		{"LOGGING_", &cfg.Logging},
	}

	for _, s := range sections {
		if err := env.ParseWithOptions(s.target, env.Options{Prefix: EnvPrefix + s.prefix}); err != nil {
			return fmt.Errorf("%s%s*: %w", EnvPrefix, s.prefix, err)
		}
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Every problem is reported, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Bridge.Port < 1 || c.Bridge.Port > 65535 {
		errs = append(errs, errors.New("bridge.port must be between 1 and 65535"))
	}
	if c.Bridge.ResourcePrefix == "" {
		errs = append(errs, errors.New("bridge.resource_prefix is required"))
	}

	if c.Timeouts.ConnectMS <= 0 {
		errs = append(errs, errors.New("timeouts.connect_ms must be positive"))
	}
	if c.Timeouts.RequestMS <= 0 {
		errs = append(errs, errors.New("timeouts.request_ms must be positive"))
	}

	switch c.Roster.Source {
	case RosterConfig:
		seen := make(map[string]bool, len(c.Devices))
		for i, d := range c.Devices {
			if d.ID == "" {
				errs = append(errs, fmt.Errorf("devices[%d].id is required", i))
				continue
			}
			if seen[d.ID] {
				errs = append(errs, fmt.Errorf("devices[%d].id %q is duplicated", i, d.ID))
			}
			seen[d.ID] = true
			if d.IP == "" {
				errs = append(errs, fmt.Errorf("devices[%d].ip is required", i))
			}
			if len(d.Key) != 16 { //nolint:mnd // AES-128 local key
				errs = append(errs, fmt.Errorf("devices[%d].key must be 16 characters", i))
			}
		}
	case RosterDatabase:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for the database roster"))
		}
	default:
		errs = append(errs, fmt.Errorf("roster.source must be %q or %q", RosterConfig, RosterDatabase))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, errors.New("mqtt.qos must be 0, 1, or 2"))
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %w", errors.Join(errs...))
	}

	return nil
}

// BridgeAddress returns host:port of the datagram listener.
func (c *Config) BridgeAddress() string {
	return fmt.Sprintf("%s:%d", c.Bridge.Host, c.Bridge.Port)
}

// APIAddress returns host:port of the HTTP facade.
func (c *Config) APIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// ConnectTimeout returns the device connect timeout as a Duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Timeouts.ConnectMS) * time.Millisecond
}

// RequestTimeout returns the device request timeout as a Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeouts.RequestMS) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
