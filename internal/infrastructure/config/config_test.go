package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
bridge:
  id: "bridge-kitchen"
  name: "kitchen"
  port: 9000
devices:
  - id: "bf0123456789abcdef01"
    key: "0123456789abcdef"
    ip: "192.168.1.40"
    name: "pendant"
timeouts:
  request_ms: 750
mqtt:
  enabled: true
  broker:
    host: "broker.local"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.ID != "bridge-kitchen" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "bridge-kitchen")
	}
	if cfg.BridgeAddress() != "127.0.0.1:9000" {
		t.Errorf("BridgeAddress() = %q, want %q", cfg.BridgeAddress(), "127.0.0.1:9000")
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].Name != "pendant" {
		t.Errorf("Devices = %+v, want one pendant", cfg.Devices)
	}
	if cfg.RequestTimeout() != 750*time.Millisecond {
		t.Errorf("RequestTimeout() = %v, want 750ms", cfg.RequestTimeout())
	}
	if cfg.ConnectTimeout() != 3*time.Second {
		t.Errorf("ConnectTimeout() = %v, want default 3s", cfg.ConnectTimeout())
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
}

func TestLoad_GeneratesBridgeID(t *testing.T) {
	cfg, err := Load(writeConfig(t, "bridge:\n  name: \"hall\"\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := uuid.Parse(cfg.Bridge.ID); err != nil {
		t.Errorf("Bridge.ID = %q, want a UUID: %v", cfg.Bridge.ID, err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, `
devices:
  - id: "a"
    key: "short"
`))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"devices[0].ip", "devices[0].key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "bridge:\n  port: 9000\n")
	t.Setenv("LIGHTBRIDGE_BRIDGE_PORT", "9100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bridge.Port != 9100 {
		t.Errorf("Bridge.Port = %d, want 9100", cfg.Bridge.Port)
	}
}

func TestConfig_Validate(t *testing.T) {
	device := DeviceConfig{ID: "a", Key: "0123456789abcdef", IP: "10.0.0.1"}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"valid device", func(c *Config) { c.Devices = []DeviceConfig{device} }, false},
		{"duplicate device", func(c *Config) { c.Devices = []DeviceConfig{device, device} }, true},
		{"device without id", func(c *Config) { c.Devices = []DeviceConfig{{IP: "10.0.0.1"}} }, true},
		{"bridge port low", func(c *Config) { c.Bridge.Port = 0 }, true},
		{"bridge port high", func(c *Config) { c.Bridge.Port = 70000 }, true},
		{"empty prefix", func(c *Config) { c.Bridge.ResourcePrefix = "" }, true},
		{"zero request timeout", func(c *Config) { c.Timeouts.RequestMS = 0 }, true},
		{"zero connect timeout", func(c *Config) { c.Timeouts.ConnectMS = -1 }, true},
		{"unknown roster", func(c *Config) { c.Roster.Source = "ldap" }, true},
		{"database roster", func(c *Config) { c.Roster.Source = RosterDatabase }, false},
		{"database roster without path", func(c *Config) {
			c.Roster.Source = RosterDatabase
			c.Database.Path = ""
		}, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"api port ignored when disabled", func(c *Config) { c.API.Port = 0 }, false},
		{"api port checked when enabled", func(c *Config) {
			c.API.Enabled = true
			c.API.Port = 0
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("LIGHTBRIDGE_BRIDGE_NAME", "porch")
	t.Setenv("LIGHTBRIDGE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("LIGHTBRIDGE_MQTT_BROKER_HOST", "mqtt.example.com")
	t.Setenv("LIGHTBRIDGE_MQTT_AUTH_USERNAME", "testuser")
	t.Setenv("LIGHTBRIDGE_MQTT_AUTH_PASSWORD", "testpass")
	t.Setenv("LIGHTBRIDGE_API_HOST", "192.168.1.1")
	t.Setenv("LIGHTBRIDGE_TIMEOUTS_REQUEST_MS", "250")
	t.Setenv("LIGHTBRIDGE_RELOAD_SCHEDULE", "@every 5m")

	if err := applyEnvOverrides(cfg); err != nil {
		t.Fatalf("applyEnvOverrides() error = %v", err)
	}

	if cfg.Bridge.Name != "porch" {
		t.Errorf("Bridge.Name = %q, want %q", cfg.Bridge.Name, "porch")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.Timeouts.RequestMS != 250 {
		t.Errorf("Timeouts.RequestMS = %d, want 250", cfg.Timeouts.RequestMS)
	}
	if cfg.Reload.Schedule != "@every 5m" {
		t.Errorf("Reload.Schedule = %q, want %q", cfg.Reload.Schedule, "@every 5m")
	}

	// Untouched values keep their defaults.
	if cfg.Bridge.Port != 8090 {
		t.Errorf("Bridge.Port = %d, want 8090", cfg.Bridge.Port)
	}
}

func TestApplyEnvOverrides_InvalidNumber(t *testing.T) {
	t.Setenv("LIGHTBRIDGE_BRIDGE_PORT", "eighty")
	if err := applyEnvOverrides(defaultConfig()); err == nil {
		t.Error("applyEnvOverrides() expected error for non-numeric port")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bridge.Port != 8090 {
		t.Errorf("defaultConfig Bridge.Port = %d, want 8090", cfg.Bridge.Port)
	}
	if cfg.Timeouts.RequestMS != 500 {
		t.Errorf("defaultConfig Timeouts.RequestMS = %d, want 500", cfg.Timeouts.RequestMS)
	}
	if cfg.API.Port != 1337 {
		t.Errorf("defaultConfig API.Port = %d, want 1337", cfg.API.Port)
	}
	if cfg.Roster.Source != RosterConfig {
		t.Errorf("defaultConfig Roster.Source = %q, want %q", cfg.Roster.Source, RosterConfig)
	}
	if cfg.MQTT.TopicPrefix != "lightbridge" {
		t.Errorf("defaultConfig MQTT.TopicPrefix = %q, want lightbridge", cfg.MQTT.TopicPrefix)
	}
}
