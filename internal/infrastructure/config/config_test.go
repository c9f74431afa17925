package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
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
api:
  base_url: "https://expo.example.com/api"
  timeout: 5
realtime:
  url: "wss://expo.example.com/ws"
credentials:
  backend: "redis"
  redis:
    addr: "cache:6379"
routes:
  login: "/signin"
  landing: "/home"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "https://expo.example.com/api" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "https://expo.example.com/api")
	}
	if cfg.Credentials.Backend != BackendRedis {
		t.Errorf("Credentials.Backend = %q, want %q", cfg.Credentials.Backend, BackendRedis)
	}
	if cfg.Routes.Landing != "/home" {
		t.Errorf("Routes.Landing = %q, want %q", cfg.Routes.Landing, "/home")
	}
	// Unset keys keep their defaults.
	if cfg.Realtime.Reconnect.MaxDelay != 30 {
		t.Errorf("Realtime.Reconnect.MaxDelay = %d, want 30", cfg.Realtime.Reconnect.MaxDelay)
	}
	if got := cfg.GetAPITimeout().Seconds(); got != 5 {
		t.Errorf("GetAPITimeout() = %v, want 5", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	t.Setenv("EXPO_API_BASE_URL", "http://backend:9000/api")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.API.BaseURL != "http://backend:9000/api" {
		t.Errorf("API.BaseURL = %q, want env override", cfg.API.BaseURL)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: "ftp://expo.example.com"
credentials:
  backend: "etcd"
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	// Both problems are reported together.
	for _, want := range []string{"api.base_url", "credentials.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Load() error = %v, want mention of %s", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}, wantErr: false},
		{name: "memory backend", mutate: func(c *Config) { c.Credentials.Backend = BackendMemory }, wantErr: false},
		{name: "missing base url", mutate: func(c *Config) { c.API.BaseURL = "" }, wantErr: true},
		{name: "relative base url", mutate: func(c *Config) { c.API.BaseURL = "/api" }, wantErr: true},
		{name: "http realtime url", mutate: func(c *Config) { c.Realtime.URL = "http://localhost/ws" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.API.Timeout = 0 }, wantErr: true},
		{name: "max delay below initial", mutate: func(c *Config) { c.Realtime.Reconnect.MaxDelay = 0 }, wantErr: true},
		{name: "sqlite without path", mutate: func(c *Config) { c.Credentials.Database.Path = "" }, wantErr: true},
		{
			name: "redis without addr",
			mutate: func(c *Config) {
				c.Credentials.Backend = BackendRedis
				c.Credentials.Redis.Addr = ""
			},
			wantErr: true,
		},
		{name: "relative login route", mutate: func(c *Config) { c.Routes.Login = "login" }, wantErr: true},
		{
			name: "invalid QoS",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
		{name: "invalid QoS ignored when disabled", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: false},
		{
			name: "influxdb enabled without bucket",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
				c.InfluxDB.Org = "expo"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetRealtimeTimeouts(t *testing.T) {
	cfg := &Config{
		Realtime: RealtimeConfig{
			PingInterval: 25,
			PongTimeout:  20,
		},
	}

	if got := cfg.GetPingInterval().Seconds(); got != 25 {
		t.Errorf("GetPingInterval() = %v, want 25", got)
	}
	if got := cfg.GetPongTimeout().Seconds(); got != 20 {
		t.Errorf("GetPongTimeout() = %v, want 20", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("EXPO_API_BASE_URL", "https://api.example.com")
	t.Setenv("EXPO_API_TIMEOUT", "42")
	t.Setenv("EXPO_REALTIME_URL", "wss://api.example.com/ws")
	t.Setenv("EXPO_CREDENTIALS_BACKEND", "redis")
	t.Setenv("EXPO_DATABASE_PATH", "/custom/path.db")
	t.Setenv("EXPO_REDIS_ADDR", "redis:6379")
	t.Setenv("EXPO_MQTT_HOST", "mqtt.example.com")
	t.Setenv("EXPO_MQTT_USERNAME", "testuser")
	t.Setenv("EXPO_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("EXPO_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.API.BaseURL != "https://api.example.com" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "https://api.example.com")
	}
	if cfg.API.Timeout != 42 {
		t.Errorf("API.Timeout = %d, want 42", cfg.API.Timeout)
	}
	if cfg.Realtime.URL != "wss://api.example.com/ws" {
		t.Errorf("Realtime.URL = %q, want %q", cfg.Realtime.URL, "wss://api.example.com/ws")
	}
	if cfg.Credentials.Backend != "redis" {
		t.Errorf("Credentials.Backend = %q, want %q", cfg.Credentials.Backend, "redis")
	}
	if cfg.Credentials.Database.Path != "/custom/path.db" {
		t.Errorf("Credentials.Database.Path = %q, want %q", cfg.Credentials.Database.Path, "/custom/path.db")
	}
	if cfg.Credentials.Redis.Addr != "redis:6379" {
		t.Errorf("Credentials.Redis.Addr = %q, want %q", cfg.Credentials.Redis.Addr, "redis:6379")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestApplyEnvOverrides_BadTimeoutIgnored(t *testing.T) {
	cfg := Default()
	t.Setenv("EXPO_API_TIMEOUT", "soon")

	applyEnvOverrides(cfg)

	if cfg.API.Timeout != 15 {
		t.Errorf("API.Timeout = %d, want default 15", cfg.API.Timeout)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Credentials.Backend != BackendSQLite {
		t.Errorf("Default Credentials.Backend = %q, want %q", cfg.Credentials.Backend, BackendSQLite)
	}
	if cfg.Routes.Login != "/login" || cfg.Routes.Landing != "/dashboard" {
		t.Errorf("Default Routes = %+v, want /login and /dashboard", cfg.Routes)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("Default MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Enabled || cfg.InfluxDB.Enabled {
		t.Error("Default should leave optional sinks disabled")
	}
}
