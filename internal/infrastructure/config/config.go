package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Credential store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config is the root configuration structure for the expo client.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API         APIConfig         `yaml:"api"`
	Realtime    RealtimeConfig    `yaml:"realtime"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Routes      RoutesConfig      `yaml:"routes"`
	Logging     LoggingConfig     `yaml:"logging"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
}

// APIConfig contains settings for the backend REST API.
type APIConfig struct {
	// BaseURL is the API root, e.g. "https://expo.example.com/api".
	BaseURL string `yaml:"base_url"`

	// Timeout bounds every request (seconds).
	Timeout int `yaml:"timeout"`
}

// RealtimeConfig contains settings for the push-event websocket channel.
type RealtimeConfig struct {
	URL            string          `yaml:"url"`
	MaxMessageSize int             `yaml:"max_message_size"`
	PingInterval   int             `yaml:"ping_interval"`
	PongTimeout    int             `yaml:"pong_timeout"`
	Reconnect      ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig contains reconnection backoff settings (seconds).
// MaxAttempts of 0 means retry forever.
type ReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// CredentialsConfig selects where the bearer token is persisted.
type CredentialsConfig struct {
	// Backend is one of "sqlite", "redis" or "memory".
	Backend  string         `yaml:"backend"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RedisConfig contains Redis connection settings for shared-device deployments.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`

	// TTL expires the stored token after this many hours. 0 keeps it until logout.
	TTL int `yaml:"ttl"`
}

// RoutesConfig names the surfaces the authorization gate redirects to.
type RoutesConfig struct {
	Login   string `yaml:"login"`
	Landing string `yaml:"landing"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// InfluxDBConfig contains InfluxDB connection settings for client telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MQTTConfig contains settings for relaying realtime events to a local broker.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
	Reconnect   ReconnectConfig  `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: EXPO_SECTION_KEY
// For example: EXPO_API_BASE_URL, EXPO_DATABASE_PATH
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to defaults (plus environment
// overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		applyEnvOverrides(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validating config: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// Default returns a Config with sensible defaults for a local development backend.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:5000/api",
			Timeout: 15,
		},
		Realtime: RealtimeConfig{
			URL:            "ws://localhost:5000/ws",
			MaxMessageSize: 65536,
			PingInterval:   25,
			PongTimeout:    20,
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     30,
				MaxAttempts:  0,
			},
		},
		Credentials: CredentialsConfig{
			Backend: BackendSQLite,
			Database: DatabaseConfig{
				Path:        "./data/expo-client.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "expo:client",
			},
		},
		Routes: RoutesConfig{
			Login:   "/login",
			Landing: "/dashboard",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "expo-client",
			},
			QoS:         1,
			TopicPrefix: "expo",
			Reconnect: ReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: EXPO_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// API
	if v := os.Getenv("EXPO_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("EXPO_API_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.Timeout = n
		}
	}

	// Realtime
	if v := os.Getenv("EXPO_REALTIME_URL"); v != "" {
		cfg.Realtime.URL = v
	}

	// Credentials
	if v := os.Getenv("EXPO_CREDENTIALS_BACKEND"); v != "" {
		cfg.Credentials.Backend = v
	}
	if v := os.Getenv("EXPO_DATABASE_PATH"); v != "" {
		cfg.Credentials.Database.Path = v
	}
	if v := os.Getenv("EXPO_REDIS_ADDR"); v != "" {
		cfg.Credentials.Redis.Addr = v
	}
	if v := os.Getenv("EXPO_REDIS_PASSWORD"); v != "" {
		cfg.Credentials.Redis.Password = v
	}

	// Logging
	if v := os.Getenv("EXPO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// MQTT
	if v := os.Getenv("EXPO_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("EXPO_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("EXPO_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("EXPO_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported together so a broken file can be
// fixed in one pass.
func (c *Config) Validate() error {
	var errs []string

	// API validation
	if err := validateURL(c.API.BaseURL, "http", "https"); err != nil {
		errs = append(errs, "api.base_url "+err.Error())
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, "api.timeout must be positive")
	}

	// Realtime validation
	if err := validateURL(c.Realtime.URL, "ws", "wss"); err != nil {
		errs = append(errs, "realtime.url "+err.Error())
	}
	if c.Realtime.PingInterval <= 0 {
		errs = append(errs, "realtime.ping_interval must be positive")
	}
	if c.Realtime.Reconnect.InitialDelay <= 0 {
		errs = append(errs, "realtime.reconnect.initial_delay must be positive")
	}
	if c.Realtime.Reconnect.MaxDelay < c.Realtime.Reconnect.InitialDelay {
		errs = append(errs, "realtime.reconnect.max_delay must not be less than initial_delay")
	}

	// Credentials validation
	switch c.Credentials.Backend {
	case BackendSQLite:
		if c.Credentials.Database.Path == "" {
			errs = append(errs, "credentials.database.path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Credentials.Redis.Addr == "" {
			errs = append(errs, "credentials.redis.addr is required for the redis backend")
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("credentials.backend %q must be one of sqlite, redis, memory", c.Credentials.Backend))
	}

	// Routes validation
	if !strings.HasPrefix(c.Routes.Login, "/") {
		errs = append(errs, "routes.login must be an absolute path")
	}
	if !strings.HasPrefix(c.Routes.Landing, "/") {
		errs = append(errs, "routes.landing must be an absolute path")
	}

	// MQTT validation
	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateURL checks raw parses as an absolute URL with one of the given schemes.
func validateURL(raw string, schemes ...string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %w", err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("must use scheme %s", strings.Join(schemes, " or "))
}

// GetAPITimeout returns the per-request API timeout as a Duration.
func (c *Config) GetAPITimeout() time.Duration {
	return time.Duration(c.API.Timeout) * time.Second
}

// GetPingInterval returns the realtime keepalive interval as a Duration.
func (c *Config) GetPingInterval() time.Duration {
	return time.Duration(c.Realtime.PingInterval) * time.Second
}

// GetPongTimeout returns how long to wait for a pong as a Duration.
func (c *Config) GetPongTimeout() time.Duration {
	return time.Duration(c.Realtime.PongTimeout) * time.Second
}
