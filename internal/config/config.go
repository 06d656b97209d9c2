// Package config loads client settings from an optional YAML file, a .env
// file and BMS_-prefixed environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (BMS_GATEWAY_BASE_URL).
const EnvPrefix = "BMS"

// Storage drivers.
const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config is the resolved configuration.
type Config struct {
	Gateway *Gateway
	Storage *Storage
	Logger  *Logger
	Watch   *Watch
	Sandbox *Sandbox
	Viper   *viper.Viper
}

// Gateway configures the remote backend client.
type Gateway struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// Storage selects where the session is persisted.
type Storage struct {
	Driver      string
	Path        string
	RedisURL    string
	PostgresDSN string
	Namespace   string
}

// Logger config.
type Logger struct {
	Level  string
	Format string
}

// Watch configures `bms donor watch`.
type Watch struct {
	Interval    time.Duration
	MetricsAddr string
	GRPCAddr    string
}

// Sandbox configures the in-process backend server.
type Sandbox struct {
	Addr      string
	JWTSecret string
	Seed      bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.base_url", "http://localhost:8000/api/")
	v.SetDefault("gateway.timeout", "10s")
	v.SetDefault("gateway.rate_per_second", 10)
	v.SetDefault("gateway.burst", 20)

	v.SetDefault("storage.driver", DriverFile)
	v.SetDefault("storage.path", defaultSessionPath())
	v.SetDefault("storage.redis_url", "")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.namespace", "default")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("watch.interval", "30s")
	v.SetDefault("watch.metrics_addr", "")
	v.SetDefault("watch.grpc_addr", "")

	v.SetDefault("sandbox.addr", ":8000")
	v.SetDefault("sandbox.jwt_secret", "")
	v.SetDefault("sandbox.seed", true)
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".bms", "session.json")
	}
	return filepath.Join(home, ".bms", "session.json")
}

// Load reads configPath (may be empty), then .env from the working
// directory, then the environment.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Gateway: getGatewayConfig(v),
		Storage: getStorageConfig(v),
		Logger:  getLoggerConfig(v),
		Watch:   getWatchConfig(v),
		Sandbox: getSandboxConfig(v),
		Viper:   v,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getGatewayConfig(v *viper.Viper) *Gateway {
	return &Gateway{
		BaseURL:       v.GetString("gateway.base_url"),
		Timeout:       v.GetDuration("gateway.timeout"),
		RatePerSecond: v.GetFloat64("gateway.rate_per_second"),
		Burst:         v.GetInt("gateway.burst"),
	}
}

func getStorageConfig(v *viper.Viper) *Storage {
	return &Storage{
		Driver:      strings.ToLower(v.GetString("storage.driver")),
		Path:        v.GetString("storage.path"),
		RedisURL:    v.GetString("storage.redis_url"),
		PostgresDSN: v.GetString("storage.postgres_dsn"),
		Namespace:   v.GetString("storage.namespace"),
	}
}

func getLoggerConfig(v *viper.Viper) *Logger {
	return &Logger{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}
}

func getWatchConfig(v *viper.Viper) *Watch {
	return &Watch{
		Interval:    v.GetDuration("watch.interval"),
		MetricsAddr: v.GetString("watch.metrics_addr"),
		GRPCAddr:    v.GetString("watch.grpc_addr"),
	}
}

func getSandboxConfig(v *viper.Viper) *Sandbox {
	return &Sandbox{
		Addr:      v.GetString("sandbox.addr"),
		JWTSecret: v.GetString("sandbox.jwt_secret"),
		Seed:      v.GetBool("sandbox.seed"),
	}
}

// Validate rejects settings the client cannot start with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Gateway.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("gateway.base_url %q is not an absolute URL", c.Gateway.BaseURL)
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway.timeout must be positive, got %s", c.Gateway.Timeout)
	}
	if c.Gateway.RatePerSecond < 0 || c.Gateway.Burst < 0 {
		return errors.New("gateway rate limit must not be negative")
	}
	switch c.Storage.Driver {
	case DriverFile:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the file driver")
		}
	case DriverMemory:
	case DriverRedis:
		if c.Storage.RedisURL == "" {
			return errors.New("storage.redis_url is required for the redis driver")
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("watch.interval must be positive, got %s", c.Watch.Interval)
	}
	return nil
}
