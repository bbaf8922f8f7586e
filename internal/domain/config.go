package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the complete CLM service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server"`

	// Tier determines which storage, cache and bus backends are used
	Tier Tier `mapstructure:"tier"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	EventBus   EventBusConfig   `mapstructure:"eventBus"`

	// Fiscal engine and background analysis
	Rules  RulesConfig  `mapstructure:"rules"`
	Worker WorkerConfig `mapstructure:"worker"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`

	// CORSOrigins restricts browser origins; empty allows any.
	CORSOrigins []string `mapstructure:"corsOrigins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", s.Port)
	}
	if s.ReadTimeout < 0 || s.WriteTimeout < 0 {
		return errors.New("server timeouts must not be negative")
	}
	return nil
}

// RulesConfig controls extension rule loading.
type RulesConfig struct {
	// PackFile is an optional YAML rule pack loaded at startup,
	// in addition to the rules stored in the repository.
	PackFile string `mapstructure:"packFile"`

	// ReloadInterval re-reads stored rules periodically; zero disables it.
	ReloadInterval time.Duration `mapstructure:"reloadInterval"`
}

// WorkerConfig controls the background alert worker.
type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Tenants to subscribe to. Empty means every tenant.
	Tenants []string `mapstructure:"tenants"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text

	// File enables rotated file output in addition to stdout.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
	Compress   bool   `mapstructure:"compress"`
}

func (l LoggingConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", l.Level)
	}
	switch l.Format {
	case "json", "text", "":
	default:
		return fmt.Errorf("logging.format %q is not one of json, text", l.Format)
	}
	if l.File != "" && l.MaxSizeMB <= 0 {
		return errors.New("logging.maxSizeMB must be positive when logging.file is set")
	}
	return nil
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"serviceName"`
	ExporterType string `mapstructure:"exporterType"` // stdout, otlp
	Endpoint     string `mapstructure:"endpoint"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-memory LRU
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// Validate checks every section of the configuration.
func (c *Config) Validate() error {
	switch c.Tier {
	case TierCommunity, TierPro:
	default:
		return fmt.Errorf("unknown tier %q", c.Tier)
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Repository.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.EventBus.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

func (r RepositoryConfig) Validate() error {
	switch r.Driver {
	case "sqlite":
		if r.SQLitePath == "" {
			return errors.New("repository.sqlitePath is required for the sqlite driver")
		}
	case "postgres":
		if r.PostgresHost == "" || r.PostgresDB == "" {
			return errors.New("repository.postgresHost and repository.postgresDB are required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported repository driver %q", r.Driver)
	}
	return nil
}

func (c CacheConfig) Validate() error {
	switch c.Type {
	case "memory", "none", "":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("cache.redisAddr is required for the redis cache")
		}
	default:
		return fmt.Errorf("unsupported cache type %q", c.Type)
	}
	if c.LocalMaxSize < 0 {
		return errors.New("cache.localMaxSize must not be negative")
	}
	return nil
}

func (e EventBusConfig) Validate() error {
	switch e.Type {
	case "channel":
	case "nats":
		if e.NATSUrl == "" {
			return errors.New("eventBus.natsUrl is required for the nats bus")
		}
	default:
		return fmt.Errorf("unsupported event bus type %q", e.Type)
	}
	return nil
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./clm.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			ContractTTL:  5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Worker: WorkerConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "clm",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "clm",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "clm",
		PostgresSSLMode: "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		ContractTTL:    5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
