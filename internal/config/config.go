// Package config loads FlowEngine's runtime configuration via viper from
// built-in defaults, a YAML file, and environment variables, in that order of
// increasing precedence.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the engine process.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Engine        EngineConfig        `mapstructure:"engine"`
	Persistence   PersistenceConfig   `mapstructure:"persistence"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	MessageQueue  MessageQueueConfig  `mapstructure:"message_queue"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	AgentService  AgentServiceConfig  `mapstructure:"agent_service"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type HTTPConfig struct {
	Address string `mapstructure:"address"`
}

// EngineConfig configures the Dispatcher and its workers.
type EngineConfig struct {
	MaxWorkerThreads     int           `mapstructure:"max_worker_threads"`
	MaxConcurrentWorkflows int         `mapstructure:"max_concurrent_workflows"`
	PendingQueueHighWaterMark int      `mapstructure:"pending_queue_high_water_mark"`
	HistoryRetentionSize int           `mapstructure:"history_retention_size"`
	AutoCleanupInterval  time.Duration `mapstructure:"auto_cleanup_interval"`
	ShutdownGracePeriod  time.Duration `mapstructure:"shutdown_grace_period"`
}

// PersistenceConfig configures State Persistence.
type PersistenceConfig struct {
	Directory string `mapstructure:"directory"`
	Backend   string `mapstructure:"backend"` // "filesystem" (default), "postgres", "redis"
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MessageQueueConfig struct {
	URL      string         `mapstructure:"url"`
	Exchange string         `mapstructure:"exchange"`
	Queue    string         `mapstructure:"queue"`
	Enabled  bool           `mapstructure:"enabled"`
}

type ObservabilityConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
	Environment  string `mapstructure:"environment"`
}

// AgentServiceConfig configures the HTTP client used by internal/agentsvc.
type AgentServiceConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	DefaultTimeout     time.Duration `mapstructure:"default_timeout"`
	RateLimitPerSecond float64       `mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
}

// Load reads configuration from config.yaml (optional; searched in ., ./config
// and /etc/flowengine), environment variables, and defaults. Environment
// variables override the file, and the file overrides the defaults.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/flowengine")

	setDefaults()
	bindEnvVars()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "flowengine")
	viper.SetDefault("app.version", "0.1.0")
	viper.SetDefault("app.environment", "development")

	viper.SetDefault("http.address", ":8080")

	viper.SetDefault("engine.max_worker_threads", 4)
	viper.SetDefault("engine.max_concurrent_workflows", 100)
	viper.SetDefault("engine.pending_queue_high_water_mark", 1000)
	viper.SetDefault("engine.history_retention_size", 10000)
	viper.SetDefault("engine.auto_cleanup_interval", "1h")
	viper.SetDefault("engine.shutdown_grace_period", "30s")

	viper.SetDefault("persistence.directory", "./data/executions")
	viper.SetDefault("persistence.backend", "filesystem")

	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	viper.SetDefault("redis.db", 0)

	viper.SetDefault("message_queue.exchange", "flowengine.lifecycle")
	viper.SetDefault("message_queue.queue", "flowengine.lifecycle.events")
	viper.SetDefault("message_queue.enabled", false)

	viper.SetDefault("observability.otlp_endpoint", "http://localhost:4317")
	viper.SetDefault("observability.service_name", "flowengine")
	viper.SetDefault("observability.environment", "development")

	viper.SetDefault("agent_service.base_url", "http://localhost:9090")
	viper.SetDefault("agent_service.default_timeout", "30s")
	viper.SetDefault("agent_service.rate_limit_per_second", 50)
	viper.SetDefault("agent_service.rate_limit_burst", 100)
}

func bindEnvVars() {
	viper.BindEnv("app.environment", "FLOWENGINE_ENV")
	viper.BindEnv("http.address", "HTTP_ADDR")

	viper.BindEnv("engine.max_worker_threads", "ENGINE_MAX_WORKERS")
	viper.BindEnv("engine.max_concurrent_workflows", "ENGINE_MAX_CONCURRENT")

	viper.BindEnv("persistence.directory", "PERSISTENCE_DIR")
	viper.BindEnv("persistence.backend", "PERSISTENCE_BACKEND")

	viper.BindEnv("database.url", "POSTGRES_URL")
	viper.BindEnv("redis.url", "REDIS_URL")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	viper.BindEnv("message_queue.url", "RABBITMQ_URL")

	viper.BindEnv("observability.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	viper.BindEnv("observability.service_name", "OTEL_SERVICE_NAME")

	viper.BindEnv("agent_service.base_url", "AGENT_SERVICE_URL")
}

func validate(cfg *Config) error {
	if cfg.Engine.MaxWorkerThreads <= 0 {
		return fmt.Errorf("engine.max_worker_threads must be greater than 0")
	}
	if cfg.Engine.MaxConcurrentWorkflows <= 0 {
		return fmt.Errorf("engine.max_concurrent_workflows must be greater than 0")
	}
	if cfg.Persistence.Directory == "" {
		return fmt.Errorf("persistence.directory is required")
	}
	switch cfg.Persistence.Backend {
	case "filesystem", "postgres", "redis":
	default:
		return fmt.Errorf("persistence.backend must be one of filesystem|postgres|redis")
	}
	if cfg.Persistence.Backend == "postgres" && cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required when persistence.backend=postgres")
	}
	if cfg.Persistence.Backend == "redis" && cfg.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when persistence.backend=redis")
	}
	return nil
}
