package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the configuration.
const (
	DefaultTimeout       = 30 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultKeyPrefix     = "plancontext:"
	DefaultServiceName   = "plancontextd"
	DefaultMCPAddr       = ":8083"
)

// Backend names for ContextStoreConfig.Backend
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Transport names for MCPConfig.Transport
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportNone  = "none"
)

// Config is the root of the YAML configuration file
type Config struct {
	ContextStore ContextStoreConfig `yaml:"context_store"`
	Logging      LoggingConfig      `yaml:"logging"`
	Tracing      TracingConfig      `yaml:"tracing"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	MCP          MCPConfig          `yaml:"mcp"`
}

// ContextStoreConfig controls plan context retention.
type ContextStoreConfig struct {
	// Backend is one of: memory | redis. Default: memory.
	Backend string `yaml:"backend"`

	// DefaultTimeout is applied when activate or extend omit a timeout. Default: 30m.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// SweepInterval is the period between background sweeps. Default: 1m.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// Redis is used when Backend == "redis".
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	URL string `yaml:"url"`

	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`

	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Password returns the Redis password resolved from the environment.
func (r RedisConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// LoggingConfig controls the logger.
type LoggingConfig struct {
	// Level is one of: debug | info | warn | error. Default: info.
	Level string `yaml:"level"`

	// JSON switches console output to JSON lines.
	JSON bool `yaml:"json"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enabled           bool   `yaml:"enabled"`
	ServiceName       string `yaml:"service_name"`
	CollectorEndpoint string `yaml:"collector_endpoint"`
}

// MetricsConfig controls the Prometheus text endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// MCPConfig controls the MCP tool server.
type MCPConfig struct {
	// Transport is one of: stdio | http | none. Default: none.
	Transport string `yaml:"transport"`

	// Addr is the listen address when Transport == "http".
	Addr string `yaml:"addr"`
}

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		ContextStore: ContextStoreConfig{
			Backend:        BackendMemory,
			DefaultTimeout: DefaultTimeout,
			SweepInterval:  DefaultSweepInterval,
			Redis: RedisConfig{
				KeyPrefix: DefaultKeyPrefix,
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			ServiceName: DefaultServiceName,
		},
		MCP: MCPConfig{
			Transport: TransportNone,
			Addr:      DefaultMCPAddr,
		},
	}
}

// Validate checks structural constraints on the configuration.
func Validate(cfg *Config) error {
	cs := cfg.ContextStore
	if cs.DefaultTimeout <= 0 {
		return fmt.Errorf("context_store.default_timeout must be positive, got %s", cs.DefaultTimeout)
	}
	if cs.SweepInterval <= 0 {
		return fmt.Errorf("context_store.sweep_interval must be positive, got %s", cs.SweepInterval)
	}
	switch cs.Backend {
	case BackendMemory:
	case BackendRedis:
		if cs.Redis.URL == "" {
			return fmt.Errorf("context_store.redis.url is required for the redis backend")
		}
	default:
		return fmt.Errorf("context_store.backend %q unknown: want memory|redis", cs.Backend)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q unknown: want debug|info|warn|error", cfg.Logging.Level)
	}

	if cfg.Tracing.Enabled && cfg.Tracing.CollectorEndpoint == "" {
		return fmt.Errorf("tracing.collector_endpoint is required when tracing is enabled")
	}

	switch cfg.MCP.Transport {
	case TransportStdio, TransportNone:
	case TransportHTTP:
		if cfg.MCP.Addr == "" {
			return fmt.Errorf("mcp.addr is required for the http transport")
		}
	default:
		return fmt.Errorf("mcp.transport %q unknown: want stdio|http|none", cfg.MCP.Transport)
	}
	return nil
}
