// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/spf13/viper"
)

// Chain families understood by the connection layer.
const (
	FamilySubstrate = "substrate"
	FamilyEVM       = "evm"
)

// Backoff strategies for transport redials.
const (
	BackoffExponential = "exponential"
	BackoffConstant    = "constant"
)

// maxSS58Prefix is the largest prefix the SS58 format can encode.
const maxSS58Prefix = 16383

// Config holds all application configuration.
type Config struct {
	App       AppConfig              `mapstructure:"app"`
	Transport TransportConfig        `mapstructure:"transport"`
	Chains    map[string]ChainConfig `mapstructure:"chains"`
	Telemetry TelemetryConfig        `mapstructure:"telemetry"`
	Health    HealthConfig           `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// TransportConfig holds socket settings shared by every chain.
type TransportConfig struct {
	Backoff          string        `mapstructure:"backoff"` // exponential | constant
	InitialBackoff   time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	MaxReconnects    int           `mapstructure:"max_reconnects"` // 0 = infinite
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	PongTimeout      time.Duration `mapstructure:"pong_timeout"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
}

// ChainConfig describes one configured chain.
type ChainConfig struct {
	Endpoint        string            `mapstructure:"endpoint"`
	Family          string            `mapstructure:"family"`
	DisplayName     string            `mapstructure:"display_name"`
	DefaultDecimals *int              `mapstructure:"default_decimals"`
	DefaultSymbol   string            `mapstructure:"default_symbol"`
	DefaultSS58     *uint16           `mapstructure:"default_ss58"`
	Properties      PropertyOverrides `mapstructure:"properties"`
	Methods         map[string]string `mapstructure:"methods"`
	RateLimit       float64           `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	Burst           int               `mapstructure:"burst"`
	Disabled        bool              `mapstructure:"disabled"`
}

// PropertyOverrides replace whatever the node reports.
type PropertyOverrides struct {
	Decimals   *int    `mapstructure:"decimals"`
	Symbol     string  `mapstructure:"symbol"`
	SS58Format *uint16 `mapstructure:"ss58_format"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	Provider       string `mapstructure:"provider"` // zipkin | otlp-grpc | otlp-http | console
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// HealthConfig holds the probe server settings.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("WALLET")
	v.AutomaticEnv()

	// Bind env vars to config keys
	bindEnvVars(v)

	// Set defaults
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "WALLET_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "WALLET_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "WALLET_LOG_LEVEL", "LOG_LEVEL")

	// Transport
	v.BindEnv("transport.backoff", "WALLET_BACKOFF")
	v.BindEnv("transport.max_reconnects", "WALLET_MAX_RECONNECTS")
	v.BindEnv("transport.initial_backoff", "WALLET_INITIAL_BACKOFF")
	v.BindEnv("transport.max_backoff", "WALLET_MAX_BACKOFF")

	// Telemetry
	v.BindEnv("telemetry.enabled", "WALLET_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "WALLET_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.provider", "WALLET_OTEL_PROVIDER")
	v.BindEnv("telemetry.otlp_endpoint", "WALLET_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	// Health
	v.BindEnv("health.enabled", "WALLET_HEALTH_ENABLED")
	v.BindEnv("health.port", "WALLET_HEALTH_PORT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "chain-wallet")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Transport defaults
	v.SetDefault("transport.backoff", BackoffExponential)
	v.SetDefault("transport.initial_backoff", "1s")
	v.SetDefault("transport.max_backoff", "30s")
	v.SetDefault("transport.max_reconnects", 0) // infinite
	v.SetDefault("transport.ping_interval", "30s")
	v.SetDefault("transport.pong_timeout", "10s")
	v.SetDefault("transport.dial_timeout", "15s")
	v.SetDefault("transport.write_timeout", "10s")
	v.SetDefault("transport.max_message_size", 16<<20)
	v.SetDefault("transport.breaker_threshold", 5)
	v.SetDefault("transport.breaker_timeout", "15s")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "chain-wallet")
	v.SetDefault("telemetry.provider", "zipkin")
	v.SetDefault("telemetry.prometheus_port", 9090)

	// Health defaults
	v.SetDefault("health.enabled", true)
	v.SetDefault("health.port", 8081)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}

	switch c.Transport.Backoff {
	case BackoffExponential, BackoffConstant:
	default:
		return fmt.Errorf("invalid transport.backoff: %q", c.Transport.Backoff)
	}
	if c.Transport.MaxReconnects < 0 {
		return fmt.Errorf("transport.max_reconnects cannot be negative")
	}

	for _, id := range c.ChainIDs() {
		if err := c.Chains[id].validate(); err != nil {
			return fmt.Errorf("chains.%s: %w", id, err)
		}
	}
	return nil
}

func (c ChainConfig) validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("endpoint must be ws:// or wss://, got %q", c.Endpoint)
	}

	switch c.Family {
	case FamilySubstrate, FamilyEVM:
	default:
		return fmt.Errorf("unsupported family %q", c.Family)
	}

	if c.DefaultDecimals != nil && *c.DefaultDecimals < 0 {
		return fmt.Errorf("default_decimals cannot be negative")
	}
	if c.Properties.Decimals != nil && *c.Properties.Decimals < 0 {
		return fmt.Errorf("properties.decimals cannot be negative")
	}
	if c.DefaultSS58 != nil && *c.DefaultSS58 > maxSS58Prefix {
		return fmt.Errorf("default_ss58 out of range: %d", *c.DefaultSS58)
	}
	if c.Properties.SS58Format != nil && *c.Properties.SS58Format > maxSS58Prefix {
		return fmt.Errorf("properties.ss58_format out of range: %d", *c.Properties.SS58Format)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}
	return nil
}

// ChainIDs returns the configured chain ids in sorted order.
func (c *Config) ChainIDs() []string {
	ids := make([]string, 0, len(c.Chains))
	for id := range c.Chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EnabledChainIDs returns the ids of chains that are not disabled.
func (c *Config) EnabledChainIDs() []string {
	ids := make([]string, 0, len(c.Chains))
	for _, id := range c.ChainIDs() {
		if !c.Chains[id].Disabled {
			ids = append(ids, id)
		}
	}
	return ids
}
