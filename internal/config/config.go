// Package config provides configuration management for eplustv using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort       = 8000
	defaultServerTimeout    = 60 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultMaxOpenConns     = 10
	defaultMaxIdleConns     = 5
	defaultConnMaxIdleTime  = 30 * time.Minute
	defaultIngestInterval   = 4 * time.Hour
	defaultProviderTimeout  = 60 * time.Second
	defaultRefreshInterval  = 30 * time.Minute
	defaultIdleTimeout      = 5 * time.Minute
	defaultReapInterval     = time.Minute
	defaultUpstreamTimeout  = 60 * time.Second
	defaultStartChannel     = 1
	defaultNumChannels      = 200
	defaultLinearStart      = 1000
	defaultRemoteCacheTTL   = time.Minute
	defaultProviderRate     = 2.0
	defaultProviderBurst    = 4
	defaultCircuitThreshold = 5
	defaultCircuitTimeout   = 30 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Remote     RemoteConfig     `mapstructure:"remote"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	Relay      RelayConfig      `mapstructure:"relay"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	BaseURL         string        `mapstructure:"base_url"`
	TLSCertFile     string        `mapstructure:"tls_cert_file"`
	TLSKeyFile      string        `mapstructure:"tls_key_file"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds the local catalog database configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// RemoteConfig holds the shared listing and credential store configuration.
type RemoteConfig struct {
	Driver     string        `mapstructure:"driver"` // supabase, postgres
	URL        string        `mapstructure:"url"`
	ServiceKey string        `mapstructure:"service_key"`
	DSN        string        `mapstructure:"dsn"`
	RedisURL   string        `mapstructure:"redis_url"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// IngestionConfig holds listing ingestion configuration.
type IngestionConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
}

// SchedulingConfig holds the channel pool defaults. The values stored in the
// database take precedence once an operator has changed them.
type SchedulingConfig struct {
	StartChannel      int      `mapstructure:"start_channel"`
	NumChannels       int      `mapstructure:"num_channels"`
	LinearStart       int      `mapstructure:"linear_start"`
	LinearEnabled     bool     `mapstructure:"linear_enabled"`
	ExcludeCategories []string `mapstructure:"exclude_categories"`
	ExcludeTitles     []string `mapstructure:"exclude_titles"`
}

// RelayConfig holds tuner session configuration.
type RelayConfig struct {
	IdleTimeout             time.Duration `mapstructure:"idle_timeout"`
	ReapInterval            time.Duration `mapstructure:"reap_interval"`
	UpstreamTimeout         time.Duration `mapstructure:"upstream_timeout"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
}

// ProvidersConfig holds provider adapter configuration.
type ProvidersConfig struct {
	Enabled         []string      `mapstructure:"enabled"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with EPLUSTV_ and use underscores for nesting.
// Example: EPLUSTV_SERVER_PORT=8000.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/eplustv")
		v.AddConfigPath("$HOME/.eplustv")
	}

	v.SetEnvPrefix("EPLUSTV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// bindLegacyEnv maps the unprefixed variables older deployments use.
func bindLegacyEnv(v *viper.Viper) {
	legacy := map[string]string{
		"server.base_url":      "BASE_URL",
		"server.tls_cert_file": "SSL_CERTIFICATE_PATH",
		"server.tls_key_file":  "SSL_PRIVATEKEY_PATH",
		"remote.url":           "SUPABASE_URL",
		"remote.service_key":   "SUPABASE_SERVICE_KEY",
	}
	for key, env := range legacy {
		if val, ok := os.LookupEnv(env); ok && val != "" {
			v.SetDefault(key, val)
		}
	}
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "eplustv.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Remote store defaults
	v.SetDefault("remote.driver", "supabase")
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.service_key", "")
	v.SetDefault("remote.dsn", "")
	v.SetDefault("remote.redis_url", "")
	v.SetDefault("remote.cache_ttl", defaultRemoteCacheTTL)

	// Ingestion defaults
	v.SetDefault("ingestion.interval", defaultIngestInterval)
	v.SetDefault("ingestion.provider_timeout", defaultProviderTimeout)
	v.SetDefault("ingestion.run_on_start", true)

	// Scheduling defaults
	v.SetDefault("scheduling.start_channel", defaultStartChannel)
	v.SetDefault("scheduling.num_channels", defaultNumChannels)
	v.SetDefault("scheduling.linear_start", defaultLinearStart)
	v.SetDefault("scheduling.linear_enabled", false)
	v.SetDefault("scheduling.exclude_categories", []string{})
	v.SetDefault("scheduling.exclude_titles", []string{})

	// Relay defaults
	v.SetDefault("relay.idle_timeout", defaultIdleTimeout)
	v.SetDefault("relay.reap_interval", defaultReapInterval)
	v.SetDefault("relay.upstream_timeout", defaultUpstreamTimeout)
	v.SetDefault("relay.circuit_breaker_threshold", defaultCircuitThreshold)
	v.SetDefault("relay.circuit_breaker_timeout", defaultCircuitTimeout)

	// Provider defaults
	v.SetDefault("providers.enabled", []string{"espnplus", "mlbtv"})
	v.SetDefault("providers.refresh_interval", defaultRefreshInterval)
	v.SetDefault("providers.rate_limit", defaultProviderRate)
	v.SetDefault("providers.rate_burst", defaultProviderBurst)
}

// Validate checks the configuration for errors. Missing remote store
// credentials are reported here so that startup halts before serving.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return fmt.Errorf("server.tls_cert_file and server.tls_key_file must be set together")
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	switch c.Remote.Driver {
	case "supabase":
		if c.Remote.URL == "" {
			return fmt.Errorf("remote.url is required for the supabase driver")
		}
		if c.Remote.ServiceKey == "" {
			return fmt.Errorf("remote.service_key is required for the supabase driver")
		}
	case "postgres":
		if c.Remote.DSN == "" {
			return fmt.Errorf("remote.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("remote.driver must be one of: supabase, postgres")
	}

	if c.Ingestion.Interval <= 0 || c.Ingestion.ProviderTimeout <= 0 {
		return fmt.Errorf("ingestion.interval and ingestion.provider_timeout must be positive")
	}
	if c.Providers.RefreshInterval <= 0 {
		return fmt.Errorf("providers.refresh_interval must be positive")
	}
	if c.Relay.IdleTimeout <= 0 || c.Relay.ReapInterval <= 0 {
		return fmt.Errorf("relay.idle_timeout and relay.reap_interval must be positive")
	}

	return c.Scheduling.Validate()
}

// Validate checks the channel ranges. The dynamic pool and the linear
// range must not overlap.
func (s *SchedulingConfig) Validate() error {
	if s.StartChannel < 1 {
		return fmt.Errorf("scheduling.start_channel must be at least 1")
	}
	if s.NumChannels < 1 {
		return fmt.Errorf("scheduling.num_channels must be at least 1")
	}
	if s.LinearEnabled && s.LinearStart < s.StartChannel+s.NumChannels && s.LinearStart >= s.StartChannel {
		return fmt.Errorf("scheduling.linear_start %d overlaps the channel pool [%d, %d)",
			s.LinearStart, s.StartChannel, s.StartChannel+s.NumChannels)
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TLSEnabled reports whether the server should terminate TLS itself.
func (c *ServerConfig) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
