// Package config provides configuration management for coderclaw.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/coderclaw/coderclaw/internal/common/logger"
)

// Config holds all configuration sections for the orchestrator service.
type Config struct {
	Server   ServerConfig         `mapstructure:"server"`
	Runtime  RuntimeConfig        `mapstructure:"runtime"`
	Remote   RemoteConfig         `mapstructure:"remote"`
	Database DatabaseConfig       `mapstructure:"database"`
	NATS     NATSConfig           `mapstructure:"nats"`
	Security SecurityConfig       `mapstructure:"security"`
	Logging  logger.LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// ReadTimeoutDuration returns the read timeout as a duration.
func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a duration.
func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RuntimeConfig holds transport and dispatch configuration.
type RuntimeConfig struct {
	// Mode selects the deployment mode: local-only, remote-enabled or
	// distributed-cluster.
	Mode          string `mapstructure:"mode"`
	MaxConcurrent int    `mapstructure:"maxConcurrent"`
	QueueSize     int    `mapstructure:"queueSize"`
}

// RemoteConfig holds remote execution node configuration.
type RemoteConfig struct {
	BaseURL        string `mapstructure:"baseUrl"`
	UserID         string `mapstructure:"userId"`
	DeviceID       string `mapstructure:"deviceId"`
	PollIntervalMS int    `mapstructure:"pollIntervalMs"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

// PollInterval returns the poll interval as a duration.
func (r RemoteConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalMS) * time.Millisecond
}

// Timeout returns the per-request timeout as a duration.
func (r RemoteConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// DatabaseConfig holds task store configuration.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // memory, sqlite
	Path   string `mapstructure:"path"`
}

// NATSConfig holds NATS messaging configuration.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// SecurityConfig holds authorization configuration.
type SecurityConfig struct {
	SessionTTLHours int    `mapstructure:"sessionTtlHours"`
	PolicyFile      string `mapstructure:"policyFile"`
	AuditLogSize    int    `mapstructure:"auditLogSize"`
}

// SessionTTL returns the session lifetime as a duration.
func (s SecurityConfig) SessionTTL() time.Duration {
	return time.Duration(s.SessionTTLHours) * time.Hour
}

// Load reads configuration from coderclaw.yaml (working directory or
// ~/.coderclaw) and CODERCLAW_* environment variables, falling back to
// defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("coderclaw")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.coderclaw")

	v.SetEnvPrefix("CODERCLAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; anything else is a real error.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("runtime.mode", "local-only")
	v.SetDefault("runtime.maxConcurrent", 8)
	v.SetDefault("runtime.queueSize", 256)

	v.SetDefault("remote.baseUrl", "http://localhost:8090")
	v.SetDefault("remote.pollIntervalMs", 1000)
	v.SetDefault("remote.timeoutSeconds", 30)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.path", "coderclaw.db")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("security.sessionTtlHours", 24)
	v.SetDefault("security.auditLogSize", 10000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.output_path", "stdout")
}
