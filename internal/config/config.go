// Package config provides configuration loading for lcservice binaries.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bjaus/lcservice/platform"
)

// Config holds all configuration of a service binary.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Platform PlatformConfig `mapstructure:"platform"`
}

// ServiceConfig identifies the service to the platform.
type ServiceConfig struct {
	Name          string        `mapstructure:"name"`
	Secret        string        `mapstructure:"secret"`
	TraceComms    bool          `mapstructure:"trace_comms"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NATSConfig holds the NATS transport configuration. The HTTP server runs
// regardless.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	Queue   string `mapstructure:"queue"`
}

// PlatformConfig points at the platform REST API.
type PlatformConfig struct {
	APIURL string `mapstructure:"api_url"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("service.name", "")
	v.SetDefault("service.secret", "")
	v.SetDefault("service.trace_comms", false)
	v.SetDefault("service.shutdown_grace", "30s")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "")
	v.SetDefault("nats.queue", "")

	v.SetDefault("platform.api_url", platform.DefaultURL)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/lcservice")
	}

	// Environment variables override (LCSVC_SERVICE_SECRET, etc.)
	v.SetEnvPrefix("LCSVC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Only fail if a specific config path was given
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.NATS.Enabled && cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "lcservice." + cfg.Service.Name
	}
	if cfg.NATS.Queue == "" {
		cfg.NATS.Queue = cfg.Service.Name
	}
	return &cfg, nil
}

// Validate reports settings a service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Service.Name == "" {
		errs = append(errs, errors.New("service.name is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}
	return errors.Join(errs...)
}
