// Package config loads server configuration from file, environment, and
// defaults via viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/taskweave/taskweave/pkg/domain/errors"
)

const configModule = "config"

// Transport selection values.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
	TransportBoth  = "both"
)

// Config is the full server configuration.
type Config struct {
	// HTTPAddr is the listen address of the HTTP API.
	HTTPAddr string `mapstructure:"http_addr"`
	// Transport selects the serving surface: http, stdio, or both.
	Transport string `mapstructure:"transport"`
	// DatabaseURL is the Postgres DSN. Empty selects the in-memory store.
	DatabaseURL string `mapstructure:"database_url"`
	LogLevel    string `mapstructure:"log_level"`
	// MaxConcurrency caps concurrently executing nodes. Zero is unbounded.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// WorkflowDeadline bounds each workflow run. Zero disables it.
	WorkflowDeadline time.Duration `mapstructure:"workflow_deadline"`
	EventBuffer      int           `mapstructure:"event_buffer"`
}

// Load reads configuration. A non-empty path names an explicit config
// file and must exist; environment variables use the TASKWEAVE_ prefix.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("transport", TransportHTTP)
	v.SetDefault("database_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("max_concurrency", 0)
	v.SetDefault("workflow_deadline", time.Duration(0))
	v.SetDefault("event_buffer", 64)

	v.SetEnvPrefix("TASKWEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Configf(configModule, "failed to read config file %s: %v", path, err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Configf(configModule, "failed to parse configuration: %v", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Transport {
	case TransportHTTP, TransportStdio, TransportBoth:
	default:
		return errors.Configf(configModule, "invalid transport %q", c.Transport)
	}
	if c.Transport != TransportStdio && c.HTTPAddr == "" {
		return errors.Configf(configModule, "http_addr required for transport %q", c.Transport)
	}
	if c.MaxConcurrency < 0 {
		return errors.Configf(configModule, "max_concurrency must not be negative")
	}
	if c.WorkflowDeadline < 0 {
		return errors.Configf(configModule, "workflow_deadline must not be negative")
	}
	return nil
}
