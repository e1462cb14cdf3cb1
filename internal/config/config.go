// Package config loads engine configuration from an optional YAML file with
// environment-variable overrides (prefix DEXFLOW_).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RateLimitPolicy bounds how many requests an action allows per window.
type RateLimitPolicy struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// Config is the full runtime configuration.
type Config struct {
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`

	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`

	Engine struct {
		MonitorInterval time.Duration `mapstructure:"monitor_interval"`
		ClaimTTL        time.Duration `mapstructure:"claim_ttl"`
		ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout"`
		MaxAttempts     int           `mapstructure:"max_attempts"`
		BackoffBase     time.Duration `mapstructure:"backoff_base"`
		// OrderTTL is the system default expiry applied to orders whose
		// conditions carry no explicit expiry.
		OrderTTL time.Duration `mapstructure:"order_ttl"`
	} `mapstructure:"engine"`

	Security struct {
		CreateOrder RateLimitPolicy `mapstructure:"create_order"`
		Execute     RateLimitPolicy `mapstructure:"execute"`
	} `mapstructure:"security"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("database.path", "dexflow.db")
	v.SetDefault("auth.jwt_secret", "dexflow-dev-secret")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("engine.monitor_interval", 5*time.Second)
	v.SetDefault("engine.claim_ttl", 2*time.Minute)
	v.SetDefault("engine.confirm_timeout", 30*time.Second)
	v.SetDefault("engine.max_attempts", 3)
	v.SetDefault("engine.backoff_base", 500*time.Millisecond)
	v.SetDefault("engine.order_ttl", 24*time.Hour)
	v.SetDefault("security.create_order.requests", 10)
	v.SetDefault("security.create_order.window", time.Minute)
	v.SetDefault("security.execute.requests", 60)
	v.SetDefault("security.execute.window", time.Minute)
}

// Load reads configuration from path (ignored when empty or missing) and the
// environment, on top of built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DEXFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration, used by tests and the
// simulation harness.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	if c.Engine.MaxAttempts < 1 {
		return fmt.Errorf("engine.max_attempts must be at least 1, got %d", c.Engine.MaxAttempts)
	}
	if c.Engine.MonitorInterval <= 0 {
		return fmt.Errorf("engine.monitor_interval must be positive")
	}
	if c.Engine.ClaimTTL <= 0 {
		return fmt.Errorf("engine.claim_ttl must be positive")
	}
	return nil
}
