// Package config loads and validates scheduler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	DB         DBConfig         `mapstructure:"db"`
	Controller ControllerConfig `mapstructure:"controller"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// RedisConfig controls the keyed-store connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DBConfig controls access to the relational system of record.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ControllerConfig locates the remote search controller.
type ControllerConfig struct {
	Host           string `mapstructure:"host"`
	Passphrase     string `mapstructure:"passphrase"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// SchedulerConfig governs the ticking loop.
type SchedulerConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	TickIntervalSeconds int    `mapstructure:"tick_interval_seconds"`
	ServiceName         string `mapstructure:"service_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCHEDULER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 10081)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 9)
	v.SetDefault("redis.password", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("controller.host", "")
	v.SetDefault("controller.passphrase", "")
	v.SetDefault("controller.timeout_seconds", 30)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.tick_interval_seconds", 5)
	v.SetDefault("scheduler.service_name", "Scheduler")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Scheduler.Enabled && c.Controller.Host == "" {
		return fmt.Errorf("controller.host is required when the scheduler is enabled")
	}
	if c.Scheduler.TickIntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.tick_interval_seconds must be > 0")
	}
	return nil
}

// TickInterval returns the loop tick interval as a duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickIntervalSeconds) * time.Second
}

// ControllerTimeout returns the remote search timeout as a duration.
func (c Config) ControllerTimeout() time.Duration {
	return time.Duration(c.Controller.TimeoutSeconds) * time.Second
}
