// Package config loads application settings from viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

// Viper keys.
const (
	KeyDatabasePath      = "database.path"
	KeyWriteTimeout      = "migration.write_timeout"
	KeyWritesPerSecond   = "migration.writes_per_second"
	KeyDefaultGroup      = "migration.default_group"
	KeyFlagCacheTTL      = "flags.cache_ttl"
	KeyRetryMaxAttempts  = "retry.max_attempts"
	KeyRetryInitialDelay = "retry.initial_delay"
	KeyRetryMaxDelay     = "retry.max_delay"
	KeyRetryMultiplier   = "retry.multiplier"
	KeyLogLevel          = "logging.level"
	KeyLogFormat         = "logging.format"
)

// Config holds every setting the application reads.
type Config struct {
	DatabasePath    string
	DefaultGroup    string
	LogLevel        string
	LogFormat       string
	Retry           service.RetryOptions
	WriteTimeout    time.Duration
	FlagCacheTTL    time.Duration
	WritesPerSecond float64
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDatabasePath, "~/.local/share/books/books.db")
	v.SetDefault(KeyWriteTimeout, 10*time.Second)
	v.SetDefault(KeyWritesPerSecond, 0.0)
	v.SetDefault(KeyDefaultGroup, model.DefaultGroupName)
	v.SetDefault(KeyFlagCacheTTL, 5*time.Minute)
	v.SetDefault(KeyRetryMaxAttempts, 3)
	v.SetDefault(KeyRetryInitialDelay, 200*time.Millisecond)
	v.SetDefault(KeyRetryMaxDelay, 2*time.Second)
	v.SetDefault(KeyRetryMultiplier, 2.0)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
}

// Load reads and validates the configuration held by v. Defaults must have
// been registered with SetDefaults.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabasePath:    ExpandPath(v.GetString(KeyDatabasePath)),
		DefaultGroup:    v.GetString(KeyDefaultGroup),
		LogLevel:        v.GetString(KeyLogLevel),
		LogFormat:       v.GetString(KeyLogFormat),
		WriteTimeout:    v.GetDuration(KeyWriteTimeout),
		FlagCacheTTL:    v.GetDuration(KeyFlagCacheTTL),
		WritesPerSecond: v.GetFloat64(KeyWritesPerSecond),
		Retry: service.RetryOptions{
			MaxAttempts:  v.GetInt(KeyRetryMaxAttempts),
			InitialDelay: v.GetDuration(KeyRetryInitialDelay),
			MaxDelay:     v.GetDuration(KeyRetryMaxDelay),
			Multiplier:   v.GetFloat64(KeyRetryMultiplier),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	switch {
	case c.DatabasePath == "":
		return fmt.Errorf("%w: %s", common.ErrMissingConfig, KeyDatabasePath)
	case c.WriteTimeout <= 0:
		return fmt.Errorf("%w: %s must be positive", common.ErrInvalidConfig, KeyWriteTimeout)
	case c.WritesPerSecond < 0:
		return fmt.Errorf("%w: %s cannot be negative", common.ErrInvalidConfig, KeyWritesPerSecond)
	case c.FlagCacheTTL < 0:
		return fmt.Errorf("%w: %s cannot be negative", common.ErrInvalidConfig, KeyFlagCacheTTL)
	case c.Retry.MaxAttempts < 1:
		return fmt.Errorf("%w: %s must be at least 1", common.ErrInvalidConfig, KeyRetryMaxAttempts)
	case c.Retry.InitialDelay < 0 || c.Retry.MaxDelay < c.Retry.InitialDelay:
		return fmt.Errorf("%w: retry delays out of order", common.ErrInvalidConfig)
	case c.Retry.Multiplier < 1:
		return fmt.Errorf("%w: %s must be at least 1", common.ErrInvalidConfig, KeyRetryMultiplier)
	}

	if _, err := common.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("%w: log format %q", common.ErrInvalidConfig, c.LogFormat)
	}
	return nil
}

// WriteLimiter returns the limiter pacing migration writes, or nil when
// writes are unlimited.
func (c *Config) WriteLimiter() *rate.Limiter {
	if c.WritesPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.WritesPerSecond), 1)
}
