// Package config loads service settings from the environment and an optional
// config file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/atmx/options-engine/internal/fixedpoint"
)

// ErrInvalidConfig is returned when a setting is present but unusable.
var ErrInvalidConfig = errors.New("config: invalid setting")

// Config holds every runtime setting of the server.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration
	LogLevel    slog.Level

	// Per-client request throttling.
	RateLimitRPS   float64
	RateLimitBurst int

	// Position limits applied to quotes.
	MaxLegs               int
	MaxContractsPerLeg    fixedpoint.FixedPoint
	MaxContractsPerExpiry fixedpoint.FixedPoint

	// Historical volatility fallback.
	HistoryWindow  int
	PeriodsPerYear uint64

	DefaultRiskFreeRate fixedpoint.FixedPoint
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("cache_ttl", "30s")
	v.SetDefault("log_level", "info")
	v.SetDefault("rate_limit_rps", 50)
	v.SetDefault("rate_limit_burst", 100)
	v.SetDefault("max_legs", 8)
	v.SetDefault("max_contracts_per_leg", "1000")
	v.SetDefault("max_contracts_per_expiry", "5000")
	v.SetDefault("history_window", 30)
	v.SetDefault("periods_per_year", 365)
	v.SetDefault("default_risk_free_rate", "0.05")
}

// Load reads settings from environment variables (PORT, DATABASE_URL, ...).
// When CONFIG_FILE is set, that file is read first and the environment
// overrides it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config error: %w", err)
		}
	}

	cfg := &Config{
		Port:           v.GetString("port"),
		DatabaseURL:    v.GetString("database_url"),
		RedisURL:       v.GetString("redis_url"),
		CacheTTL:       v.GetDuration("cache_ttl"),
		RateLimitRPS:   v.GetFloat64("rate_limit_rps"),
		RateLimitBurst: v.GetInt("rate_limit_burst"),
		MaxLegs:        v.GetInt("max_legs"),
		HistoryWindow:  v.GetInt("history_window"),
		PeriodsPerYear: v.GetUint64("periods_per_year"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("%w: LOG_LEVEL: %v", ErrInvalidConfig, err)
	}

	amounts := []struct {
		key string
		dst *fixedpoint.FixedPoint
	}{
		{"max_contracts_per_leg", &cfg.MaxContractsPerLeg},
		{"max_contracts_per_expiry", &cfg.MaxContractsPerExpiry},
		{"default_risk_free_rate", &cfg.DefaultRiskFreeRate},
	}
	for _, a := range amounts {
		f, err := fixedpoint.Parse(v.GetString(a.key))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, strings.ToUpper(a.key), err)
		}
		*a.dst = f
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.CacheTTL <= 0:
		return fmt.Errorf("%w: CACHE_TTL must be positive", ErrInvalidConfig)
	case c.RateLimitRPS <= 0 || c.RateLimitBurst < 1:
		return fmt.Errorf("%w: RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive", ErrInvalidConfig)
	case c.MaxLegs < 1:
		return fmt.Errorf("%w: MAX_LEGS must be at least 1", ErrInvalidConfig)
	case c.HistoryWindow < 2:
		return fmt.Errorf("%w: HISTORY_WINDOW must be at least 2", ErrInvalidConfig)
	case c.PeriodsPerYear == 0:
		return fmt.Errorf("%w: PERIODS_PER_YEAR must be positive", ErrInvalidConfig)
	}
	return nil
}
