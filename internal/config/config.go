package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/engine"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// EnvPrefix is the prefix of environment overrides, e.g. BILLS_DATABASE_PATH.
const EnvPrefix = "BILLS"

// DefaultDatabasePath is used when database.path is not configured.
const DefaultDatabasePath = "~/.local/share/bills/bills.db"

// Config is the resolved application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string
	LogFormat    string
	Engine       engine.Config
}

// SetDefaults registers every default on v, mirroring engine.DefaultConfig.
func SetDefaults(v *viper.Viper) {
	def := engine.DefaultConfig()

	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("engine.summary_granularity", string(def.SummaryGranularity))
	v.SetDefault("engine.concurrency", def.Concurrency)
	v.SetDefault("engine.category_cache_ttl", def.CategoryCacheTTL)

	v.SetDefault("matcher.unpaid_tolerance_days", def.Matcher.UnpaidToleranceDays)
	v.SetDefault("matcher.any_tolerance_days", def.Matcher.AnyToleranceDays)
	v.SetDefault("matcher.advance_days", def.Matcher.AdvanceDays)
	v.SetDefault("matcher.extra_principal_tolerance", def.Matcher.ExtraPrincipalTolerance)

	v.SetDefault("status.grace_days", def.Status.GraceDays)
	v.SetDefault("status.due_soon_days", def.Status.DueSoonDays)

	v.SetDefault("retry.max_attempts", def.Retry.MaxAttempts)
	v.SetDefault("retry.initial_delay", def.Retry.InitialDelay)
	v.SetDefault("retry.max_delay", def.Retry.MaxDelay)
	v.SetDefault("retry.multiplier", def.Retry.Multiplier)
}

// Load resolves the configuration from v. Defaults must already be set.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabasePath: ExpandPath(v.GetString("database.path")),
		LogLevel:     v.GetString("logging.level"),
		LogFormat:    v.GetString("logging.format"),
		Engine:       engine.DefaultConfig(),
	}
	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}
	cfg.DatabasePath = filepath.Clean(cfg.DatabasePath)

	e := &cfg.Engine
	e.SummaryGranularity = model.Granularity(v.GetString("engine.summary_granularity"))
	e.Concurrency = v.GetInt("engine.concurrency")
	e.CategoryCacheTTL = v.GetDuration("engine.category_cache_ttl")

	e.Matcher.UnpaidToleranceDays = v.GetInt("matcher.unpaid_tolerance_days")
	e.Matcher.AnyToleranceDays = v.GetInt("matcher.any_tolerance_days")
	e.Matcher.AdvanceDays = v.GetInt("matcher.advance_days")
	e.Matcher.ExtraPrincipalTolerance = v.GetFloat64("matcher.extra_principal_tolerance")

	e.Status.GraceDays = v.GetInt("status.grace_days")
	e.Status.DueSoonDays = v.GetInt("status.due_soon_days")

	e.Retry.MaxAttempts = v.GetInt("retry.max_attempts")
	e.Retry.InitialDelay = v.GetDuration("retry.initial_delay")
	e.Retry.MaxDelay = v.GetDuration("retry.max_delay")
	e.Retry.Multiplier = v.GetFloat64("retry.multiplier")

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the engine settings for values the engine cannot run with.
func Validate(cfg *Config) error {
	e := cfg.Engine
	switch {
	case !e.SummaryGranularity.IsValid():
		return fmt.Errorf("%w: unknown summary granularity %q", common.ErrInvalidConfig, e.SummaryGranularity)
	case e.Concurrency < 1:
		return fmt.Errorf("%w: engine.concurrency must be at least 1", common.ErrInvalidConfig)
	case e.Matcher.UnpaidToleranceDays < 0 || e.Matcher.AnyToleranceDays < e.Matcher.UnpaidToleranceDays:
		return fmt.Errorf("%w: matcher tolerances must satisfy 0 <= unpaid <= any", common.ErrInvalidConfig)
	case e.Matcher.ExtraPrincipalTolerance < 0:
		return fmt.Errorf("%w: matcher.extra_principal_tolerance is negative", common.ErrInvalidConfig)
	case e.Status.GraceDays < 0 || e.Status.DueSoonDays < 0:
		return fmt.Errorf("%w: status thresholds are negative", common.ErrInvalidConfig)
	case e.Retry.MaxAttempts < 1:
		return fmt.Errorf("%w: retry.max_attempts must be at least 1", common.ErrInvalidConfig)
	}
	return nil
}
