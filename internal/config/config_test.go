package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/engine"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper())
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "share", "bills", "bills.db"), cfg.DatabasePath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, engine.DefaultConfig(), cfg.Engine)
}

func TestLoad_Overrides(t *testing.T) {
	v := newViper()
	v.Set("database.path", "/tmp/bills-test.db")
	v.Set("engine.summary_granularity", "weekly")
	v.Set("matcher.any_tolerance_days", 45)
	v.Set("retry.initial_delay", "250ms")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/bills-test.db", cfg.DatabasePath)
	assert.Equal(t, model.GranularityWeekly, cfg.Engine.SummaryGranularity)
	assert.Equal(t, 45, cfg.Engine.Matcher.AnyToleranceDays)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.Retry.InitialDelay)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("BILLS_DATABASE_PATH", "/srv/bills.db")

	v := newViper()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer())
	v.AutomaticEnv()

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/srv/bills.db", cfg.DatabasePath)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{name: "unknown granularity", key: "engine.summary_granularity", value: "daily"},
		{name: "zero concurrency", key: "engine.concurrency", value: 0},
		{name: "unpaid beyond any", key: "matcher.unpaid_tolerance_days", value: 60},
		{name: "negative grace", key: "status.grace_days", value: -1},
		{name: "no attempts", key: "retry.max_attempts", value: 0},
		{name: "negative extra principal", key: "matcher.extra_principal_tolerance", value: -0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			v.Set(tt.key, tt.value)
			_, err := Load(v)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}

	t.Run("empty database path", func(t *testing.T) {
		v := newViper()
		v.Set("database.path", "")
		_, err := Load(v)
		assert.ErrorIs(t, err, common.ErrMissingConfig)
	})
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("BILLS_TEST_DIR", "/data")

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, "bills.db"), ExpandPath("~/bills.db"))
	assert.Equal(t, "/data/bills.db", ExpandPath("$BILLS_TEST_DIR/bills.db"))
	assert.Equal(t, "/abs/bills.db", ExpandPath("/abs/bills.db"))
}
