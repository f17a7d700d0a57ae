package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.Addr = ""
	cfg.Server.Port = 0
	cfg.Trading.CycleInterval = duration{0}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "server: port")
	assert.Contains(t, err.Error(), "cycle_interval")
}

func TestValidateRetentionRequiresS3(t *testing.T) {
	cfg := Defaults()
	cfg.Retention.Enabled = true
	cfg.S3.Enabled = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3 must be enabled")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COINPILOT_MODE", "serve")
	t.Setenv("COINPILOT_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("COINPILOT_SERVER_RATE_LIMIT", "30")
	t.Setenv("COINPILOT_TRADING_CYCLE_INTERVAL", "90s")
	t.Setenv("COINPILOT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Equal(t, 30, cfg.Server.RateLimit)
	assert.Equal(t, 90*time.Second, cfg.Trading.CycleInterval.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestEnvOverridesIgnoreUnparseable(t *testing.T) {
	t.Setenv("COINPILOT_SERVER_PORT", "not-a-port")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, Defaults().Server.Port, cfg.Server.Port)
}

func TestDurationUnmarshalText(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("2h30m")))
	assert.Equal(t, 2*time.Hour+30*time.Minute, d.Duration)

	require.Error(t, d.UnmarshalText([]byte("soon")))
}
