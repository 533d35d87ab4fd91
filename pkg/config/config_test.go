package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "serializable", cfg.Ledger.Isolation)
	require.Equal(t, uint64(3), cfg.Ledger.MaxRetries)
	require.Equal(t, int64(50), cfg.Rewards.DailyClaimAmount)
	require.Equal(t, 24*time.Hour, cfg.Rewards.DailyClaimCooldown)
	require.Equal(t, int64(180), cfg.Rewards.ReferrerBonus)
	require.Equal(t, int64(120), cfg.Rewards.ReferredBonus)
	require.Equal(t, int64(5), cfg.Rewards.MaxSubmissionsPerDay)
	require.Equal(t, "http", cfg.Otel.Protocol)
	require.True(t, cfg.Otel.Insecure)
	require.Equal(t, 10*time.Second, cfg.Otel.Timeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LEDGER_MAX_RETRIES", "7")
	t.Setenv("REWARDS_DAILY_CLAIM_AMOUNT", "75")
	t.Setenv("DATABASE_TYPE", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, uint64(7), cfg.Ledger.MaxRetries)
	require.Equal(t, int64(75), cfg.Rewards.DailyClaimAmount)
	require.Equal(t, "sqlite", cfg.Database.Type)
}
