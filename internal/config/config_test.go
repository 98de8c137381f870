package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9090
database:
  driver: sqlite
  dsn: ledger.db
ledger:
  ad_reward_units: 2
  default_grant_hours: 24
  features:
    Analytics: 5
    bulk_export: 8
  lock:
    backend: local
    ttl: 10s
subscription:
  cache_ttl: 15s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadReadsYAMLAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(2), cfg.Ledger.AdRewardUnits)
	assert.Equal(t, 24*time.Hour, cfg.Ledger.GrantDuration())
	assert.Equal(t, 10*time.Second, cfg.Ledger.Lock.TTL)
	assert.Equal(t, 15*time.Second, cfg.Subscription.CacheTTL)
	assert.Equal(t, uint(3), cfg.Ledger.Retry.MaxAttempts)
	assert.Equal(t, 100, cfg.Jobs.OutboxBatchSize)

	cost, ok := cfg.Ledger.FeatureCost("Analytics")
	require.True(t, ok)
	assert.Equal(t, int64(5), cost)

	cost, ok = cfg.Ledger.FeatureCost("BULK_EXPORT")
	require.True(t, ok)
	assert.Equal(t, int64(8), cost)

	_, ok = cfg.Ledger.FeatureCost("unknown")
	assert.False(t, ok)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("REWARDLEDGER_LEDGER_AD_REWARD_UNITS", "3")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, int64(3), cfg.Ledger.AdRewardUnits)
}

func TestLoadRejectsInvalidEconomy(t *testing.T) {
	_, err := Load(writeConfig(t, `
ledger:
  ad_reward_units: 0
  default_grant_hours: 24
  features:
    analytics: -1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ad_reward_units")
	assert.Contains(t, err.Error(), "ledger.features.analytics")
}

func TestValidateRedisLockNeedsRedis(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Driver: "sqlite"},
		Ledger: LedgerConfig{
			AdRewardUnits:     2,
			DefaultGrantHours: 24,
			MaxGrantHours:     48,
			Lock:              LockConfig{Backend: "redis"},
		},
	}
	require.Error(t, cfg.Validate())

	cfg.Redis.Enabled = true
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadServerDatabaseFieldsWithoutDSN(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  driver: mysql
  host: db.internal
  name: reward_ledger
ledger:
  ad_reward_units: 2
`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Database.DSN)
	assert.Equal(t, "reward_ledger", cfg.Database.Name)

	cfg, err = Load(writeConfig(t, "ledger:\n  ad_reward_units: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "rewardledger.db", cfg.Database.Name)
}

func TestGrantHoursBounds(t *testing.T) {
	cfg := LedgerConfig{DefaultGrantHours: 24, MaxGrantHours: 72}

	d, err := cfg.GrantDurationFor(72)
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, d)

	for _, hours := range []int{0, -1, 73, 5124096} {
		_, err := cfg.GrantDurationFor(hours)
		assert.Error(t, err, "hours=%d", hours)
	}

	_, err = Load(writeConfig(t, "ledger:\n  ad_reward_units: 2\n  max_grant_hours: 100000\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_grant_hours")

	_, err = Load(writeConfig(t, "ledger:\n  ad_reward_units: 2\n  default_grant_hours: 48\n  max_grant_hours: 24\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_grant_hours")

	loaded, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, 168, loaded.Ledger.MaxGrantHours)
}
