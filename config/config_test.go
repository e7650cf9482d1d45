package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	t.Parallel()
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1_000_000.0, cfg.Account.InitialCapital)
	assert.Equal(t, int64(500), cfg.Limits.MaxPositionSizePerTrade)
	assert.Equal(t, 50_000.0, cfg.EffectiveDailyLossLimit())
}

func TestLoadYAMLRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Account.ID = "SIM-042"
	cfg.Exchange.Seed = 7
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "SIM-042", loaded.Account.ID)
	assert.Equal(t, int64(7), loaded.Exchange.Seed)
	assert.Equal(t, cfg.Feed.Symbols, loaded.Feed.Symbols)
}

func TestLoadJSONFallback(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Strategy.Name = "momentum"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "momentum", loaded.Strategy.Name)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account:\n  id: \"\"\n"), 0644))

	_, err := LoadFromFile(path)
	assert.ErrorContains(t, err, "account.id")
}

func TestValidateCatchesBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capital", func(c *Config) { c.Account.InitialCapital = 0 }},
		{"risk pct over 100", func(c *Config) { c.Risk.RiskPerTradePct = 150 }},
		{"no stop loss", func(c *Config) { c.Risk.DefaultStopLossPct = 0 }},
		{"zero open positions", func(c *Config) { c.Limits.MaxOpenPositions = 0 }},
		{"exposure over 100", func(c *Config) { c.Limits.MaxTotalExposurePct = 120 }},
		{"position pct over 100", func(c *Config) { c.Limits.MaxPositionPctOfCapital = 120 }},
		{"zero order timeout", func(c *Config) { c.Orders.TimeoutSec = 0 }},
		{"latency inverted", func(c *Config) { c.Exchange.MaxLatencyMs = 10; c.Exchange.MinLatencyMs = 20 }},
		{"no symbols", func(c *Config) { c.Feed.Symbols = nil }},
		{"negative start price", func(c *Config) { c.Feed.Symbols = map[string]float64{"ACME": -1} }},
		{"no strategy", func(c *Config) { c.Strategy.Name = "" }},
		{"no store path", func(c *Config) { c.Store.Path = "" }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEffectiveDailyLossLimitFromPct(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Limits.DailyLossLimit = 0
	cfg.Limits.MaxDailyLossPct = 5
	assert.Equal(t, 50_000.0, cfg.EffectiveDailyLossLimit())

	cfg.Limits.MaxDailyLossPct = 0
	assert.Equal(t, 0.0, cfg.EffectiveDailyLossLimit())
}

func TestWiringUsesLimits(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Limits.CooldownSeconds = 45

	ec := cfg.EngineConfig()
	assert.Equal(t, cfg.Account.ID, ec.AccountID)
	assert.Equal(t, 45*time.Second, ec.Validator.CooldownDuration)
	assert.Equal(t, int64(500), ec.Manager.Risk.MaxPositionPerTrade)
	assert.Equal(t, 50.0, ec.Manager.Risk.MaxPositionPctOfCap)
	assert.Equal(t, 50.0, ec.Validator.Risk.MaxPositionPctOfCap)

	sc := cfg.SimConfig()
	assert.Equal(t, 200*time.Millisecond, sc.MinLatency)
	assert.Equal(t, int64(10), sc.PartialMinQty)

	dc := cfg.DemoConfig()
	assert.Equal(t, time.Second, dc.Interval)
	assert.Len(t, dc.Symbols, 3)
}
