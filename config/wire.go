package config

import (
	"time"

	"paperdesk/broker/sim"
	"paperdesk/engine"
	"paperdesk/feed"
	"paperdesk/risk"
)

// RiskParams maps the risk and limits sections onto sizing parameters.
func (c *Config) RiskParams() risk.Params {
	return risk.Params{
		Capital:             c.Account.InitialCapital,
		RiskPct:             c.Risk.RiskPerTradePct,
		StopLossPct:         c.Risk.DefaultStopLossPct,
		TakeProfitPct:       c.Risk.DefaultTakeProfitPct,
		MinStopDistancePct:  c.Risk.MinStopDistancePct,
		MinStopLossPct:      c.Risk.MinStopLossPct,
		MaxQtyPerOrder:      c.Limits.MaxQtyPerOrder,
		MaxPositionPerTrade: c.Limits.MaxPositionSizePerTrade,
		MaxPositionPctOfCap: c.Limits.MaxPositionPctOfCapital,
		AbsoluteMaxQty:      c.Limits.AbsoluteMaxQty,
	}
}

// EngineConfig assembles the full engine configuration.
func (c *Config) EngineConfig() engine.Config {
	p := c.RiskParams()
	return engine.Config{
		AccountID:      c.Account.ID,
		InitialCapital: c.Account.InitialCapital,
		DailyLossLimit: c.EffectiveDailyLossLimit(),
		Cycle:          time.Second,
		SnapshotEvery:  30 * time.Second,
		Validator: engine.ValidatorConfig{
			CooldownTicks:    c.Limits.CooldownCandles,
			CooldownDuration: time.Duration(c.Limits.CooldownSeconds) * time.Second,
			MaxOpenPositions: c.Limits.MaxOpenPositions,
			MaxExposurePct:   c.Limits.MaxTotalExposurePct,
			Risk:             p,
		},
		Manager: engine.ManagerConfig{
			OrderTimeout: c.OrderTimeout(),
			Risk:         p,
		},
	}
}

// SimConfig maps the exchange section onto the simulated venue.
func (c *Config) SimConfig() sim.Config {
	return sim.Config{
		MinLatency:    time.Duration(c.Exchange.MinLatencyMs) * time.Millisecond,
		MaxLatency:    time.Duration(c.Exchange.MaxLatencyMs) * time.Millisecond,
		SlippagePct:   c.Exchange.SlippagePct,
		RejectPct:     c.Exchange.RejectPct,
		PartialPct:    c.Exchange.PartialPct,
		PartialMinQty: c.Exchange.PartialMinQty,
		QueueSize:     256,
		Seed:          c.Exchange.Seed,
	}
}

// DemoConfig maps the feed section onto the demo tick generator.
func (c *Config) DemoConfig() feed.DemoConfig {
	return feed.DemoConfig{
		Symbols:  c.Feed.Symbols,
		Interval: time.Duration(c.Feed.TickIntervalMs) * time.Millisecond,
		DriftPct: c.Feed.DriftPct,
		VolPct:   c.Feed.VolPct,
		Seed:     c.Feed.Seed,
	}
}
