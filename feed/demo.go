package feed

import (
	"context"
	"math"
	"math/rand"
	"time"

	"paperdesk/market"
)

// DemoConfig tunes the synthetic feed.
type DemoConfig struct {
	Symbols  map[string]float64 // symbol -> starting price
	Interval time.Duration
	DriftPct float64 // per-tick drift, e.g. 0.01
	VolPct   float64 // per-tick volatility, e.g. 0.3
	Seed     int64   // 0 seeds from the clock
}

// Demo is a seeded random-walk tick generator, enough to exercise the
// whole engine without a market connection.
type Demo struct {
	cfg    DemoConfig
	prices map[string]float64
	out    chan market.Tick
}

func NewDemo(cfg DemoConfig) *Demo {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.VolPct <= 0 {
		cfg.VolPct = 0.3
	}
	prices := make(map[string]float64, len(cfg.Symbols))
	for sym, px := range cfg.Symbols {
		prices[sym] = px
	}
	return &Demo{
		cfg:    cfg,
		prices: prices,
		out:    make(chan market.Tick, 64),
	}
}

func (d *Demo) Ticks() <-chan market.Tick {
	return d.out
}

func (d *Demo) Run(ctx context.Context) error {
	defer close(d.out)

	seed := d.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			for sym := range d.prices {
				tick := d.step(rng, sym, now)
				select {
				case d.out <- tick:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (d *Demo) step(rng *rand.Rand, sym string, now time.Time) market.Tick {
	px := d.prices[sym]
	movePct := d.cfg.DriftPct + rng.NormFloat64()*d.cfg.VolPct
	px = px * (1 + movePct/100)
	// A walk that hits zero is dead; clamp well above it.
	px = math.Max(px, 0.01)
	d.prices[sym] = px

	spread := px * d.cfg.VolPct / 100
	return market.Tick{
		Symbol: sym,
		Price:  round2(px),
		High:   round2(px + spread),
		Low:    round2(math.Max(px-spread, 0.01)),
		Volume: float64(100 + rng.Intn(10_000)),
		Time:   now.UTC(),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
