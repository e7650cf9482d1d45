package strategy

import (
	"fmt"

	"paperdesk/indicators"
	"paperdesk/market"
)

func init() {
	Register("sma_crossover", func(cfg map[string]float64) Strategy {
		return NewSMACross(
			cfgInt(cfg, "fast_period", 10),
			cfgInt(cfg, "slow_period", 30),
			cfgInt(cfg, "trend_period", 50),
		)
	})
}

// SMACross fires on a fast/slow SMA crossover, filtered by a longer
// trend average: longs only above the trend, shorts only below. The
// cross is edge-triggered; a persisting spread never re-fires.
type SMACross struct {
	fast  map[string]*indicators.SimpleMA
	slow  map[string]*indicators.SimpleMA
	trend map[string]*indicators.SimpleMA

	fastPeriod, slowPeriod, trendPeriod int

	lastDiff map[string]float64
	haveDiff map[string]bool
}

func NewSMACross(fast, slow, trend int) *SMACross {
	return &SMACross{
		fast:        make(map[string]*indicators.SimpleMA),
		slow:        make(map[string]*indicators.SimpleMA),
		trend:       make(map[string]*indicators.SimpleMA),
		fastPeriod:  fast,
		slowPeriod:  slow,
		trendPeriod: trend,
		lastDiff:    make(map[string]float64),
		haveDiff:    make(map[string]bool),
	}
}

func (s *SMACross) Name() string { return "sma_crossover" }

func (s *SMACross) OnTick(tick market.Tick) (market.Signal, bool) {
	sym := tick.Symbol
	if s.fast[sym] == nil {
		s.fast[sym] = indicators.NewSMA(s.fastPeriod)
		s.slow[sym] = indicators.NewSMA(s.slowPeriod)
		s.trend[sym] = indicators.NewSMA(s.trendPeriod)
	}

	s.fast[sym].Update(tick.Price)
	s.slow[sym].Update(tick.Price)
	s.trend[sym].Update(tick.Price)

	if !s.fast[sym].Ready() || !s.slow[sym].Ready() || !s.trend[sym].Ready() {
		return market.Signal{}, false
	}

	diff := s.fast[sym].Value() - s.slow[sym].Value()
	if !s.haveDiff[sym] {
		s.lastDiff[sym] = diff
		s.haveDiff[sym] = true
		return market.Signal{}, false
	}

	bullCross := diff > 0 && s.lastDiff[sym] <= 0
	bearCross := diff < 0 && s.lastDiff[sym] >= 0
	s.lastDiff[sym] = diff

	trendValue := s.trend[sym].Value()
	switch {
	case bullCross && tick.Price > trendValue:
		return market.Signal{
			Action:   market.Buy,
			Symbol:   sym,
			Price:    tick.Price,
			Reason:   fmt.Sprintf("bull cross above SMA(%d)", s.trendPeriod),
			Strategy: s.Name(),
		}, true
	case bearCross && tick.Price < trendValue:
		return market.Signal{
			Action:   market.Sell,
			Symbol:   sym,
			Price:    tick.Price,
			Reason:   fmt.Sprintf("bear cross below SMA(%d)", s.trendPeriod),
			Strategy: s.Name(),
		}, true
	}
	return market.Signal{}, false
}
