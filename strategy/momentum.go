package strategy

import (
	"fmt"

	"paperdesk/indicators"
	"paperdesk/market"
)

func init() {
	Register("momentum", func(cfg map[string]float64) Strategy {
		return NewMomentum(
			cfgInt(cfg, "lookback", 20),
			cfgFloat(cfg, "threshold_pct", 1.5),
		)
	})
}

// MomentumStrategy fires when price moves more than thresholdPct over
// the lookback window, in the direction of the move. Edge-triggered per
// direction so a sustained trend produces one signal, not a stream.
type MomentumStrategy struct {
	mom          map[string]*indicators.Momentum
	lastFired    map[string]market.Side
	lookback     int
	thresholdPct float64
}

func NewMomentum(lookback int, thresholdPct float64) *MomentumStrategy {
	return &MomentumStrategy{
		mom:          make(map[string]*indicators.Momentum),
		lastFired:    make(map[string]market.Side),
		lookback:     lookback,
		thresholdPct: thresholdPct,
	}
}

func (s *MomentumStrategy) Name() string { return "momentum" }

func (s *MomentumStrategy) OnTick(tick market.Tick) (market.Signal, bool) {
	sym := tick.Symbol
	if s.mom[sym] == nil {
		s.mom[sym] = indicators.NewMomentum(s.lookback)
	}

	s.mom[sym].Update(tick.Price)
	if !s.mom[sym].Ready() {
		return market.Signal{}, false
	}

	v := s.mom[sym].Value()
	var side market.Side
	switch {
	case v >= s.thresholdPct:
		side = market.Buy
	case v <= -s.thresholdPct:
		side = market.Sell
	default:
		s.lastFired[sym] = market.Flat
		return market.Signal{}, false
	}

	if s.lastFired[sym] == side {
		return market.Signal{}, false
	}
	s.lastFired[sym] = side

	return market.Signal{
		Action:   side,
		Symbol:   sym,
		Price:    tick.Price,
		Reason:   fmt.Sprintf("momentum %.2f%% over %d ticks", v, s.lookback),
		Strategy: s.Name(),
	}, true
}
