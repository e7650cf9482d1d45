// Package risk holds the pure position-sizing and stop/target math.
// Nothing in here has state or touches the store; every guard that needs
// live capital or position data lives in ledger and the validator instead.
package risk

import (
	"math"

	"paperdesk/market"
)

// Params carries the per-trade risk inputs and the hard caps applied when
// sizing. All percentages are on a 0-100 scale.
type Params struct {
	Capital       float64
	RiskPct       float64
	StopLossPct   float64
	TakeProfitPct float64

	// Hard caps.
	MaxQtyPerOrder      int64
	MaxPositionPerTrade int64
	MaxPositionPctOfCap float64
	AbsoluteMaxQty      int64
	MinStopDistancePct  float64
	MinStopLossPct      float64
}

// ValidStopDistance reports whether the stop distance is wide enough to
// size against. A stop below the floor would both get hit by noise and
// explode the computed quantity (risk divided by a near-zero per-share
// risk).
func ValidStopDistance(stopLossPct, minStopDistancePct float64) bool {
	return stopLossPct >= minStopDistancePct
}

// PositionSize computes the share quantity such that a stop-loss hit
// loses at most RiskPct of Capital, then clamps through every hard cap.
//
//	riskAmount   = capital * riskPct/100
//	riskPerShare = price * stopLossPct/100
//	qty          = floor(riskAmount / riskPerShare)
//
// Returns 0 when the trade should be rejected (stop too tight, no
// headroom). Returns 1 on the degenerate inputs price <= 0 or a zero
// per-share risk after flooring, so callers always get a safe quantity
// rather than a division panic; the validator's final clamp still drops
// such trades against real capital.
func PositionSize(price float64, p Params) int64 {
	if price <= 0 {
		return 1
	}

	if !ValidStopDistance(p.StopLossPct, p.MinStopDistancePct) {
		return 0
	}

	// Floor the SL% so a near-zero stop cannot explode the quantity.
	effectiveSL := math.Max(p.StopLossPct, p.MinStopLossPct)

	riskAmount := p.Capital * p.RiskPct / 100
	riskPerShare := price * effectiveSL / 100
	if riskPerShare <= 0 {
		return 1
	}

	qty := int64(riskAmount / riskPerShare)

	// Notional cap as a percentage of capital.
	if p.MaxPositionPctOfCap > 0 {
		maxNotional := p.Capital * p.MaxPositionPctOfCap / 100
		qty = minQty(qty, int64(maxNotional/price))
	}

	if p.MaxPositionPerTrade > 0 {
		qty = minQty(qty, p.MaxPositionPerTrade)
	}
	if p.MaxQtyPerOrder > 0 {
		qty = minQty(qty, p.MaxQtyPerOrder)
	}
	if p.AbsoluteMaxQty > 0 {
		qty = minQty(qty, p.AbsoluteMaxQty)
	}

	// Never size beyond what the capital can pay for outright.
	if p.Capital > 0 {
		qty = minQty(qty, int64(p.Capital/price))
	}

	if qty < 0 {
		qty = 0
	}
	return qty
}

// StopPrice computes the stop-loss price for an entry. BUY stops sit below
// entry, SELL (short) stops above. The percentage is floored at
// minStopLossPct.
func StopPrice(entry float64, side market.Side, pct, minStopLossPct float64) float64 {
	if entry <= 0 {
		return 0
	}
	pct = math.Max(pct, minStopLossPct)
	offset := entry * pct / 100
	if side == market.Buy {
		return round2(entry - offset)
	}
	return round2(entry + offset)
}

// TakeProfitPrice computes the profit target, the mirror of StopPrice.
func TakeProfitPrice(entry float64, side market.Side, pct float64) float64 {
	if entry <= 0 {
		return 0
	}
	offset := entry * pct / 100
	if side == market.Buy {
		return round2(entry + offset)
	}
	return round2(entry - offset)
}

func minQty(a, b int64) int64 {
	if b < a {
		return b
	}
	return a
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
