// Package market holds the domain types shared across the engine: ticks,
// signals, positions, and P&L snapshots.
package market

import "time"

// Side is the direction of a position or order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
	Flat Side = "FLAT"
)

// Opposite returns the closing side for an open position.
func (s Side) Opposite() Side {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	}
	return Flat
}

// Tick is one market-data update for a symbol. The core only consumes
// Price; High/Low/Volume pass through to consumers that chart or log them.
type Tick struct {
	Symbol string
	Price  float64
	High   float64
	Low    float64
	Volume float64
	Time   time.Time
}

// Signal is an ephemeral trade intent produced by a strategy. It is
// untrusted input: the validator runs the full check chain on every one.
type Signal struct {
	Action   Side
	Symbol   string
	Price    float64
	Reason   string
	Strategy string
}

// Position is the per-symbol position book entry. Qty is always >= 0;
// a zero Qty means Side == Flat.
type Position struct {
	Symbol   string
	Side     Side
	Qty      int64
	AvgPrice float64
}

// Flat reports whether the position holds no exposure.
func (p Position) Flat() bool {
	return p.Qty == 0 || p.Side == Flat
}

// Notional returns the margin locked by the position at its entry price.
func (p Position) Notional() float64 {
	return float64(p.Qty) * p.AvgPrice
}

// PnL is a point-in-time profit/loss snapshot.
type PnL struct {
	Realised         float64
	Unrealised       float64
	Total            float64
	Capital          float64
	AvailableCapital float64
	UsedMargin       float64
	TradeCount       int
	DailyLossHalted  bool
	KillSwitch       bool
	Time             time.Time
}
