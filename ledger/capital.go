// Package ledger tracks capital and realised trade history. Capital is
// the single authority for available funds, margin, and positions; every
// fill flows through ApplyFill and nothing else moves money.
package ledger

import (
	"fmt"
	"math"
	"sync"

	"paperdesk/logger"
	"paperdesk/market"
	"paperdesk/store"

	"go.uber.org/zap"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Capital is the in-memory capital book backed by the store. Memory and
// store are kept in lockstep: a fill that cannot be persisted is rolled
// back in memory before the error is returned.
type Capital struct {
	mu sync.Mutex

	st        store.Store
	accountID string
	log       *logger.Logger

	initialCapital float64
	available      float64
	realised       float64
	positions      map[string]market.Position

	dailyLossLimit  float64
	dailyLossHalted bool
	killSwitch      bool
}

// NewCapital loads (or creates) the account and rehydrates positions.
// On restart the persisted row wins over initialCapital.
func NewCapital(st store.Store, accountID string, initialCapital, dailyLossLimit float64, log *logger.Logger) (*Capital, error) {
	acct, err := st.EnsureAccount(accountID, initialCapital)
	if err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}

	positions, err := st.Positions(accountID)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}

	c := &Capital{
		st:              st,
		accountID:       accountID,
		log:             log,
		initialCapital:  acct.InitialCapital,
		available:       acct.AvailableCapital,
		realised:        acct.RealisedPnL,
		positions:       make(map[string]market.Position, len(positions)),
		dailyLossLimit:  dailyLossLimit,
		dailyLossHalted: acct.DailyLossHalted,
	}
	for _, p := range positions {
		c.positions[p.Symbol] = p
	}

	log.Info("capital ledger loaded",
		zap.String("account", accountID),
		zap.Float64("available", c.available),
		zap.Float64("realised", c.realised),
		zap.Int("positions", len(c.positions)),
		zap.Bool("daily_loss_halted", c.dailyLossHalted),
	)
	return c, nil
}

func (c *Capital) AccountID() string { return c.accountID }

func (c *Capital) InitialCapital() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialCapital
}

// AvailableCapital never reports below zero even if rounding drift pushes
// the internal figure slightly negative.
func (c *Capital) AvailableCapital() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return math.Max(0, round2(c.available))
}

func (c *Capital) RealisedPnL() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return round2(c.realised)
}

func (c *Capital) UsedMargin() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return round2(c.usedMargin())
}

func (c *Capital) usedMargin() float64 {
	var used float64
	for _, p := range c.positions {
		used += p.Notional()
	}
	return used
}

// TotalExposurePct returns used margin as a percentage of the exposure
// base, initial capital plus realised P&L. A non-positive base reports
// 100 so exposure checks fail closed.
func (c *Capital) TotalExposurePct() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	base := c.initialCapital + c.realised
	if base <= 0 {
		return 100
	}
	return c.usedMargin() / base * 100
}

func (c *Capital) OpenPositionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.positions)
}

// Position returns the book entry for symbol, FLAT when none is open.
func (c *Capital) Position(symbol string) market.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.positions[symbol]; ok {
		return p
	}
	return market.Position{Symbol: symbol, Side: market.Flat}
}

func (c *Capital) Positions() []market.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]market.Position, 0, len(c.positions))
	for _, p := range c.positions {
		out = append(out, p)
	}
	return out
}

// UnrealisedPnL marks every open position against prices. Symbols with no
// price mark at entry, contributing zero.
func (c *Capital) UnrealisedPnL(prices map[string]float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return round2(c.unrealisedPnL(prices))
}

func (c *Capital) unrealisedPnL(prices map[string]float64) float64 {
	var total float64
	for _, p := range c.positions {
		px, ok := prices[p.Symbol]
		if !ok {
			continue
		}
		total += positionPnL(p.Side, p.AvgPrice, px, p.Qty)
	}
	return total
}

func positionPnL(side market.Side, entry, exit float64, qty int64) float64 {
	if side == market.Sell {
		return (entry - exit) * float64(qty)
	}
	return (exit - entry) * float64(qty)
}

// CommitFunc persists the outcome of a fill. It runs inside the fill's
// critical section with the post-fill account figures and position, so a
// caller can write the capital effect and its own rows in one durable
// step. A non-nil error rolls the in-memory book back and aborts the fill.
type CommitFunc func(pnl, available, realised float64, pos market.Position) error

// ApplyFill applies a fill to the book and persists the account and
// position rows. It returns the realised P&L released by the fill (zero
// for opens and adds).
//
// A fill against an opposite position larger than it reduces; equal closes;
// larger reverses, closing the whole position and opening the remainder at
// the same fill price in one atomic step. Persist failure rolls the book
// back so memory never runs ahead of the store.
func (c *Capital) ApplyFill(symbol string, side market.Side, qty int64, price float64) (float64, error) {
	return c.ApplyFillCommit(symbol, side, qty, price, nil)
}

// ApplyFillCommit is ApplyFill with durability delegated to commit. A nil
// commit falls back to the default account and position persist.
func (c *Capital) ApplyFillCommit(symbol string, side market.Side, qty int64, price float64, commit CommitFunc) (float64, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("apply fill %s: non-positive quantity %d", symbol, qty)
	}
	if price <= 0 {
		return 0, fmt.Errorf("apply fill %s: non-positive price %v", symbol, price)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prevAvailable := c.available
	prevRealised := c.realised
	prevPos, hadPos := c.positions[symbol]

	pnl := c.applyFillLocked(symbol, side, qty, price)

	newPos, ok := c.positions[symbol]
	if !ok {
		newPos = market.Position{Symbol: symbol, Side: market.Flat}
	}

	persist := func() error {
		if commit != nil {
			return commit(pnl, c.available, c.realised, newPos)
		}
		return c.persistLocked(newPos)
	}
	if err := persist(); err != nil {
		c.available = prevAvailable
		c.realised = prevRealised
		if hadPos {
			c.positions[symbol] = prevPos
		} else {
			delete(c.positions, symbol)
		}
		return 0, fmt.Errorf("persist fill %s: %w", symbol, err)
	}

	c.log.Info("fill applied",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Int64("qty", qty),
		zap.Float64("price", price),
		zap.Float64("pnl", pnl),
		zap.Float64("available", c.available),
	)
	return pnl, nil
}

func (c *Capital) applyFillLocked(symbol string, side market.Side, qty int64, price float64) float64 {
	pos, ok := c.positions[symbol]
	if !ok || pos.Flat() || pos.Side == side {
		c.openOrAdd(symbol, side, qty, price, pos, ok)
		return 0
	}

	// Opposite side: reduce, close, or reverse.
	switch {
	case qty < pos.Qty:
		return c.reduce(symbol, pos, qty, price)
	case qty == pos.Qty:
		return c.close(symbol, pos, price)
	default:
		pnl := c.close(symbol, pos, price)
		c.openOrAdd(symbol, side, qty-pos.Qty, price, market.Position{}, false)
		return pnl
	}
}

func (c *Capital) openOrAdd(symbol string, side market.Side, qty int64, price float64, pos market.Position, existing bool) {
	c.available = round2(c.available - float64(qty)*price)
	if !existing || pos.Flat() {
		c.positions[symbol] = market.Position{Symbol: symbol, Side: side, Qty: qty, AvgPrice: price}
		return
	}
	total := pos.Qty + qty
	avg := (pos.AvgPrice*float64(pos.Qty) + price*float64(qty)) / float64(total)
	c.positions[symbol] = market.Position{Symbol: symbol, Side: side, Qty: total, AvgPrice: round2(avg)}
}

func (c *Capital) reduce(symbol string, pos market.Position, qty int64, price float64) float64 {
	pnl := round2(positionPnL(pos.Side, pos.AvgPrice, price, qty))
	released := float64(qty) * pos.AvgPrice
	c.available = round2(c.available + released + pnl)
	c.realised = round2(c.realised + pnl)
	pos.Qty -= qty
	c.positions[symbol] = pos
	return pnl
}

func (c *Capital) close(symbol string, pos market.Position, price float64) float64 {
	pnl := round2(positionPnL(pos.Side, pos.AvgPrice, price, pos.Qty))
	c.available = round2(c.available + pos.Notional() + pnl)
	c.realised = round2(c.realised + pnl)
	delete(c.positions, symbol)
	return pnl
}

func (c *Capital) persistLocked(pos market.Position) error {
	if err := c.st.UpdateAccount(c.accountID, c.available, c.realised); err != nil {
		return err
	}
	return c.st.UpsertPosition(c.accountID, pos)
}

// ClampQuantity shrinks qty to fit the order cap, the per-trade position
// cap, available capital, and exposure headroom, in that order. A zero
// result means the order cannot be sized at all.
func (c *Capital) ClampQuantity(qty int64, price float64, maxQtyPerOrder, maxPositionPerTrade int64, maxExposurePct float64) int64 {
	if qty <= 0 || price <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if maxQtyPerOrder > 0 && qty > maxQtyPerOrder {
		qty = maxQtyPerOrder
	}
	if maxPositionPerTrade > 0 && qty > maxPositionPerTrade {
		qty = maxPositionPerTrade
	}

	avail := math.Max(0, c.available)
	if byCapital := int64(math.Floor(avail / price)); qty > byCapital {
		qty = byCapital
	}

	if base := c.initialCapital + c.realised; maxExposurePct > 0 && base > 0 {
		headroom := base*maxExposurePct/100 - c.usedMargin()
		if headroom <= 0 {
			return 0
		}
		if byExposure := int64(math.Floor(headroom / price)); qty > byExposure {
			qty = byExposure
		}
	}

	if qty < 0 {
		return 0
	}
	return qty
}

// CheckDailyLoss trips the halt when realised P&L breaches the configured
// loss limit. Idempotent: once halted it stays halted (and keeps returning
// true) until an explicit reset.
func (c *Capital) CheckDailyLoss() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dailyLossHalted {
		return true
	}
	if c.dailyLossLimit <= 0 || c.realised > -c.dailyLossLimit {
		return false
	}

	c.dailyLossHalted = true
	if err := c.st.SetDailyLossHalted(c.accountID, true); err != nil {
		c.log.Error("persist daily loss halt", zap.Error(err))
	}
	c.log.Warn("daily loss limit breached, trading halted",
		zap.Float64("realised", c.realised),
		zap.Float64("limit", c.dailyLossLimit),
	)
	return true
}

func (c *Capital) DailyLossHalted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dailyLossHalted
}

// Halt trips the trading halt manually, persisted like a loss breach.
func (c *Capital) Halt() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dailyLossHalted = true
	return c.st.SetDailyLossHalted(c.accountID, true)
}

// ResetHalt clears the halt, an explicit operator action.
func (c *Capital) ResetHalt() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dailyLossHalted = false
	return c.st.SetDailyLossHalted(c.accountID, false)
}

func (c *Capital) SetKillSwitch(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killSwitch = on
}

func (c *Capital) KillSwitch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.killSwitch
}

// Reset restores the book to initial capital and drops every position.
// Never called automatically.
func (c *Capital) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.st.ResetAccount(c.accountID, c.initialCapital); err != nil {
		return fmt.Errorf("reset account: %w", err)
	}
	c.available = c.initialCapital
	c.realised = 0
	c.positions = make(map[string]market.Position)
	c.dailyLossHalted = false
	c.log.Info("capital ledger reset", zap.Float64("capital", c.initialCapital))
	return nil
}
