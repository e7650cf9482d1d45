package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"paperdesk/ledger"
	"paperdesk/logger"
	"paperdesk/market"
	"paperdesk/risk"

	"go.uber.org/zap"
)

// Rejection reasons returned by the validator. These are expected and
// frequent; callers log them at debug and drop the signal.
const (
	ReasonKillSwitch       = "kill_switch_active"
	ReasonDailyLossHalted  = "daily_loss_halted"
	ReasonDailyLossBreach  = "daily_loss_limit_breached"
	ReasonDuplicateSignal  = "duplicate_signal"
	ReasonCooldown         = "cooldown_active"
	ReasonTimeCooldown     = "time_cooldown_active"
	ReasonMaxOpenPositions = "max_open_positions"
	ReasonNoCapital        = "no_available_capital"
	ReasonMaxExposure      = "max_exposure"
	ReasonZeroQuantity     = "clamped_quantity_zero"
	ReasonInvalidQuantity  = "invalid_quantity"
	ReasonQtyExceedsMax    = "qty_exceeds_max"
	ReasonInvalidPrice     = "invalid_price"
)

// idempotencyCap bounds the duplicate-signal set; reaching it clears the
// whole set rather than evicting piecemeal.
const idempotencyCap = 500

// ValidatorConfig carries the limits the validator enforces.
type ValidatorConfig struct {
	CooldownTicks    int64
	CooldownDuration time.Duration
	MaxOpenPositions int
	MaxExposurePct   float64
	Risk             risk.Params
}

// Validator is the stateful per-account gate in front of order creation.
// Checks run in a fixed order and the first failure wins, so a rejection
// reason is deterministic for a given state.
type Validator struct {
	mu sync.Mutex

	cfg     ValidatorConfig
	capital *ledger.Capital
	log     *logger.Logger

	tickCount      int64
	lastSignalTick map[string]int64
	lastSignalTime map[string]time.Time
	seen           map[string]struct{}

	now func() time.Time
}

func NewValidator(cfg ValidatorConfig, capital *ledger.Capital, log *logger.Logger) *Validator {
	return &Validator{
		cfg:            cfg,
		capital:        capital,
		log:            log,
		lastSignalTick: make(map[string]int64),
		lastSignalTime: make(map[string]time.Time),
		seen:           make(map[string]struct{}),
		now:            time.Now,
	}
}

// Tick advances the cooldown clock. Called once per engine cycle.
func (v *Validator) Tick() {
	v.mu.Lock()
	v.tickCount++
	v.mu.Unlock()
}

// ValidateSignal returns "" when the signal may proceed, or the first
// failing check's reason. Its only side effects are recording the
// idempotency key and triggering the daily-loss halt; cooldowns are
// recorded separately via RecordSignal after the order is actually placed.
func (v *Validator) ValidateSignal(sig market.Signal) string {
	if v.capital.KillSwitch() {
		return ReasonKillSwitch
	}
	if v.capital.DailyLossHalted() {
		return ReasonDailyLossHalted
	}
	if v.capital.CheckDailyLoss() {
		return ReasonDailyLossBreach
	}

	v.mu.Lock()
	key := fmt.Sprintf("%s_%s_%.2f", sig.Action, sig.Symbol, sig.Price)
	if _, dup := v.seen[key]; dup {
		v.mu.Unlock()
		return ReasonDuplicateSignal
	}
	if len(v.seen) >= idempotencyCap {
		v.seen = make(map[string]struct{})
	}
	v.seen[key] = struct{}{}

	if last, ok := v.lastSignalTick[sig.Symbol]; ok && v.tickCount-last < v.cfg.CooldownTicks {
		v.mu.Unlock()
		return ReasonCooldown
	}
	if last, ok := v.lastSignalTime[sig.Symbol]; ok && v.now().Sub(last) < v.cfg.CooldownDuration {
		v.mu.Unlock()
		return ReasonTimeCooldown
	}
	v.mu.Unlock()

	pos := v.capital.Position(sig.Symbol)
	if !pos.Flat() && pos.Side == sig.Action {
		return fmt.Sprintf("already_%s_%s", strings.ToLower(string(sig.Action)), sig.Symbol)
	}
	if pos.Flat() && v.capital.OpenPositionCount() >= v.cfg.MaxOpenPositions {
		return ReasonMaxOpenPositions
	}
	if v.capital.AvailableCapital() <= 0 {
		return ReasonNoCapital
	}
	if v.capital.TotalExposurePct() >= v.cfg.MaxExposurePct {
		return ReasonMaxExposure
	}
	if v.SizeOrder(sig.Price) <= 0 {
		return ReasonZeroQuantity
	}
	return ""
}

// ValidateManualOrder runs the lighter manual-order subset: no
// idempotency, no cooldowns.
func (v *Validator) ValidateManualOrder(symbol string, side market.Side, qty int64, price float64) string {
	if v.capital.KillSwitch() {
		return ReasonKillSwitch
	}
	if v.capital.DailyLossHalted() {
		return ReasonDailyLossHalted
	}
	if qty <= 0 {
		return ReasonInvalidQuantity
	}
	if limit := v.cfg.Risk.MaxQtyPerOrder; limit > 0 && qty > limit {
		return ReasonQtyExceedsMax
	}
	if price < 0 {
		return ReasonInvalidPrice
	}
	if v.capital.AvailableCapital() <= 0 {
		return ReasonNoCapital
	}
	return ""
}

// SizeOrder runs the risk formula and the ledger clamp chain for a
// prospective order at price. Sizing risks a fraction of live available
// capital, not the configured starting capital, so position sizes shrink
// with the book.
func (v *Validator) SizeOrder(price float64) int64 {
	params := v.cfg.Risk
	params.Capital = v.capital.AvailableCapital()
	qty := risk.PositionSize(price, params)
	return v.ClampQuantity(qty, price)
}

// ClampQuantity applies the ledger clamp chain to an explicit quantity.
func (v *Validator) ClampQuantity(qty int64, price float64) int64 {
	return v.capital.ClampQuantity(qty, price,
		v.cfg.Risk.MaxQtyPerOrder, v.cfg.Risk.MaxPositionPerTrade, v.cfg.MaxExposurePct)
}

// RecordSignal stamps both cooldown maps for symbol. Callers invoke it
// as soon as a signal clears validation, before sizing.
func (v *Validator) RecordSignal(symbol string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastSignalTick[symbol] = v.tickCount
	v.lastSignalTime[symbol] = v.now()
	v.log.Debug("signal recorded", zap.String("symbol", symbol), zap.Int64("tick", v.tickCount))
}

// ResetCooldowns clears cooldown and idempotency state, for tests and
// operator resets.
func (v *Validator) ResetCooldowns() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastSignalTick = make(map[string]int64)
	v.lastSignalTime = make(map[string]time.Time)
	v.seen = make(map[string]struct{})
}
