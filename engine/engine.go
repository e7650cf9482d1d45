// Package engine wires the capital ledger, validator, order manager, and
// state controller into the tick loop. Market data always flows; the
// controller only gates whether strategies may act on it.
package engine

import (
	"context"
	"fmt"
	"time"

	"paperdesk/event"
	"paperdesk/ledger"
	"paperdesk/logger"
	"paperdesk/market"
	"paperdesk/risk"
	"paperdesk/store"
	"paperdesk/strategy"

	"go.uber.org/zap"
)

// Config assembles the engine tunables.
type Config struct {
	AccountID      string
	InitialCapital float64
	DailyLossLimit float64

	// Cycle is the housekeeping cadence: SL/TP checks, stale-order
	// cleanup, daily-loss enforcement, P&L broadcast.
	Cycle time.Duration
	// SnapshotEvery is how often a P&L snapshot is persisted and the
	// ledgers cross-checked.
	SnapshotEvery time.Duration

	Validator ValidatorConfig
	Manager   ManagerConfig
}

// Engine owns one account's trading core.
type Engine struct {
	cfg Config

	capital    *ledger.Capital
	trades     *ledger.TradeLog
	controller *Controller
	validator  *Validator
	manager    *Manager

	ticks      *market.TickStore
	strategies []strategy.Strategy
	drawdown   *risk.DrawdownTracker

	bus *event.Bus
	log *logger.Logger
}

// New builds the engine over a store. The exchange is wired afterwards
// via Manager().SetExchange so its callback can point back at the
// manager.
func New(cfg Config, st store.Store, bus *event.Bus, log *logger.Logger) (*Engine, error) {
	capital, err := ledger.NewCapital(st, cfg.AccountID, cfg.InitialCapital, cfg.DailyLossLimit, log)
	if err != nil {
		return nil, fmt.Errorf("build capital ledger: %w", err)
	}

	controller, err := NewController(st, cfg.AccountID, bus, log)
	if err != nil {
		return nil, fmt.Errorf("build controller: %w", err)
	}

	validator := NewValidator(cfg.Validator, capital, log)
	manager := NewManager(cfg.Manager, capital, validator, nil, st, bus, log)
	if err := manager.RestoreOpenOrders(); err != nil {
		return nil, err
	}

	return &Engine{
		cfg:        cfg,
		capital:    capital,
		trades:     ledger.NewTradeLog(st, cfg.AccountID, log),
		controller: controller,
		validator:  validator,
		manager:    manager,
		ticks:      market.NewTickStore(),
		drawdown:   risk.NewDrawdownTracker(capital.InitialCapital()),
		bus:        bus,
		log:        log,
	}, nil
}

func (e *Engine) Capital() *ledger.Capital   { return e.capital }
func (e *Engine) TradeLog() *ledger.TradeLog { return e.trades }
func (e *Engine) Controller() *Controller    { return e.controller }
func (e *Engine) Validator() *Validator      { return e.validator }
func (e *Engine) Manager() *Manager          { return e.manager }
func (e *Engine) Ticks() *market.TickStore   { return e.ticks }

// MaxDrawdownPct reports the worst equity drawdown seen this session.
func (e *Engine) MaxDrawdownPct() float64 { return e.drawdown.MaxDrawdownPct() }

func (e *Engine) AddStrategy(s strategy.Strategy) {
	e.strategies = append(e.strategies, s)
	e.log.Info("strategy attached", zap.String("name", s.Name()))
}

// Run drives the engine until ctx is cancelled or the tick channel
// closes. Housekeeping runs on its own cadence so open risk is enforced
// even when the feed goes quiet.
func (e *Engine) Run(ctx context.Context, ticks <-chan market.Tick) error {
	cycle := time.NewTicker(e.cfg.Cycle)
	defer cycle.Stop()
	snapshot := time.NewTicker(e.cfg.SnapshotEvery)
	defer snapshot.Stop()

	e.log.Info("engine loop started",
		zap.String("account", e.cfg.AccountID),
		zap.Duration("cycle", e.cfg.Cycle),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tick, ok := <-ticks:
			if !ok {
				e.log.Info("tick feed closed, engine loop ending")
				return nil
			}
			e.onTick(tick)
		case <-cycle.C:
			e.housekeeping()
		case <-snapshot.C:
			e.snapshot()
		}
	}
}

// onTick records the price and, only when the controller says RUNNING,
// lets strategies see it.
func (e *Engine) onTick(tick market.Tick) {
	if tick.Price <= 0 {
		return
	}

	e.ticks.Set(tick)
	e.validator.Tick()
	e.bus.Publish(event.TypeTick, tick)

	if !e.controller.IsRunning() {
		return
	}
	for _, s := range e.strategies {
		sig, fired := s.OnTick(tick)
		if !fired {
			continue
		}
		e.bus.Publish(event.TypeSignal, sig)
		e.manager.HandleSignal(sig)
	}
}

// housekeeping runs every cycle regardless of engine state.
func (e *Engine) housekeeping() {
	prices := e.ticks.Prices()

	e.manager.CheckSLTP(prices)
	e.manager.CleanupStaleOrders()

	if e.capital.CheckDailyLoss() && e.controller.IsRunning() {
		if err := e.controller.EmergencyStop("daily loss limit breached"); err != nil {
			e.log.Error("emergency stop", zap.Error(err))
		}
	}

	e.bus.Publish(event.TypePnLUpdate, e.trades.Snapshot(e.capital, prices))
}

// snapshot persists a P&L row and cross-checks the two ledgers.
func (e *Engine) snapshot() {
	snap := e.trades.Snapshot(e.capital, e.ticks.Prices())
	if err := e.trades.Persist(snap); err != nil {
		e.log.Error("persist pnl snapshot", zap.Error(err))
	}
	if dd := e.drawdown.Update(snap.Capital + snap.Unrealised); dd > 0 {
		e.log.Debug("drawdown", zap.Float64("pct", dd))
	}
	if _, err := e.trades.VerifyAgainstCapital(e.capital); err != nil {
		e.log.Error("verify ledgers", zap.Error(err))
	}
}
