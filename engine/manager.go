package engine

import (
	"fmt"
	"sync"
	"time"

	"paperdesk/broker"
	"paperdesk/event"
	"paperdesk/internal/id"
	"paperdesk/ledger"
	"paperdesk/logger"
	"paperdesk/market"
	"paperdesk/order"
	"paperdesk/risk"
	"paperdesk/store"

	"go.uber.org/zap"
)

const (
	maxSubmitRetries = 3

	reasonAutoSLExit = "auto_sl_exit"
	reasonAutoTPExit = "auto_tp_exit"
)

// ManagerConfig carries order-lifecycle tunables.
type ManagerConfig struct {
	OrderTimeout time.Duration
	Risk         risk.Params
}

// exitLevels is the SL/TP book entry kept per symbol, taken from the most
// recently filled order that carried stops.
type exitLevels struct {
	side       market.Side
	stopLoss   float64
	takeProfit float64
	orderID    string
}

// Manager owns the order map and every state transition. It is the only
// caller of Capital.ApplyFill and the only writer of order rows.
type Manager struct {
	mu sync.Mutex

	cfg       ManagerConfig
	capital   *ledger.Capital
	validator *Validator
	exchange  broker.Exchange
	st        store.Store
	bus       *event.Bus
	log       *logger.Logger

	orders      map[string]order.Order
	exits       map[string]exitLevels
	pendingExit map[string]string // symbol -> in-flight closing order id

	now func() time.Time
}

func NewManager(cfg ManagerConfig, capital *ledger.Capital, validator *Validator, exchange broker.Exchange, st store.Store, bus *event.Bus, log *logger.Logger) *Manager {
	return &Manager{
		cfg:         cfg,
		capital:     capital,
		validator:   validator,
		exchange:    exchange,
		st:          st,
		bus:         bus,
		log:         log,
		orders:      make(map[string]order.Order),
		exits:       make(map[string]exitLevels),
		pendingExit: make(map[string]string),
		now:         time.Now,
	}
}

// SetExchange swaps the exchange, for wiring after construction.
func (m *Manager) SetExchange(ex broker.Exchange) {
	m.mu.Lock()
	m.exchange = ex
	m.mu.Unlock()
}

// HandleSignal runs the full gate: validate, size, persist, submit.
// Rejections are expected traffic and only logged at debug.
func (m *Manager) HandleSignal(sig market.Signal) {
	if reason := m.validator.ValidateSignal(sig); reason != "" {
		m.log.Debug("signal rejected",
			zap.String("symbol", sig.Symbol),
			zap.String("action", string(sig.Action)),
			zap.String("reason", reason),
		)
		m.bus.Publish(event.TypeRiskRejected, reason)
		return
	}

	// Cooldown starts at approval, so a signal that sizes to zero still
	// blocks its successors for the full window.
	m.validator.RecordSignal(sig.Symbol)

	qty := m.validator.SizeOrder(sig.Price)
	if qty <= 0 {
		m.log.Debug("signal sized to zero", zap.String("symbol", sig.Symbol))
		return
	}

	o := m.buildOrder(sig.Symbol, sig.Action, qty, sig.Price, sig.Strategy, true)
	if err := m.placeOrder(o); err != nil {
		m.log.Error("place order from signal", zap.Error(err))
	}
}

// PlaceManualOrder skips strategy idempotency and cooldowns but still
// validates and clamps. It returns the created order for the caller to
// track.
func (m *Manager) PlaceManualOrder(symbol string, side market.Side, qty int64, price float64) (order.Order, error) {
	if reason := m.validator.ValidateManualOrder(symbol, side, qty, price); reason != "" {
		return order.Order{}, fmt.Errorf("manual order rejected: %s", reason)
	}

	qty = m.validator.ClampQuantity(qty, price)
	if qty <= 0 {
		return order.Order{}, fmt.Errorf("manual order rejected: %s", ReasonZeroQuantity)
	}

	o := m.buildOrder(symbol, side, qty, price, "manual", true)
	if err := m.placeOrder(o); err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func (m *Manager) buildOrder(symbol string, side market.Side, qty int64, price float64, strategy string, withStops bool) order.Order {
	now := m.now().UTC()
	o := order.Order{
		ID:        id.New(),
		AccountID: m.capital.AccountID(),
		Symbol:    symbol,
		Side:      side,
		Qty:       qty,
		Price:     price,
		Type:      order.TypeMarket,
		Status:    order.StatusNew,
		Strategy:  strategy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if withStops {
		o.StopLoss = risk.StopPrice(price, side, m.cfg.Risk.StopLossPct, m.cfg.Risk.MinStopLossPct)
		o.TakeProfit = risk.TakeProfitPrice(price, side, m.cfg.Risk.TakeProfitPct)
	}
	return o
}

// placeOrder persists the NEW order, registers it, and submits it with
// bounded retries.
func (m *Manager) placeOrder(o order.Order) error {
	if err := m.st.InsertOrder(o); err != nil {
		return fmt.Errorf("persist order %s: %w", o.ID, err)
	}

	m.mu.Lock()
	m.orders[o.ID] = o
	m.mu.Unlock()

	m.log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.Int64("qty", o.Qty),
		zap.Float64("price", o.Price),
		zap.String("strategy", o.Strategy),
	)
	m.publishOrder(o)
	m.submitWithRetry(o)
	return nil
}

// submitWithRetry attempts delivery up to maxSubmitRetries times. It
// works on its own copy of the order; the exchange only ever sees the
// original order id, so a retry can never double-submit a fill.
func (m *Manager) submitWithRetry(o order.Order) {
	for attempt := 1; attempt <= maxSubmitRetries; attempt++ {
		err := m.exchange.Submit(o)
		if err == nil {
			return
		}
		m.log.Warn("exchange submit failed",
			zap.String("order_id", o.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		o.Retries = attempt
		m.mu.Lock()
		if cur, ok := m.orders[o.ID]; ok {
			cur.Retries = attempt
			m.orders[o.ID] = cur
		}
		m.mu.Unlock()
	}

	m.log.Error("submit retries exhausted, rejecting order", zap.String("order_id", o.ID))
	m.ApplyUpdate(broker.OrderUpdate{OrderID: o.ID, Status: order.StatusRejected, Reason: "submit retries exhausted"})
}

// ApplyUpdate is the exchange callback target. It enforces the transition
// table, persists the change, and applies fills to the capital ledger.
// Unknown order ids are looked up in the store before giving up, so fills
// for orders created before a restart still land.
//
// The whole update runs under the order lock. Checking the transition
// outside it would let two concurrent updates (a forced timeout rejection
// and an exchange fill, say) both validate against the same stale status
// and both land.
func (m *Manager) ApplyUpdate(u broker.OrderUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[u.OrderID]
	if !ok {
		var err error
		o, err = m.st.Order(u.OrderID)
		if err != nil {
			m.log.Warn("update for unknown order", zap.String("order_id", u.OrderID))
			return
		}
	}

	if !o.Status.CanTransition(u.Status) {
		m.log.Warn("invalid order transition",
			zap.String("order_id", u.OrderID),
			zap.String("from", string(o.Status)),
			zap.String("to", string(u.Status)),
		)
		return
	}

	switch u.Status {
	case order.StatusPartial, order.StatusFilled:
		m.applyFillLocked(o, u)
	default:
		o.Status = u.Status
		o.UpdatedAt = m.now().UTC()
		if err := m.st.UpdateOrder(o); err != nil {
			m.log.Error("persist order status", zap.String("order_id", o.ID), zap.Error(err))
		}
		m.finishUpdateLocked(o)
	}
}

// applyFillLocked applies the incremental fill to the capital ledger and
// commits the order update, the trade row, and the capital effect as one
// transaction, inside the ledger's critical section. A failed commit rolls
// the ledger back and leaves the order untouched, so the fill can land
// cleanly on a retry from the exchange. Caller holds m.mu.
func (m *Manager) applyFillLocked(o order.Order, u broker.OrderUpdate) {
	delta := u.FilledQty - o.FilledQty
	if delta <= 0 {
		m.log.Warn("fill update with no new quantity",
			zap.String("order_id", o.ID),
			zap.Int64("filled", u.FilledQty),
		)
		return
	}

	o.Status = u.Status
	o.FilledQty = u.FilledQty
	o.AvgPrice = u.AvgPrice
	o.UpdatedAt = m.now().UTC()

	_, err := m.capital.ApplyFillCommit(o.Symbol, o.Side, delta, u.AvgPrice,
		func(pnl, available, realised float64, pos market.Position) error {
			trade := order.Trade{
				OrderID:   o.ID,
				AccountID: o.AccountID,
				Symbol:    o.Symbol,
				Side:      o.Side,
				Qty:       delta,
				Price:     u.AvgPrice,
				PnL:       pnl,
				Time:      o.UpdatedAt,
			}
			return m.st.CommitFill(o, trade, available, realised, pos)
		})
	if err != nil {
		m.log.Error("commit fill, fill aborted",
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
		return
	}

	m.recordExitsLocked(o)
	m.finishUpdateLocked(o)
	m.bus.Publish(event.TypePositionUpdate, m.capital.Position(o.Symbol))
}

// recordExitsLocked tracks SL/TP for the symbol off the latest fill, and
// clears the book when the position went flat. Caller holds m.mu.
func (m *Manager) recordExitsLocked(o order.Order) {
	if m.capital.Position(o.Symbol).Flat() {
		delete(m.exits, o.Symbol)
		delete(m.pendingExit, o.Symbol)
		return
	}
	if o.StopLoss > 0 || o.TakeProfit > 0 {
		m.exits[o.Symbol] = exitLevels{
			side:       o.Side,
			stopLoss:   o.StopLoss,
			takeProfit: o.TakeProfit,
			orderID:    o.ID,
		}
	}
	if m.pendingExit[o.Symbol] == o.ID {
		delete(m.pendingExit, o.Symbol)
	}
}

func (m *Manager) finishUpdateLocked(o order.Order) {
	if o.Status.Terminal() {
		delete(m.orders, o.ID)
		for sym, oid := range m.pendingExit {
			if oid == o.ID {
				delete(m.pendingExit, sym)
			}
		}
	} else {
		m.orders[o.ID] = o
	}

	m.log.Info("order updated",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
		zap.Int64("filled_qty", o.FilledQty),
	)
	m.publishOrder(o)
}

// CancelOrder is honored only while the order is still open; terminal
// orders report failure.
func (m *Manager) CancelOrder(orderID string) bool {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	m.mu.Unlock()
	if !ok || !o.Status.Open() {
		return false
	}
	return m.exchange.Cancel(orderID)
}

// Order returns the live order, falling back to the store for completed
// ones.
func (m *Manager) Order(orderID string) (order.Order, error) {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	m.mu.Unlock()
	if ok {
		return o, nil
	}
	return m.st.Order(orderID)
}

func (m *Manager) OpenOrders() []order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	return out
}

// CheckSLTP compares every tracked position's stops against current
// prices and submits an opposite-side closing order on a breach. It runs
// every cycle regardless of engine state: open risk does not pause.
func (m *Manager) CheckSLTP(prices map[string]float64) {
	for _, pos := range m.capital.Positions() {
		px, ok := prices[pos.Symbol]
		if !ok || px <= 0 {
			continue
		}

		m.mu.Lock()
		ex, tracked := m.exits[pos.Symbol]
		_, inFlight := m.pendingExit[pos.Symbol]
		m.mu.Unlock()
		if !tracked || inFlight {
			continue
		}

		reason := breachedExit(ex, px)
		if reason == "" {
			continue
		}

		o := m.buildOrder(pos.Symbol, pos.Side.Opposite(), pos.Qty, px, reason, false)
		m.log.Warn("protective exit triggered",
			zap.String("symbol", pos.Symbol),
			zap.Float64("price", px),
			zap.String("reason", reason),
			zap.String("order_id", o.ID),
		)

		m.mu.Lock()
		m.pendingExit[pos.Symbol] = o.ID
		m.mu.Unlock()

		if err := m.placeOrder(o); err != nil {
			m.log.Error("place protective exit", zap.Error(err))
			m.mu.Lock()
			delete(m.pendingExit, pos.Symbol)
			m.mu.Unlock()
		}
	}
}

// breachedExit returns the auto-exit reason when price crosses a stored
// level, side-aware: a long stops out below and takes profit above, a
// short the reverse.
func breachedExit(ex exitLevels, price float64) string {
	if ex.side == market.Buy {
		if ex.stopLoss > 0 && price <= ex.stopLoss {
			return reasonAutoSLExit
		}
		if ex.takeProfit > 0 && price >= ex.takeProfit {
			return reasonAutoTPExit
		}
		return ""
	}
	if ex.stopLoss > 0 && price >= ex.stopLoss {
		return reasonAutoSLExit
	}
	if ex.takeProfit > 0 && price <= ex.takeProfit {
		return reasonAutoTPExit
	}
	return ""
}

// CleanupStaleOrders forces any order stuck in NEW past the timeout to
// REJECTED so a wedged submission cannot block capital forever.
func (m *Manager) CleanupStaleOrders() {
	cutoff := m.now().UTC().Add(-m.cfg.OrderTimeout)

	m.mu.Lock()
	var stale []order.Order
	for _, o := range m.orders {
		if o.Status == order.StatusNew && o.CreatedAt.Before(cutoff) {
			stale = append(stale, o)
		}
	}
	m.mu.Unlock()

	for _, o := range stale {
		m.log.Warn("stale order timed out", zap.String("order_id", o.ID))
		m.ApplyUpdate(broker.OrderUpdate{OrderID: o.ID, Status: order.StatusRejected, Reason: "order timeout"})
	}
}

// RestoreOpenOrders reloads non-terminal orders from the store after a
// restart so exchange callbacks and stale cleanup can find them.
func (m *Manager) RestoreOpenOrders() error {
	open, err := m.st.OpenOrders()
	if err != nil {
		return fmt.Errorf("restore open orders: %w", err)
	}

	m.mu.Lock()
	for _, o := range open {
		m.orders[o.ID] = o
	}
	m.mu.Unlock()

	if len(open) > 0 {
		m.log.Info("open orders restored", zap.Int("count", len(open)))
	}
	return m.restoreExits()
}

// restoreExits rebuilds the SL/TP book from the most recent filled order
// per open symbol, so protective exits survive a restart.
func (m *Manager) restoreExits() error {
	positions := m.capital.Positions()
	if len(positions) == 0 {
		return nil
	}

	recent, err := m.st.Orders(200)
	if err != nil {
		return fmt.Errorf("restore exit levels: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pos := range positions {
		for _, o := range recent { // newest first
			if o.Symbol != pos.Symbol || (o.StopLoss <= 0 && o.TakeProfit <= 0) {
				continue
			}
			if o.Status != order.StatusFilled && o.Status != order.StatusPartial {
				continue
			}
			m.exits[pos.Symbol] = exitLevels{side: o.Side, stopLoss: o.StopLoss, takeProfit: o.TakeProfit, orderID: o.ID}
			break
		}
	}
	return nil
}

func (m *Manager) publishOrder(o order.Order) {
	m.bus.Publish(event.TypeOrderUpdate, o)
}
