package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperdesk/broker"
	"paperdesk/event"
	"paperdesk/logger"
	"paperdesk/market"
	"paperdesk/order"
	"paperdesk/strategy"
)

func brokerAck(id string) broker.OrderUpdate {
	return broker.OrderUpdate{OrderID: id, Status: order.StatusAck}
}

func brokerFill(id string, qty int64, price float64) broker.OrderUpdate {
	return broker.OrderUpdate{OrderID: id, Status: order.StatusFilled, FilledQty: qty, AvgPrice: price}
}

// stubStrategy fires one BUY on the first tick it sees.
type stubStrategy struct {
	fired bool
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) OnTick(tick market.Tick) (market.Signal, bool) {
	if s.fired {
		return market.Signal{}, false
	}
	s.fired = true
	return market.Signal{
		Action: market.Buy, Symbol: tick.Symbol, Price: tick.Price, Strategy: s.Name(),
	}, true
}

var _ strategy.Strategy = (*stubStrategy)(nil)

func newTestEngine(t *testing.T) (*Engine, *fakeExchange, *event.Bus) {
	t.Helper()
	st := newControllerStore(t)
	bus := event.NewBus(256, logger.NewNop())

	cfg := Config{
		AccountID:      "acct-1",
		InitialCapital: 100_000,
		DailyLossLimit: 50_000,
		Cycle:          10 * time.Millisecond,
		SnapshotEvery:  50 * time.Millisecond,
		Validator:      defaultValidatorConfig(),
		Manager:        ManagerConfig{OrderTimeout: time.Minute, Risk: defaultRiskParams()},
	}

	e, err := New(cfg, st, bus, logger.NewNop())
	require.NoError(t, err)

	ex := &fakeExchange{cancelOK: true}
	e.Manager().SetExchange(ex)
	return e, ex, bus
}

func runEngine(t *testing.T, e *Engine, ticks chan market.Tick) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx, ticks)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestEngineTradesOnlyWhileRunning(t *testing.T) {
	t.Parallel()
	e, ex, _ := newTestEngine(t)
	e.AddStrategy(&stubStrategy{})

	ticks := make(chan market.Tick, 16)
	runEngine(t, e, ticks)

	// IDLE: ticks flow, price is recorded, but the strategy never runs.
	ticks <- market.Tick{Symbol: "ACME", Price: 100, Time: time.Now()}
	assert.Eventually(t, func() bool {
		_, err := e.Ticks().Get("ACME")
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, ex.orders())

	require.NoError(t, e.Controller().Start())
	ticks <- market.Tick{Symbol: "ACME", Price: 101, Time: time.Now()}

	assert.Eventually(t, func() bool {
		return len(ex.orders()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	o := ex.orders()[0]
	assert.Equal(t, market.Buy, o.Side)
	assert.Equal(t, 101.0, o.Price)
}

func TestEnginePublishesPnLEveryCycle(t *testing.T) {
	t.Parallel()
	e, _, bus := newTestEngine(t)

	sub := bus.Subscribe()
	ticks := make(chan market.Tick, 16)
	runEngine(t, e, ticks)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub:
			if ev.Type != event.TypePnLUpdate {
				continue
			}
			pnl, ok := ev.Data.(market.PnL)
			require.True(t, ok)
			assert.Equal(t, 100_000.0, pnl.AvailableCapital)
			return
		case <-deadline:
			t.Fatal("no pnl update published")
		}
	}
}

func TestEngineEnforcesStopsWhileStopped(t *testing.T) {
	t.Parallel()
	e, ex, _ := newTestEngine(t)
	e.AddStrategy(&stubStrategy{})

	ticks := make(chan market.Tick, 16)
	runEngine(t, e, ticks)

	require.NoError(t, e.Controller().Start())
	ticks <- market.Tick{Symbol: "ACME", Price: 100, Time: time.Now()}
	assert.Eventually(t, func() bool { return len(ex.orders()) == 1 }, 2*time.Second, 5*time.Millisecond)

	// Fill the entry, then stop the engine.
	o := ex.orders()[0]
	e.Manager().ApplyUpdate(brokerAck(o.ID))
	e.Manager().ApplyUpdate(brokerFill(o.ID, o.Qty, 100))
	require.NoError(t, e.Controller().Stop())

	// A tick through the stop level still triggers the protective exit.
	ticks <- market.Tick{Symbol: "ACME", Price: 97, Time: time.Now()}
	assert.Eventually(t, func() bool {
		subs := ex.orders()
		return len(subs) == 2 && subs[1].Strategy == "auto_sl_exit"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngineDropsNonPositivePrices(t *testing.T) {
	t.Parallel()
	e, ex, _ := newTestEngine(t)
	e.AddStrategy(&stubStrategy{})

	ticks := make(chan market.Tick, 16)
	runEngine(t, e, ticks)
	require.NoError(t, e.Controller().Start())

	ticks <- market.Tick{Symbol: "ACME", Price: 0, Time: time.Now()}
	ticks <- market.Tick{Symbol: "ACME", Price: -5, Time: time.Now()}
	ticks <- market.Tick{Symbol: "ACME", Price: 100, Time: time.Now()}

	assert.Eventually(t, func() bool { return len(ex.orders()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 100.0, ex.orders()[0].Price)
}
