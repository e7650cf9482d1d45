package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperdesk/market"
	"paperdesk/order"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "paperdesk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testOrder(id string) order.Order {
	now := time.Now().UTC()
	return order.Order{
		ID:        id,
		AccountID: "acct-1",
		Symbol:    "ACME",
		Side:      market.Buy,
		Qty:       100,
		Price:     50,
		Type:      order.TypeMarket,
		Status:    order.StatusNew,
		Strategy:  "sma_crossover",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestEnsureAccountCreatesOnce(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	a, err := s.EnsureAccount("acct-1", 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, 1_000_000.0, a.InitialCapital)
	assert.Equal(t, 1_000_000.0, a.AvailableCapital)
	assert.Equal(t, "IDLE", a.EngineState)
	assert.False(t, a.DailyLossHalted)
}

func TestEnsureAccountDoesNotResetCapital(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.EnsureAccount("acct-1", 1_000_000)
	require.NoError(t, err)
	require.NoError(t, s.UpdateAccount("acct-1", 750_000, -1_200))

	// Simulates a restart: the existing row wins, initial capital arg ignored.
	a, err := s.EnsureAccount("acct-1", 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, 750_000.0, a.AvailableCapital)
	assert.Equal(t, -1_200.0, a.RealisedPnL)
}

func TestAccountNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.Account("nope")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestEngineStateRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.EnsureAccount("acct-1", 1000)
	require.NoError(t, err)

	require.NoError(t, s.SetEngineState("acct-1", "RUNNING"))
	state, err := s.EngineState("acct-1")
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", state)
}

func TestDailyLossHaltedRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.EnsureAccount("acct-1", 1000)
	require.NoError(t, err)

	require.NoError(t, s.SetDailyLossHalted("acct-1", true))
	a, err := s.Account("acct-1")
	require.NoError(t, err)
	assert.True(t, a.DailyLossHalted)
}

func TestResetAccountClearsPositionsAndHalt(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.EnsureAccount("acct-1", 1000)
	require.NoError(t, err)
	require.NoError(t, s.UpdateAccount("acct-1", 400, -600))
	require.NoError(t, s.SetDailyLossHalted("acct-1", true))
	require.NoError(t, s.UpsertPosition("acct-1", market.Position{Symbol: "ACME", Side: market.Buy, Qty: 10, AvgPrice: 60}))

	require.NoError(t, s.ResetAccount("acct-1", 1000))

	a, err := s.Account("acct-1")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, a.AvailableCapital)
	assert.Equal(t, 0.0, a.RealisedPnL)
	assert.False(t, a.DailyLossHalted)

	positions, err := s.Positions("acct-1")
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestPositionUpsertAndDelete(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	pos := market.Position{Symbol: "ACME", Side: market.Buy, Qty: 100, AvgPrice: 50}
	require.NoError(t, s.UpsertPosition("acct-1", pos))

	got, err := s.Position("acct-1", "ACME")
	require.NoError(t, err)
	assert.Equal(t, pos, got)

	// Averaging up rewrites the row in place.
	pos.Qty = 150
	pos.AvgPrice = 52
	require.NoError(t, s.UpsertPosition("acct-1", pos))
	got, err = s.Position("acct-1", "ACME")
	require.NoError(t, err)
	assert.Equal(t, int64(150), got.Qty)
	assert.Equal(t, 52.0, got.AvgPrice)

	// Zero quantity deletes the row; reads return a FLAT stub.
	pos.Qty = 0
	require.NoError(t, s.UpsertPosition("acct-1", pos))
	got, err = s.Position("acct-1", "ACME")
	require.NoError(t, err)
	assert.True(t, got.Flat())
}

func TestOrderRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	o := testOrder("ord-1")
	require.NoError(t, s.InsertOrder(o))

	got, err := s.Order("ord-1")
	require.NoError(t, err)
	assert.Equal(t, o.Symbol, got.Symbol)
	assert.Equal(t, order.StatusNew, got.Status)

	o.Status = order.StatusAck
	o.UpdatedAt = time.Now().UTC()
	require.NoError(t, s.UpdateOrder(o))

	got, err = s.Order("ord-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusAck, got.Status)
}

func TestOrderNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.Order("missing")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestOpenOrdersExcludesTerminal(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	open := testOrder("ord-open")
	require.NoError(t, s.InsertOrder(open))

	done := testOrder("ord-done")
	done.Status = order.StatusFilled
	require.NoError(t, s.InsertOrder(done))

	got, err := s.OpenOrders()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ord-open", got[0].ID)
}

func TestCommitFillWritesAllRowsTogether(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.EnsureAccount("acct-1", 100_000)
	require.NoError(t, err)

	o := testOrder("ord-1")
	require.NoError(t, s.InsertOrder(o))

	o.Status = order.StatusFilled
	o.FilledQty = 100
	o.AvgPrice = 50.02
	o.UpdatedAt = time.Now().UTC()

	tr := order.Trade{
		OrderID:   "ord-1",
		AccountID: "acct-1",
		Symbol:    "ACME",
		Side:      market.Buy,
		Qty:       100,
		Price:     50.02,
		Time:      time.Now().UTC(),
	}
	pos := market.Position{Symbol: "ACME", Side: market.Buy, Qty: 100, AvgPrice: 50.02}
	require.NoError(t, s.CommitFill(o, tr, 94_998, 0, pos))

	got, err := s.Order("ord-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusFilled, got.Status)
	assert.Equal(t, int64(100), got.FilledQty)

	trades, err := s.Trades("acct-1", 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "ord-1", trades[0].OrderID)
	assert.Equal(t, 50.02, trades[0].Price)

	a, err := s.Account("acct-1")
	require.NoError(t, err)
	assert.Equal(t, 94_998.0, a.AvailableCapital)

	p, err := s.Position("acct-1", "ACME")
	require.NoError(t, err)
	assert.Equal(t, int64(100), p.Qty)
}

func TestPnLHistoryRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	snap := market.PnL{
		Realised:         120,
		Unrealised:       -30,
		Total:            90,
		Capital:          1_000_090,
		AvailableCapital: 995_000,
		UsedMargin:       5_090,
		TradeCount:       4,
		Time:             time.Now().UTC(),
	}
	require.NoError(t, s.InsertPnLSnapshot("acct-1", snap))

	hist, err := s.PnLHistory("acct-1", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 120.0, hist[0].Realised)
	assert.Equal(t, 4, hist[0].TradeCount)
}
