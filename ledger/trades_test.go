package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperdesk/logger"
	"paperdesk/market"
	"paperdesk/order"
	"paperdesk/store"
)

func insertTrade(t *testing.T, st *store.SQLite, id string, pnl float64) {
	t.Helper()
	now := time.Now().UTC()
	o := order.Order{
		ID: id, AccountID: "acct-1", Symbol: "ACME", Side: market.Buy,
		Qty: 10, Price: 50, Type: order.TypeMarket, Status: order.StatusNew,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.InsertOrder(o))
	o.Status = order.StatusFilled
	o.FilledQty = 10
	o.AvgPrice = 50

	// CommitFill writes the account and position rows too, so carry the
	// current values through untouched apart from the trade's P&L.
	acct, err := st.EnsureAccount("acct-1", 100_000)
	require.NoError(t, err)
	pos, err := st.Position("acct-1", "ACME")
	require.NoError(t, err)

	require.NoError(t, st.CommitFill(o, order.Trade{
		OrderID: id, AccountID: "acct-1", Symbol: "ACME", Side: market.Buy,
		Qty: 10, Price: 50, PnL: pnl, Time: now,
	}, acct.AvailableCapital, acct.RealisedPnL+pnl, pos))
}

func TestTotalRealisedPnLSumsTrades(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	tl := NewTradeLog(st, "acct-1", logger.NewNop())

	insertTrade(t, st, "ord-1", 120)
	insertTrade(t, st, "ord-2", -45.5)

	total, err := tl.TotalRealisedPnL()
	require.NoError(t, err)
	assert.Equal(t, 74.5, total)

	count, err := tl.TradeCount()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSnapshotAssemblesFromCapitalAndPrices(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	c := newTestCapital(t, st, 100_000)
	tl := NewTradeLog(st, "acct-1", logger.NewNop())

	_, err := c.ApplyFill("ACME", market.Buy, 100, 50)
	require.NoError(t, err)

	snap := tl.Snapshot(c, map[string]float64{"ACME": 53})
	assert.Equal(t, 0.0, snap.Realised)
	assert.Equal(t, 300.0, snap.Unrealised)
	assert.Equal(t, 300.0, snap.Total)
	assert.Equal(t, 100_000.0, snap.Capital)
	assert.Equal(t, 95_000.0, snap.AvailableCapital)
	assert.Equal(t, 5_000.0, snap.UsedMargin)
	assert.False(t, snap.DailyLossHalted)
}

func TestSnapshotPersistAndHistory(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	c := newTestCapital(t, st, 100_000)
	tl := NewTradeLog(st, "acct-1", logger.NewNop())

	require.NoError(t, tl.Persist(tl.Snapshot(c, nil)))
	hist, err := tl.History(10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 100_000.0, hist[0].AvailableCapital)
}

func TestComputePnLFromPersistedRowsOnly(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	c := newTestCapital(t, st, 100_000)
	tl := NewTradeLog(st, "acct-1", logger.NewNop())

	// The capital ledger persists the position; the trade log reads it
	// back from the store rather than asking the ledger.
	_, err := c.ApplyFill("ACME", market.Buy, 100, 50)
	require.NoError(t, err)
	insertTrade(t, st, "ord-1", 250)

	pnl, err := tl.ComputePnL(100_000, map[string]float64{"ACME": 52})
	require.NoError(t, err)
	assert.Equal(t, 250.0, pnl.Realised)
	assert.Equal(t, 200.0, pnl.Unrealised)
	assert.Equal(t, 5_000.0, pnl.UsedMargin)
	assert.Equal(t, 100_000+250.0-5_000, pnl.AvailableCapital)
}

func TestVerifyAgainstCapitalReportsDrift(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	c := newTestCapital(t, st, 100_000)
	tl := NewTradeLog(st, "acct-1", logger.NewNop())

	ok, err := tl.VerifyAgainstCapital(c)
	require.NoError(t, err)
	assert.True(t, ok)

	// A trade row with P&L the capital book never saw is drift. Verify
	// reports it and corrects nothing.
	insertTrade(t, st, "ord-x", 999)
	ok, err = tl.VerifyAgainstCapital(c)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0.0, c.RealisedPnL())
}
