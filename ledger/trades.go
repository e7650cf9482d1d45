package ledger

import (
	"math"
	"time"

	"paperdesk/logger"
	"paperdesk/market"
	"paperdesk/order"
	"paperdesk/store"

	"go.uber.org/zap"
)

// driftEpsilon is the tolerance for float drift between the capital book
// and the trade history.
const driftEpsilon = 0.01

// TradeLog is the read-model over persisted trades: realised P&L, trade
// counts, and point-in-time snapshots. It never moves money.
type TradeLog struct {
	st        store.Store
	accountID string
	log       *logger.Logger
}

func NewTradeLog(st store.Store, accountID string, log *logger.Logger) *TradeLog {
	return &TradeLog{st: st, accountID: accountID, log: log}
}

// TotalRealisedPnL sums the pnl column over every persisted trade.
func (t *TradeLog) TotalRealisedPnL() (float64, error) {
	trades, err := t.st.Trades(t.accountID, 0x7fffffff)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, tr := range trades {
		total += tr.PnL
	}
	return round2(total), nil
}

func (t *TradeLog) TradeCount() (int, error) {
	trades, err := t.st.Trades(t.accountID, 0x7fffffff)
	if err != nil {
		return 0, err
	}
	return len(trades), nil
}

func (t *TradeLog) RecentTrades(limit int) ([]order.Trade, error) {
	return t.st.Trades(t.accountID, limit)
}

// UnrealisedPnL marks the persisted position snapshot against prices.
// It deliberately reads the store, not the capital book, so it can act
// as an independent check on the latter.
func (t *TradeLog) UnrealisedPnL(prices map[string]float64) (float64, error) {
	positions, err := t.st.Positions(t.accountID)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, p := range positions {
		px, ok := prices[p.Symbol]
		if !ok {
			continue
		}
		if p.Side == market.Sell {
			total += (p.AvgPrice - px) * float64(p.Qty)
		} else {
			total += (px - p.AvgPrice) * float64(p.Qty)
		}
	}
	return round2(total), nil
}

// ComputePnL rebuilds a full snapshot from persisted trades and positions
// alone. Available capital is recomputed as initial + realised - margin,
// independent of the capital book's own figure.
func (t *TradeLog) ComputePnL(initialCapital float64, prices map[string]float64) (market.PnL, error) {
	realised, err := t.TotalRealisedPnL()
	if err != nil {
		return market.PnL{}, err
	}
	unrealised, err := t.UnrealisedPnL(prices)
	if err != nil {
		return market.PnL{}, err
	}
	positions, err := t.st.Positions(t.accountID)
	if err != nil {
		return market.PnL{}, err
	}
	var used float64
	for _, p := range positions {
		used += p.Notional()
	}
	count, err := t.TradeCount()
	if err != nil {
		return market.PnL{}, err
	}
	return market.PnL{
		Realised:         realised,
		Unrealised:       unrealised,
		Total:            round2(realised + unrealised),
		Capital:          round2(initialCapital + realised),
		AvailableCapital: round2(initialCapital + realised - used),
		UsedMargin:       round2(used),
		TradeCount:       count,
		Time:             time.Now().UTC(),
	}, nil
}

// Snapshot assembles a P&L snapshot from the capital book and current
// prices.
func (t *TradeLog) Snapshot(cap *Capital, prices map[string]float64) market.PnL {
	realised := cap.RealisedPnL()
	unrealised := cap.UnrealisedPnL(prices)
	count, err := t.TradeCount()
	if err != nil {
		t.log.Error("count trades for snapshot", zap.Error(err))
	}
	return market.PnL{
		Realised:         realised,
		Unrealised:       unrealised,
		Total:            round2(realised + unrealised),
		Capital:          round2(cap.InitialCapital() + realised),
		AvailableCapital: cap.AvailableCapital(),
		UsedMargin:       cap.UsedMargin(),
		TradeCount:       count,
		DailyLossHalted:  cap.DailyLossHalted(),
		KillSwitch:       cap.KillSwitch(),
		Time:             time.Now().UTC(),
	}
}

// Persist writes a snapshot to the pnl history table.
func (t *TradeLog) Persist(snap market.PnL) error {
	return t.st.InsertPnLSnapshot(t.accountID, snap)
}

func (t *TradeLog) History(limit int) ([]market.PnL, error) {
	return t.st.PnLHistory(t.accountID, limit)
}

// VerifyAgainstCapital compares the trade history's realised total with
// the capital book's. Drift beyond epsilon is logged, never corrected:
// the books are evidence and silently rewriting either would destroy it.
func (t *TradeLog) VerifyAgainstCapital(cap *Capital) (bool, error) {
	fromTrades, err := t.TotalRealisedPnL()
	if err != nil {
		return false, err
	}
	fromCapital := cap.RealisedPnL()
	if math.Abs(fromTrades-fromCapital) <= driftEpsilon {
		return true, nil
	}
	t.log.Warn("realised pnl drift between trade log and capital ledger",
		zap.Float64("from_trades", fromTrades),
		zap.Float64("from_capital", fromCapital),
	)
	return false, nil
}
