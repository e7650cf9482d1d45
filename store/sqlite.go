package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"paperdesk/market"
	"paperdesk/order"
)

// SQLite implements Store on a single database file. A process-level
// mutex serialises writes; go-sqlite3 allows only one writer anyway and
// SQLITE_BUSY mid-fill is worse than a short wait.
type SQLite struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and applies the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) EnsureAccount(accountID string, initialCapital float64) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.account(accountID)
	if err == nil {
		return acct, nil
	}
	if err != ErrAccountNotFound {
		return Account{}, err
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO accounts
		(account_id, initial_capital, available_capital, realised_pnl, daily_loss_halted, engine_state, created_at, updated_at)
		VALUES (?, ?, ?, 0, 0, 'IDLE', ?, ?)`,
		accountID, initialCapital, initialCapital, now, now,
	)
	if err != nil {
		return Account{}, fmt.Errorf("create account %s: %w", accountID, err)
	}
	return s.account(accountID)
}

func (s *SQLite) Account(accountID string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account(accountID)
}

func (s *SQLite) account(accountID string) (Account, error) {
	row := s.db.QueryRow(`
		SELECT account_id, initial_capital, available_capital, realised_pnl, daily_loss_halted, engine_state, created_at, updated_at
		FROM accounts WHERE account_id = ?`, accountID)

	var a Account
	var halted int
	err := row.Scan(&a.ID, &a.InitialCapital, &a.AvailableCapital, &a.RealisedPnL, &halted, &a.EngineState, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("load account %s: %w", accountID, err)
	}
	a.DailyLossHalted = halted != 0
	return a, nil
}

func (s *SQLite) UpdateAccount(accountID string, availableCapital, realisedPnL float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateAccount(s.db, accountID, availableCapital, realisedPnL)
}

func (s *SQLite) updateAccount(e execer, accountID string, availableCapital, realisedPnL float64) error {
	_, err := e.Exec(`
		UPDATE accounts SET available_capital = ?, realised_pnl = ?, updated_at = ?
		WHERE account_id = ?`,
		availableCapital, realisedPnL, time.Now().UTC(), accountID,
	)
	if err != nil {
		return fmt.Errorf("update account %s: %w", accountID, err)
	}
	return nil
}

func (s *SQLite) SetDailyLossHalted(accountID string, halted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := 0
	if halted {
		v = 1
	}
	_, err := s.db.Exec(`
		UPDATE accounts SET daily_loss_halted = ?, updated_at = ? WHERE account_id = ?`,
		v, time.Now().UTC(), accountID,
	)
	if err != nil {
		return fmt.Errorf("set daily loss halted: %w", err)
	}
	return nil
}

func (s *SQLite) SetEngineState(accountID, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE accounts SET engine_state = ?, updated_at = ? WHERE account_id = ?`,
		state, time.Now().UTC(), accountID,
	)
	if err != nil {
		return fmt.Errorf("set engine state: %w", err)
	}
	return nil
}

func (s *SQLite) EngineState(accountID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state string
	err := s.db.QueryRow(`SELECT engine_state FROM accounts WHERE account_id = ?`, accountID).Scan(&state)
	if err == sql.ErrNoRows {
		return "", ErrAccountNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load engine state: %w", err)
	}
	return state, nil
}

func (s *SQLite) ResetAccount(accountID string, initialCapital float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE accounts
		SET initial_capital = ?, available_capital = ?, realised_pnl = 0, daily_loss_halted = 0, updated_at = ?
		WHERE account_id = ?`,
		initialCapital, initialCapital, time.Now().UTC(), accountID,
	)
	if err != nil {
		return fmt.Errorf("reset account %s: %w", accountID, err)
	}
	if _, err := tx.Exec(`DELETE FROM positions WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("reset positions: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) UpsertPosition(accountID string, pos market.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertPosition(s.db, accountID, pos)
}

// execer lets position writes run inside or outside a transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *SQLite) upsertPosition(e execer, accountID string, pos market.Position) error {
	if pos.Qty <= 0 {
		_, err := e.Exec(`DELETE FROM positions WHERE account_id = ? AND symbol = ?`, accountID, pos.Symbol)
		if err != nil {
			return fmt.Errorf("delete position %s: %w", pos.Symbol, err)
		}
		return nil
	}

	_, err := e.Exec(`
		INSERT INTO positions (account_id, symbol, side, qty, avg_price, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, symbol) DO UPDATE SET
			side = excluded.side,
			qty = excluded.qty,
			avg_price = excluded.avg_price,
			updated_at = excluded.updated_at`,
		accountID, pos.Symbol, string(pos.Side), pos.Qty, pos.AvgPrice, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", pos.Symbol, err)
	}
	return nil
}

func (s *SQLite) Positions(accountID string) ([]market.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT symbol, side, qty, avg_price FROM positions
		WHERE account_id = ? ORDER BY symbol`, accountID)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	defer rows.Close()

	var out []market.Position
	for rows.Next() {
		var p market.Position
		var side string
		if err := rows.Scan(&p.Symbol, &side, &p.Qty, &p.AvgPrice); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Side = market.Side(side)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) Position(accountID, symbol string) (market.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT symbol, side, qty, avg_price FROM positions
		WHERE account_id = ? AND symbol = ?`, accountID, symbol)

	var p market.Position
	var side string
	err := row.Scan(&p.Symbol, &side, &p.Qty, &p.AvgPrice)
	if err == sql.ErrNoRows {
		return market.Position{Symbol: symbol, Side: market.Flat}, nil
	}
	if err != nil {
		return market.Position{}, fmt.Errorf("load position %s: %w", symbol, err)
	}
	p.Side = market.Side(side)
	return p, nil
}

func (s *SQLite) InsertOrder(o order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO orders
		(order_id, account_id, symbol, side, qty, price, order_type, status, filled_qty, avg_price, strategy, stop_loss, take_profit, retries, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.AccountID, o.Symbol, string(o.Side), o.Qty, o.Price, string(o.Type),
		string(o.Status), o.FilledQty, o.AvgPrice, o.Strategy, o.StopLoss, o.TakeProfit,
		o.Retries, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

func (s *SQLite) UpdateOrder(o order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateOrder(s.db, o)
}

func (s *SQLite) updateOrder(e execer, o order.Order) error {
	_, err := e.Exec(`
		UPDATE orders SET status = ?, filled_qty = ?, avg_price = ?, retries = ?, updated_at = ?
		WHERE order_id = ?`,
		string(o.Status), o.FilledQty, o.AvgPrice, o.Retries, o.UpdatedAt, o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	return nil
}

const orderColumns = `order_id, account_id, symbol, side, qty, price, order_type, status, filled_qty, avg_price, strategy, stop_loss, take_profit, retries, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (order.Order, error) {
	var o order.Order
	var side, typ, status string
	err := r.Scan(&o.ID, &o.AccountID, &o.Symbol, &side, &o.Qty, &o.Price, &typ,
		&status, &o.FilledQty, &o.AvgPrice, &o.Strategy, &o.StopLoss, &o.TakeProfit,
		&o.Retries, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return order.Order{}, err
	}
	o.Side = market.Side(side)
	o.Type = order.Type(typ)
	o.Status = order.Status(status)
	return o, nil
}

func (s *SQLite) Order(orderID string) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, orderID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	return o, nil
}

func (s *SQLite) Orders(limit int) ([]order.Order, error) {
	return s.queryOrders(`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *SQLite) OpenOrders() ([]order.Order, error) {
	return s.queryOrders(`SELECT ` + orderColumns + ` FROM orders WHERE status IN ('NEW', 'ACK', 'PARTIAL') ORDER BY created_at`)
}

func (s *SQLite) queryOrders(query string, args ...any) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CommitFill records a fill in one transaction: the order row, the trade
// row, the account's capital figures, and the resulting position. Either
// all four land or none do.
func (s *SQLite) CommitFill(o order.Order, t order.Trade, availableCapital, realisedPnL float64, pos market.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin fill commit: %w", err)
	}
	defer tx.Rollback()

	if err := s.updateOrder(tx, o); err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO trades (order_id, account_id, symbol, side, qty, price, pnl, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OrderID, t.AccountID, t.Symbol, string(t.Side), t.Qty, t.Price, t.PnL, t.Time,
	)
	if err != nil {
		return fmt.Errorf("insert trade for order %s: %w", t.OrderID, err)
	}
	if err := s.updateAccount(tx, o.AccountID, availableCapital, realisedPnL); err != nil {
		return err
	}
	if err := s.upsertPosition(tx, o.AccountID, pos); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) Trades(accountID string, limit int) ([]order.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT order_id, account_id, symbol, side, qty, price, pnl, time
		FROM trades WHERE account_id = ? ORDER BY id DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	defer rows.Close()

	var out []order.Trade
	for rows.Next() {
		var t order.Trade
		var side string
		if err := rows.Scan(&t.OrderID, &t.AccountID, &t.Symbol, &side, &t.Qty, &t.Price, &t.PnL, &t.Time); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = market.Side(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) InsertPnLSnapshot(accountID string, p market.PnL) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO pnl_history
		(account_id, realised, unrealised, total, capital, available_capital, used_margin, trade_count, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		accountID, p.Realised, p.Unrealised, p.Total, p.Capital, p.AvailableCapital,
		p.UsedMargin, p.TradeCount, p.Time,
	)
	if err != nil {
		return fmt.Errorf("insert pnl snapshot: %w", err)
	}
	return nil
}

func (s *SQLite) PnLHistory(accountID string, limit int) ([]market.PnL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT realised, unrealised, total, capital, available_capital, used_margin, trade_count, time
		FROM pnl_history WHERE account_id = ? ORDER BY id DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("load pnl history: %w", err)
	}
	defer rows.Close()

	var out []market.PnL
	for rows.Next() {
		var p market.PnL
		if err := rows.Scan(&p.Realised, &p.Unrealised, &p.Total, &p.Capital, &p.AvailableCapital, &p.UsedMargin, &p.TradeCount, &p.Time); err != nil {
			return nil, fmt.Errorf("scan pnl snapshot: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
