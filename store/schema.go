// store/schema.go
package store

const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	account_id TEXT PRIMARY KEY,
	initial_capital REAL NOT NULL,
	available_capital REAL NOT NULL,
	realised_pnl REAL NOT NULL DEFAULT 0,
	daily_loss_halted INTEGER NOT NULL DEFAULT 0,
	engine_state TEXT NOT NULL DEFAULT 'IDLE',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	account_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	qty INTEGER NOT NULL,
	avg_price REAL NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (account_id, symbol)
);

CREATE TABLE IF NOT EXISTS orders (
	order_id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	qty INTEGER NOT NULL,
	price REAL NOT NULL,
	order_type TEXT NOT NULL,
	status TEXT NOT NULL,
	filled_qty INTEGER NOT NULL DEFAULT 0,
	avg_price REAL NOT NULL DEFAULT 0,
	strategy TEXT NOT NULL DEFAULT '',
	stop_loss REAL NOT NULL DEFAULT 0,
	take_profit REAL NOT NULL DEFAULT 0,
	retries INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);

CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	qty INTEGER NOT NULL,
	price REAL NOT NULL,
	pnl REAL NOT NULL DEFAULT 0,
	time DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_account ON trades(account_id);

CREATE TABLE IF NOT EXISTS pnl_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id TEXT NOT NULL,
	realised REAL NOT NULL,
	unrealised REAL NOT NULL,
	total REAL NOT NULL,
	capital REAL NOT NULL,
	available_capital REAL NOT NULL,
	used_margin REAL NOT NULL,
	trade_count INTEGER NOT NULL,
	time DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pnl_history_account ON pnl_history(account_id, time);
`
