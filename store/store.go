// Package store is the durability boundary: accounts, positions, orders,
// trades, and P&L snapshots. The capital ledger and the order manager are
// its only writers; no in-memory state is authoritative over it.
package store

import (
	"errors"
	"time"

	"paperdesk/market"
	"paperdesk/order"
)

// ErrAccountNotFound is returned by Account when no row exists. Callers
// that want lazy creation use EnsureAccount instead.
var ErrAccountNotFound = errors.New("account not found")

// Account is the persisted per-identity capital row.
type Account struct {
	ID               string
	InitialCapital   float64
	AvailableCapital float64
	RealisedPnL      float64
	DailyLossHalted  bool
	EngineState      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Store is the persistence contract for the engine. Implementations must
// serialize writes so concurrent fills never interleave partially.
type Store interface {
	// EnsureAccount returns the account row, creating it at
	// initialCapital if absent. An existing row is returned as-is:
	// capital is never reset on restart.
	EnsureAccount(accountID string, initialCapital float64) (Account, error)
	Account(accountID string) (Account, error)
	UpdateAccount(accountID string, availableCapital, realisedPnL float64) error
	SetDailyLossHalted(accountID string, halted bool) error
	SetEngineState(accountID, state string) error
	EngineState(accountID string) (string, error)
	// ResetAccount restores capital to initial and clears positions.
	// Only invoked by an explicit operator action, never on boot.
	ResetAccount(accountID string, initialCapital float64) error

	// UpsertPosition writes a position row; a zero quantity deletes it.
	UpsertPosition(accountID string, pos market.Position) error
	Positions(accountID string) ([]market.Position, error)
	// Position returns a FLAT stub when no row exists.
	Position(accountID, symbol string) (market.Position, error)

	InsertOrder(o order.Order) error
	UpdateOrder(o order.Order) error
	Order(orderID string) (order.Order, error)
	Orders(limit int) ([]order.Order, error)
	OpenOrders() ([]order.Order, error)

	// CommitFill persists the filled order fields, the trade row, the
	// account's capital figures, and the resulting position in one
	// transaction. Either all land or none do; a trade without its
	// capital effect (or vice versa) is permanent ledger drift.
	CommitFill(o order.Order, t order.Trade, availableCapital, realisedPnL float64, pos market.Position) error
	Trades(accountID string, limit int) ([]order.Trade, error)

	InsertPnLSnapshot(accountID string, p market.PnL) error
	PnLHistory(accountID string, limit int) ([]market.PnL, error)

	Close() error
}
