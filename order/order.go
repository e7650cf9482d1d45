// Package order defines the order and trade records and the order status
// state machine.
package order

import (
	"errors"
	"time"

	"paperdesk/market"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusNew       Status = "NEW"
	StatusAck       Status = "ACK"
	StatusPartial   Status = "PARTIAL"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

// Type is the order execution type. Only market orders exist today.
type Type string

const TypeMarket Type = "MARKET"

var (
	// ErrInvalidTransition is returned when a requested status change is
	// not in the transition table. The order is left unchanged.
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrNotFound is returned when an order ID is unknown to both the
	// in-memory cache and the store.
	ErrNotFound = errors.New("order not found")
)

// transitions is the full set of legal status changes. Anything absent is
// rejected, including NEW -> FILLED directly: a fill must be preceded by
// an ACK even though a well-behaved exchange never skips it.
var transitions = map[Status]map[Status]bool{
	StatusNew: {
		StatusAck:       true,
		StatusRejected:  true,
		StatusCancelled: true,
	},
	StatusAck: {
		StatusPartial:   true,
		StatusFilled:    true,
		StatusCancelled: true,
		StatusRejected:  true,
	},
	StatusPartial: {
		StatusPartial:   true,
		StatusFilled:    true,
		StatusCancelled: true,
	},
}

// CanTransition reports whether s -> to is a legal status change.
func (s Status) CanTransition(to Status) bool {
	return transitions[s][to]
}

// Open reports whether the order can still receive exchange updates or be
// cancelled.
func (s Status) Open() bool {
	switch s {
	case StatusNew, StatusAck, StatusPartial:
		return true
	}
	return false
}

// Terminal reports whether the order has reached a final state.
func (s Status) Terminal() bool {
	return !s.Open()
}

// Order is the persisted order record. Orders are never deleted; they form
// the audit trail alongside trades.
type Order struct {
	ID         string
	AccountID  string
	Symbol     string
	Side       market.Side
	Qty        int64
	Price      float64
	Type       Type
	Status     Status
	FilledQty  int64
	AvgPrice   float64
	Strategy   string
	StopLoss   float64
	TakeProfit float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Retries    int
}

// Trade is an immutable fill record, the sole ground truth for realised
// P&L. Exactly one row is written per fill event, in the same transaction
// as the order-status update that produced it.
type Trade struct {
	OrderID   string
	AccountID string
	Symbol    string
	Side      market.Side
	Qty       int64
	Price     float64
	PnL       float64
	Time      time.Time
}
