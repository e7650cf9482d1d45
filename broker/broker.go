// Package broker defines the exchange contract the order manager speaks.
// The engine never assumes fills are synchronous: an exchange accepts the
// order and reports progress later through the update callback.
package broker

import (
	"paperdesk/order"
)

// OrderUpdate is one lifecycle event reported by an exchange. FilledQty
// and AvgPrice are cumulative for the order, not per-event deltas.
type OrderUpdate struct {
	OrderID   string
	Status    order.Status
	FilledQty int64
	AvgPrice  float64
	Reason    string
}

// UpdateFunc receives exchange events. It is invoked from the exchange's
// own goroutine and must not block.
type UpdateFunc func(OrderUpdate)

// Exchange accepts orders and reports their fate asynchronously.
type Exchange interface {
	// Submit enqueues the order. An error means the exchange refused to
	// accept it at all; rejection after acceptance arrives as an update.
	Submit(o order.Order) error

	// Cancel attempts to cancel a pending order. It reports whether the
	// order was still cancellable when the request landed.
	Cancel(orderID string) bool
}
