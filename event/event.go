// Package event is the broadcast fan-out between the engine and its
// consumers (UI feeds, logs). Publish never blocks: a slow consumer
// drops events instead of stalling the trading loop.
package event

import (
	"sync"
	"time"

	"paperdesk/logger"

	"go.uber.org/zap"
)

type Type string

const (
	TypeTick           Type = "tick"
	TypeSignal         Type = "signal"
	TypeOrderUpdate    Type = "order_update"
	TypePositionUpdate Type = "position_update"
	TypePnLUpdate      Type = "pnl_update"
	TypeEngineState    Type = "engine_state"
	TypeRiskRejected   Type = "risk_rejected"
)

// Event is one broadcast payload. Data holds the domain value for the
// type (market.Tick, broker.OrderUpdate, market.PnL, ...).
type Event struct {
	Type Type
	Time time.Time
	Data any
}

// Bus is a buffered single-channel fan-out per subscriber.
type Bus struct {
	mu     sync.Mutex
	subs   []chan Event
	buffer int
	closed bool
	log    *logger.Logger
}

func NewBus(buffer int, log *logger.Logger) *Bus {
	if buffer <= 0 {
		buffer = 1000
	}
	return &Bus{buffer: buffer, log: log}
}

// Publish delivers to every subscriber without blocking. A full
// subscriber buffer drops the event for that subscriber only.
func (b *Bus) Publish(typ Type, data any) {
	ev := Event{Type: typ, Time: time.Now().UTC(), Data: data}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn("event dropped, subscriber buffer full", zap.String("type", string(typ)))
		}
	}
}

// Subscribe registers a new consumer. The returned channel is closed
// when the bus closes.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
