package market

import (
	"errors"
	"sync"
)

// ErrNoTick is returned when a symbol has never received a tick.
var ErrNoTick = errors.New("no tick for symbol")

// TickStore keeps the most recent tick per symbol. Written by the feed
// goroutine, read by the engine loop and API callers.
type TickStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewTickStore() *TickStore {
	return &TickStore{ticks: make(map[string]Tick)}
}

func (ts *TickStore) Set(t Tick) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.ticks[t.Symbol] = t
}

func (ts *TickStore) Get(symbol string) (Tick, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.ticks[symbol]
	if !ok {
		return Tick{}, ErrNoTick
	}
	return t, nil
}

// Prices returns a snapshot of the latest price per symbol, the shape the
// SL/TP check and the unrealised P&L computation consume.
func (ts *TickStore) Prices() map[string]float64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make(map[string]float64, len(ts.ticks))
	for sym, t := range ts.ticks {
		out[sym] = t.Price
	}
	return out
}
