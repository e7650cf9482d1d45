// Package sim is the simulated exchange: a single worker goroutine that
// consumes submitted orders and replays a plausible venue against them,
// with latency, slippage, random rejection, and partial fills.
package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"paperdesk/broker"
	"paperdesk/logger"
	"paperdesk/market"
	"paperdesk/order"

	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("exchange queue full")

// Config tunes the simulated venue. Zero values fall back to Default().
type Config struct {
	MinLatency    time.Duration
	MaxLatency    time.Duration
	SlippagePct   float64 // max adverse slippage, e.g. 0.05 for 0.05%
	RejectPct     float64 // probability of post-ACK rejection, e.g. 5 for 5%
	PartialPct    float64 // probability a qty>PartialMinQty order part-fills first
	PartialMinQty int64
	QueueSize     int
	Seed          int64 // 0 seeds from the clock
}

func DefaultConfig() Config {
	return Config{
		MinLatency:    200 * time.Millisecond,
		MaxLatency:    800 * time.Millisecond,
		SlippagePct:   0.05,
		RejectPct:     5,
		PartialPct:    30,
		PartialMinQty: 10,
		QueueSize:     256,
	}
}

// Exchange simulates order execution. All randomness lives on one rand
// source owned by the worker goroutine, so a fixed Seed gives a fully
// deterministic run.
type Exchange struct {
	cfg    Config
	update broker.UpdateFunc
	log    *logger.Logger

	queue chan order.Order
	done  chan struct{}
	wg    sync.WaitGroup

	mu        sync.Mutex
	cancelled map[string]bool
	pending   map[string]bool
}

func New(cfg Config, update broker.UpdateFunc, log *logger.Logger) *Exchange {
	def := DefaultConfig()
	if cfg.MinLatency <= 0 {
		cfg.MinLatency = def.MinLatency
	}
	if cfg.MaxLatency < cfg.MinLatency {
		cfg.MaxLatency = cfg.MinLatency
	}
	if cfg.PartialMinQty <= 0 {
		cfg.PartialMinQty = def.PartialMinQty
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}

	return &Exchange{
		cfg:       cfg,
		update:    update,
		log:       log,
		queue:     make(chan order.Order, cfg.QueueSize),
		done:      make(chan struct{}),
		cancelled: make(map[string]bool),
		pending:   make(map[string]bool),
	}
}

// Start launches the execution worker.
func (e *Exchange) Start() {
	e.wg.Add(1)
	go e.run()
}

// Stop drains nothing: orders still queued are abandoned, which is what a
// venue disconnect looks like to the manager (stale NEW orders time out).
func (e *Exchange) Stop() {
	close(e.done)
	e.wg.Wait()
}

func (e *Exchange) Submit(o order.Order) error {
	e.mu.Lock()
	e.pending[o.ID] = true
	e.mu.Unlock()

	select {
	case e.queue <- o:
		return nil
	default:
		e.mu.Lock()
		delete(e.pending, o.ID)
		e.mu.Unlock()
		return fmt.Errorf("submit %s: %w", o.ID, ErrQueueFull)
	}
}

func (e *Exchange) Cancel(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.pending[orderID] {
		return false
	}
	e.cancelled[orderID] = true
	return true
}

func (e *Exchange) run() {
	defer e.wg.Done()

	seed := e.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	for {
		select {
		case <-e.done:
			return
		case o := <-e.queue:
			e.execute(rng, o)
		}
	}
}

func (e *Exchange) execute(rng *rand.Rand, o order.Order) {
	defer func() {
		e.mu.Lock()
		delete(e.pending, o.ID)
		delete(e.cancelled, o.ID)
		e.mu.Unlock()
	}()

	if !e.sleep(rng) {
		return
	}

	if e.isCancelled(o.ID) {
		e.update(broker.OrderUpdate{OrderID: o.ID, Status: order.StatusCancelled, Reason: "cancelled before ack"})
		return
	}

	if o.Price <= 0 {
		e.update(broker.OrderUpdate{OrderID: o.ID, Status: order.StatusRejected, Reason: "no market price"})
		return
	}
	if rng.Float64()*100 < e.cfg.RejectPct {
		e.update(broker.OrderUpdate{OrderID: o.ID, Status: order.StatusRejected, Reason: "venue rejected"})
		return
	}

	e.update(broker.OrderUpdate{OrderID: o.ID, Status: order.StatusAck})

	fillPrice := e.slip(rng, o)

	if o.Qty > e.cfg.PartialMinQty && rng.Float64()*100 < e.cfg.PartialPct {
		// Fill 30-70% first, the remainder after another latency beat.
		partial := o.Qty * (30 + rng.Int63n(41)) / 100
		if partial < 1 {
			partial = 1
		}
		e.update(broker.OrderUpdate{OrderID: o.ID, Status: order.StatusPartial, FilledQty: partial, AvgPrice: fillPrice})

		if !e.sleep(rng) {
			return
		}
		if e.isCancelled(o.ID) {
			// Remainder cancelled; what filled stays filled.
			e.update(broker.OrderUpdate{OrderID: o.ID, Status: order.StatusCancelled, FilledQty: partial, AvgPrice: fillPrice, Reason: "cancelled after partial"})
			return
		}
	}

	e.update(broker.OrderUpdate{OrderID: o.ID, Status: order.StatusFilled, FilledQty: o.Qty, AvgPrice: fillPrice})
	e.log.Debug("order filled",
		zap.String("order_id", o.ID),
		zap.Int64("qty", o.Qty),
		zap.Float64("price", fillPrice),
	)
}

// slip moves the fill price against the order by up to SlippagePct.
func (e *Exchange) slip(rng *rand.Rand, o order.Order) float64 {
	frac := rng.Float64() * e.cfg.SlippagePct / 100
	if o.Side == market.Sell {
		return o.Price * (1 - frac)
	}
	return o.Price * (1 + frac)
}

// sleep waits a random latency; false means the exchange is stopping.
func (e *Exchange) sleep(rng *rand.Rand) bool {
	span := e.cfg.MaxLatency - e.cfg.MinLatency
	d := e.cfg.MinLatency
	if span > 0 {
		d += time.Duration(rng.Int63n(int64(span)))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-e.done:
		return false
	case <-t.C:
		return true
	}
}

func (e *Exchange) isCancelled(orderID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled[orderID]
}
