package engine

import (
	"fmt"
	"sync"

	"paperdesk/event"
	"paperdesk/logger"
	"paperdesk/store"

	"go.uber.org/zap"
)

// State is the engine lifecycle state. It gates strategy evaluation only:
// market data, open-order bookkeeping, and risk enforcement keep running
// in every state.
type State string

const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
	StatePaused  State = "PAUSED"
	StateStopped State = "STOPPED"
)

var ErrBadStateChange = fmt.Errorf("invalid engine state change")

// Controller owns the engine state and persists every change so a
// restart resumes where the operator left it. It is the single running
// authority: no consumer keeps its own flag.
type Controller struct {
	mu        sync.Mutex
	state     State
	st        store.Store
	accountID string
	bus       *event.Bus
	log       *logger.Logger
}

// NewController restores the persisted state. A previously RUNNING or
// PAUSED engine resumes RUNNING: the operator turned it on and a process
// restart is not an operator decision to stop trading. STOPPED stays
// STOPPED.
func NewController(st store.Store, accountID string, bus *event.Bus, log *logger.Logger) (*Controller, error) {
	saved, err := st.EngineState(accountID)
	if err != nil {
		return nil, fmt.Errorf("load engine state: %w", err)
	}

	state := StateIdle
	switch State(saved) {
	case StateRunning, StatePaused:
		state = StateRunning
	case StateStopped:
		state = StateStopped
	}

	c := &Controller{state: state, st: st, accountID: accountID, bus: bus, log: log}
	if State(saved) != state {
		if err := st.SetEngineState(accountID, string(state)); err != nil {
			return nil, fmt.Errorf("persist engine state: %w", err)
		}
	}
	log.Info("engine controller restored", zap.String("state", string(state)))
	return c, nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsRunning reports whether strategies may produce signals.
func (c *Controller) IsRunning() bool {
	return c.State() == StateRunning
}

func (c *Controller) Start() error {
	return c.transition(StateRunning, StateIdle, StateStopped, StatePaused)
}

// Stop is idempotent: stopping a stopped engine succeeds. An engine that
// was never started cannot be stopped.
func (c *Controller) Stop() error {
	return c.transition(StateStopped, StateRunning, StatePaused, StateStopped)
}

func (c *Controller) Pause() error {
	return c.transition(StatePaused, StateRunning)
}

// Reset forces IDLE from any state.
func (c *Controller) Reset() error {
	return c.force(StateIdle, "reset")
}

// EmergencyStop forces STOPPED from any state.
func (c *Controller) EmergencyStop(reason string) error {
	return c.force(StateStopped, reason)
}

func (c *Controller) transition(to State, from ...State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	allowed := false
	for _, f := range from {
		if c.state == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrBadStateChange, c.state, to)
	}
	return c.setLocked(to, "")
}

func (c *Controller) force(to State, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(to, reason)
}

func (c *Controller) setLocked(to State, reason string) error {
	prev := c.state
	c.state = to
	if err := c.st.SetEngineState(c.accountID, string(to)); err != nil {
		c.state = prev
		return fmt.Errorf("persist engine state: %w", err)
	}

	if reason != "" {
		c.log.Warn("engine state forced",
			zap.String("from", string(prev)),
			zap.String("to", string(to)),
			zap.String("reason", reason),
		)
	} else {
		c.log.Info("engine state changed", zap.String("from", string(prev)), zap.String("to", string(to)))
	}
	c.bus.Publish(event.TypeEngineState, string(to))
	return nil
}
