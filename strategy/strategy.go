// Package strategy holds the signal producers. A strategy sees every
// tick and may emit at most one signal for it; the engine treats the
// output as untrusted and runs the full validation chain regardless.
package strategy

import (
	"fmt"
	"strings"

	"paperdesk/market"
)

// Strategy consumes ticks and occasionally fires a trade intent.
type Strategy interface {
	Name() string
	// OnTick returns a signal and true when the strategy fires.
	OnTick(tick market.Tick) (market.Signal, bool)
}

// Factory builds a fresh strategy instance from config values.
type Factory func(cfg map[string]float64) Strategy

var registry = make(map[string]Factory)

func Register(name string, f Factory) {
	registry[name] = f
}

// New constructs a registered strategy by name.
func New(name string, cfg map[string]float64) (Strategy, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (registered: %s)", name, strings.Join(Names(), ", "))
	}
	return f(cfg), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}

func cfgInt(cfg map[string]float64, key string, def int) int {
	if v, ok := cfg[key]; ok && v > 0 {
		return int(v)
	}
	return def
}

func cfgFloat(cfg map[string]float64, key string, def float64) float64 {
	if v, ok := cfg[key]; ok {
		return v
	}
	return def
}
