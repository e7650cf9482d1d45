// Package feed supplies market ticks to the engine. The core consumes a
// plain receive channel so a feed can be anything that produces ticks.
package feed

import (
	"context"

	"paperdesk/market"
)

// Feed produces ticks until its context is cancelled.
type Feed interface {
	// Ticks returns the channel the feed delivers on. The channel is
	// closed when the feed stops.
	Ticks() <-chan market.Tick

	// Run drives the feed; it blocks until ctx is done.
	Run(ctx context.Context) error
}
