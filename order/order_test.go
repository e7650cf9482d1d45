package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	allowed := []struct{ from, to Status }{
		{StatusNew, StatusAck},
		{StatusNew, StatusRejected},
		{StatusNew, StatusCancelled},
		{StatusAck, StatusPartial},
		{StatusAck, StatusFilled},
		{StatusAck, StatusCancelled},
		{StatusAck, StatusRejected},
		{StatusPartial, StatusPartial},
		{StatusPartial, StatusFilled},
		{StatusPartial, StatusCancelled},
	}
	for _, tr := range allowed {
		assert.True(t, tr.from.CanTransition(tr.to), "%s -> %s should be allowed", tr.from, tr.to)
	}
}

func TestTransitionTableClosure(t *testing.T) {
	t.Parallel()

	all := []Status{StatusNew, StatusAck, StatusPartial, StatusFilled, StatusCancelled, StatusRejected}
	allowed := map[[2]Status]bool{
		{StatusNew, StatusAck}:           true,
		{StatusNew, StatusRejected}:      true,
		{StatusNew, StatusCancelled}:     true,
		{StatusAck, StatusPartial}:       true,
		{StatusAck, StatusFilled}:        true,
		{StatusAck, StatusCancelled}:     true,
		{StatusAck, StatusRejected}:      true,
		{StatusPartial, StatusPartial}:   true,
		{StatusPartial, StatusFilled}:    true,
		{StatusPartial, StatusCancelled}: true,
	}

	// Every pair not explicitly allowed must be rejected, in particular
	// NEW -> FILLED and anything out of a terminal state.
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestStatusOpenTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, StatusNew.Open())
	assert.True(t, StatusAck.Open())
	assert.True(t, StatusPartial.Open())
	assert.True(t, StatusFilled.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusRejected.Terminal())
}
