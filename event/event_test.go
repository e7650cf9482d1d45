package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperdesk/logger"
)

func TestPublishFanOut(t *testing.T) {
	t.Parallel()
	b := NewBus(4, logger.NewNop())

	a := b.Subscribe()
	c := b.Subscribe()

	b.Publish(TypeTick, "payload")

	ev := <-a
	assert.Equal(t, TypeTick, ev.Type)
	assert.Equal(t, "payload", ev.Data)
	assert.False(t, ev.Time.IsZero())

	ev = <-c
	assert.Equal(t, "payload", ev.Data)
}

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()
	b := NewBus(1, logger.NewNop())

	slow := b.Subscribe()
	b.Publish(TypeTick, 1)
	b.Publish(TypeTick, 2) // dropped for slow, must not block

	ev := <-slow
	assert.Equal(t, 1, ev.Data)
	select {
	case ev := <-slow:
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	t.Parallel()
	b := NewBus(4, logger.NewNop())

	ch := b.Subscribe()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	// Publish and Close after close are no-ops.
	b.Publish(TypeTick, 1)
	b.Close()

	late := b.Subscribe()
	_, ok = <-late
	require.False(t, ok)
}
