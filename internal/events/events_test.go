package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewEventBus(8)
	defer bus.Close()

	reval := bus.Subscribe(EventRevalidate)
	inval := bus.Subscribe(EventCacheInvalidated)

	bus.PublishRevalidate("u1", "/audiences")

	select {
	case ev := <-reval:
		rev, ok := ev.(*RevalidateEvent)
		require.True(t, ok)
		assert.Equal(t, "u1", rev.UserID)
		assert.Equal(t, "/audiences", rev.Path)
	case <-time.After(time.Second):
		t.Fatal("revalidate subscriber did not receive the event")
	}

	select {
	case <-inval:
		t.Fatal("cache subscriber received a revalidate event")
	default:
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus(8)
	defer bus.Close()

	all := bus.SubscribeAll()
	bus.PublishRevalidate("u1", "/a")
	bus.PublishCacheInvalidated("ga:audiences:userId:u1")

	types := make([]EventType, 0, 2)
	for i := 0; i < 2; i++ {
		select {
		case ev := <-all:
			types = append(types, ev.Type())
		case <-time.After(time.Second):
			t.Fatal("missing event on all-subscriber")
		}
	}
	assert.ElementsMatch(t, []EventType{EventRevalidate, EventCacheInvalidated}, types)
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	_ = bus.Subscribe(EventRevalidate)
	bus.PublishRevalidate("u1", "/a")
	bus.PublishRevalidate("u1", "/b") // buffer of one is full now

	assert.Equal(t, int64(1), bus.DroppedEventCount())
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	bus := NewEventBus(4)
	ch := bus.Subscribe(EventRevalidate)
	bus.Close()

	bus.PublishRevalidate("u1", "/a")

	_, open := <-ch
	assert.False(t, open, "channels close with the bus")
	assert.NotPanics(t, bus.Close, "double close is safe")
}
