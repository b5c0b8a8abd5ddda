package cache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiview/adminrelay/internal/events"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestKey(t *testing.T) {
	assert.Equal(t, "ga:audiences:userId:42", Key("ga", "audiences", "42"))
	assert.Equal(t, "ga:audiences:propertyId:properties/9", PropertyKey("ga", "audiences", "properties/9"))
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Set("k", []byte(`["a","b"]`), TTLDefault))
	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, string(got))

	require.NoError(t, s.Delete("k"))
	_, err = s.Get("k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreDeleteMissingKey(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Delete("never-set"))
}

func TestStoreTTLExpiry(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Set("short", []byte("v"), 50*time.Millisecond))
	time.Sleep(120 * time.Millisecond)

	_, err := s.Get("short")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGatewayInvalidatePublishes(t *testing.T) {
	s := newTestStore(t)
	bus := events.NewEventBus(16)
	t.Cleanup(bus.Close)
	ch := bus.Subscribe(events.EventCacheInvalidated)

	g := NewGateway(s, bus, zerolog.Nop())
	require.NoError(t, s.Set("ga:audiences:userId:42", []byte("[]"), 0))

	g.Invalidate("ga:audiences:userId:42")

	_, err := s.Get("ga:audiences:userId:42")
	assert.ErrorIs(t, err, ErrNotFound)

	select {
	case ev := <-ch:
		inv, ok := ev.(*events.CacheInvalidatedEvent)
		require.True(t, ok)
		assert.Equal(t, "ga:audiences:userId:42", inv.Key)
	case <-time.After(time.Second):
		t.Fatal("no cache-invalidated event published")
	}
}

func TestGatewayNotify(t *testing.T) {
	s := newTestStore(t)
	bus := events.NewEventBus(16)
	t.Cleanup(bus.Close)
	ch := bus.Subscribe(events.EventRevalidate)

	NewGateway(s, bus, zerolog.Nop()).Notify("42", "/audiences", "/properties")

	var paths []string
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			rev, ok := ev.(*events.RevalidateEvent)
			require.True(t, ok)
			assert.Equal(t, "42", rev.UserID)
			paths = append(paths, rev.Path)
		case <-time.After(time.Second):
			t.Fatal("missing revalidate event")
		}
	}
	assert.ElementsMatch(t, []string{"/audiences", "/properties"}, paths)
}
