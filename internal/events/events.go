// Package events provides the in-process pub/sub bus that carries cache and
// revalidation signals to the presentation layer.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	// EventRevalidate tells a subscriber that a view path renders stale data
	// and must be refetched.
	EventRevalidate EventType = "revalidate"

	// EventCacheInvalidated records that a cache key was deleted after a
	// successful mutation.
	EventCacheInvalidated EventType = "cache_invalidated"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// RevalidateEvent signals that a presentation-layer view is stale.
type RevalidateEvent struct {
	BaseEvent
	UserID string
	Path   string // view path, e.g. "/settings/audiences"
}

// CacheInvalidatedEvent records a cache key deletion.
type CacheInvalidatedEvent struct {
	BaseEvent
	Key string
}

const (
	defaultBuffer = 1000
	maxBuffer     = 10000
)

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = defaultBuffer
	}
	if bufferSize > maxBuffer {
		bufferSize = maxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers. Non-blocking: a subscriber with
// a full buffer drops the event rather than stalling the mutation path.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// PublishRevalidate publishes a revalidation signal for one view path.
func (eb *EventBus) PublishRevalidate(userID, path string) {
	eb.Publish(&RevalidateEvent{
		BaseEvent: BaseEvent{EventType: EventRevalidate, Time: time.Now()},
		UserID:    userID,
		Path:      path,
	})
}

// PublishCacheInvalidated publishes a cache key deletion record.
func (eb *EventBus) PublishCacheInvalidated(key string) {
	eb.Publish(&CacheInvalidatedEvent{
		BaseEvent: BaseEvent{EventType: EventCacheInvalidated, Time: time.Now()},
		Key:       key,
	})
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range eb.all {
		close(ch)
	}
	eb.subscribers = make(map[EventType][]chan Event)
	eb.all = nil
}

// DroppedEventCount returns how many events were dropped due to full buffers.
func (eb *EventBus) DroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}
