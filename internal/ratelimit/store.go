package ratelimit

import (
	"fmt"
	"sync"
)

// Store hands out one shared Limiter per key so that every concurrent batch
// for the same user draws from the same token budget. Keys follow the
// "user:<id>" convention; all callers with the same key get the same bucket.
type Store struct {
	rate  float64
	burst float64

	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewStore creates a limiter store. Every limiter it creates shares the same
// rate and burst configuration.
func NewStore(tokensPerSecond, burstSize float64) *Store {
	return &Store{
		rate:     tokensPerSecond,
		burst:    burstSize,
		limiters: make(map[string]*Limiter),
	}
}

// UserKey builds the store key for a user id.
func UserKey(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}

// Get returns the limiter for key, creating it on first use.
func (s *Store) Get(key string) *Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.limiters[key]; ok {
		return l
	}
	l := NewLimiter(s.rate, s.burst)
	s.limiters[key] = l
	return l
}

// Len returns the number of distinct keys with an active limiter.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}
