// Package ratelimit provides rate limiting for outbound admin-API calls using
// a token bucket algorithm, with one shared bucket per user key.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrWaitTimeout is returned by Wait when the bucket stays empty past the
// caller's timeout. It is the synthetic rate-limit signal that sends the
// caller into the retry/backoff path.
var ErrWaitTimeout = errors.New("rate limiter: timed out waiting for token")

// Limiter implements a token bucket rate limiter.
// It allows bursts up to maxTokens, then refills at refillRate tokens/second.
type Limiter struct {
	tokens       float64   // Current number of tokens available
	maxTokens    float64   // Maximum bucket capacity
	refillRate   float64   // Tokens added per second
	lastRefill   time.Time // Last time tokens were refilled
	lastWarnTime time.Time // Last time we warned about rate limiting
	mu           sync.Mutex
}

// NewLimiter creates a new token bucket limiter.
//
// Parameters:
//   - tokensPerSecond: rate at which tokens are added
//   - burstSize: maximum tokens that can accumulate (allows brief bursts)
func NewLimiter(tokensPerSecond, burstSize float64) *Limiter {
	return &Limiter{
		tokens:     burstSize, // Start with full bucket
		maxTokens:  burstSize,
		refillRate: tokensPerSecond,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available, the timeout elapses, or ctx is
// cancelled. A nil return means a token was consumed. ErrWaitTimeout means the
// bucket stayed empty for the whole timeout; callers must treat that as a
// rate-limit condition and enter the retry path rather than proceeding.
func (l *Limiter) Wait(ctx context.Context, timeout time.Duration) error {
	startTime := time.Now()

	if l.tryAcquire() {
		return nil
	}

	waitTime := l.timeUntilNextToken()
	if waitTime > 2*time.Second {
		l.mu.Lock()
		// Only warn every 10 seconds to avoid spam
		if time.Since(l.lastWarnTime) > 10*time.Second {
			log.Warn().Float64("wait_seconds", waitTime.Seconds()).Msg("rate limited, waiting for API capacity")
			l.lastWarnTime = time.Now()
		}
		l.mu.Unlock()
	}

	deadline := startTime.Add(timeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if l.tryAcquire() {
			return nil
		}

		waitDuration := l.timeUntilNextToken()
		if timeout > 0 && time.Now().Add(waitDuration).After(deadline) {
			return ErrWaitTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitDuration):
			// Loop again to try acquiring
		}
	}
}

// tryAcquire attempts to acquire one token without blocking.
func (l *Limiter) tryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()

	if l.tokens >= 1.0 {
		l.tokens -= 1.0
		return true
	}
	return false
}

// refillLocked adds tokens for the elapsed time. Caller holds l.mu.
func (l *Limiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	l.tokens += elapsed * l.refillRate
	if l.tokens > l.maxTokens {
		l.tokens = l.maxTokens
	}
	l.lastRefill = now
}

// timeUntilNextToken calculates how long until at least one token is available.
func (l *Limiter) timeUntilNextToken() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	tokensNeeded := 1.0 - l.tokens
	if tokensNeeded <= 0 {
		return 0
	}
	secondsNeeded := tokensNeeded / l.refillRate
	return time.Duration(secondsNeeded * float64(time.Second))
}

// Remaining returns the current number of whole tokens left in the bucket.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()
	return int(l.tokens)
}
