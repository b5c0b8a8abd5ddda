package engine

import (
	"sync"

	"github.com/optiview/adminrelay/internal/models"
)

// itemState tracks where one submitted item sits in its lifecycle. An item
// leaves statePending exactly once; rate-limited items stay pending for the
// next wave.
type itemState int

const (
	statePending itemState = iota
	stateSucceeded
	stateFailed
)

// collector is the mutex-guarded accumulator shared by one batch invocation.
// All fan-out goroutines of a wave report here; nothing is captured in
// closure-local slices.
type collector struct {
	mu sync.Mutex

	states   []itemState
	outcomes []models.OutcomeRecord

	errors           []string
	notFound         bool
	featureLimit     bool
	permissionDenied bool
	permissionMsg    string
	notFoundMsg      string
	featureLimitMsg  string

	successes   int
	rateLimited []int // indexes left pending by the current wave
}

func newCollector(n int) *collector {
	return &collector{
		states:   make([]itemState, n),
		outcomes: make([]models.OutcomeRecord, n),
	}
}

// succeed resolves item i with the remote identifiers of the created,
// updated, or deleted resource.
func (c *collector) succeed(i int, ids, names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states[i] != statePending {
		return
	}
	c.states[i] = stateSucceeded
	c.successes++
	c.outcomes[i] = models.OutcomeRecord{ID: ids, Name: names, Success: true}
}

// fail resolves item i as a generic failure and records its message.
func (c *collector) fail(i int, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states[i] != statePending {
		return
	}
	c.states[i] = stateFailed
	c.errors = append(c.errors, msg)
	c.outcomes[i] = models.OutcomeRecord{Success: false, Message: msg}
}

// failNotFound resolves item i as a terminal not-found.
func (c *collector) failNotFound(i int, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states[i] != statePending {
		return
	}
	c.states[i] = stateFailed
	c.notFound = true
	if c.notFoundMsg == "" {
		c.notFoundMsg = msg
	}
	c.outcomes[i] = models.OutcomeRecord{Success: false, NotFound: true, Message: msg}
}

// failFeatureLimit resolves item i as a terminal remote feature-limit hit.
func (c *collector) failFeatureLimit(i int, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states[i] != statePending {
		return
	}
	c.states[i] = stateFailed
	c.featureLimit = true
	if c.featureLimitMsg == "" {
		c.featureLimitMsg = msg
	}
	c.outcomes[i] = models.OutcomeRecord{Success: false, FeatureLimitReached: true, Message: msg}
}

// failPermissionDenied resolves item i and flags the whole batch for abort.
// No further wave runs once this flag is up.
func (c *collector) failPermissionDenied(i int, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states[i] == statePending {
		c.states[i] = stateFailed
		c.outcomes[i] = models.OutcomeRecord{Success: false, Message: msg}
	}
	c.permissionDenied = true
	if c.permissionMsg == "" {
		c.permissionMsg = msg
	}
	c.errors = append(c.errors, msg)
}

// markRateLimited keeps item i pending for the next wave.
func (c *collector) markRateLimited(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states[i] != statePending {
		return
	}
	c.rateLimited = append(c.rateLimited, i)
}

// takeRateLimited returns the indexes the last wave left pending and resets
// the list for the next wave.
func (c *collector) takeRateLimited() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.rateLimited
	c.rateLimited = nil
	return out
}

// snapshot returns the batch-level view once all waves are done.
func (c *collector) snapshot() collectorView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return collectorView{
		outcomes:         append([]models.OutcomeRecord(nil), c.outcomes...),
		errors:           append([]string(nil), c.errors...),
		notFound:         c.notFound,
		featureLimit:     c.featureLimit,
		permissionDenied: c.permissionDenied,
		permissionMsg:    c.permissionMsg,
		notFoundMsg:      c.notFoundMsg,
		featureLimitMsg:  c.featureLimitMsg,
		successes:        c.successes,
	}
}

func (c *collector) successCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.successes
}

func (c *collector) batchAborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.permissionDenied
}

// collectorView is an immutable copy of the collector used to shape the
// response.
type collectorView struct {
	outcomes         []models.OutcomeRecord
	errors           []string
	notFound         bool
	featureLimit     bool
	permissionDenied bool
	permissionMsg    string
	notFoundMsg      string
	featureLimitMsg  string
	successes        int
}
