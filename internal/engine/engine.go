// Package engine drives bulk create/update/delete batches against the remote
// admin API: one generic orchestrator, one adapter per resource type.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/optiview/adminrelay/internal/admin"
	"github.com/optiview/adminrelay/internal/cache"
	"github.com/optiview/adminrelay/internal/config"
	"github.com/optiview/adminrelay/internal/metrics"
	"github.com/optiview/adminrelay/internal/models"
	"github.com/optiview/adminrelay/internal/quota"
	"github.com/optiview/adminrelay/internal/ratelimit"
	"github.com/optiview/adminrelay/internal/scheduler"
	"github.com/optiview/adminrelay/internal/validate"
)

// Adapter supplies the per-resource-type pieces the generic engine needs:
// paths, body shapes, keys, and labels. Everything else — quota, rate
// limiting, retries, classification, aggregation, cache invalidation — is the
// engine's.
type Adapter[D any] interface {
	// Resource is the collection segment ("audiences"), used for cache keys,
	// metrics labels, and messages.
	Resource() string

	// Feature is the quota-ledger feature name.
	Feature() string

	// ViewPaths lists the presentation-layer views to revalidate after a
	// successful mutation.
	ViewPaths() []string

	// NaturalKey is the duplicate-detection identity of a descriptor.
	NaturalKey(op models.Operation, d D) string

	// Label names the item in error messages.
	Label(d D) string

	// Validate performs structural validation for the given operation.
	Validate(op models.Operation, d D) error

	// CreatePath is the collection path POSTed to for creation.
	CreatePath(d D) string

	// RemoteName is the full resource path used for PATCH and DELETE.
	RemoteName(d D) string

	// Body maps the descriptor to the outbound request body. Not called for
	// deletes.
	Body(op models.Operation, d D) (any, error)

	// UpdateMask lists the field paths an update touches.
	UpdateMask(d D) []string
}

// Executor is the outbound call surface the engine drives. *admin.Client
// satisfies it.
type Executor interface {
	Create(ctx context.Context, path string, body any) (*admin.Resource, error)
	Update(ctx context.Context, name string, body any, mask []string) (*admin.Resource, error)
	Delete(ctx context.Context, name string) error
}

// Engine owns the shared collaborators of every batch invocation.
type Engine struct {
	exec     Executor
	ledger   *quota.Ledger
	limiters *ratelimit.Store
	sched    *scheduler.Scheduler
	gateway  *cache.Gateway

	domain      string
	waitTimeout time.Duration
	retry       config.RetryConfig
	log         zerolog.Logger
}

// New wires an engine.
func New(exec Executor, ledger *quota.Ledger, limiters *ratelimit.Store, sched *scheduler.Scheduler, gateway *cache.Gateway, cfg *config.Config, log zerolog.Logger) *Engine {
	return &Engine{
		exec:        exec,
		ledger:      ledger,
		limiters:    limiters,
		sched:       sched,
		gateway:     gateway,
		domain:      cfg.Storage.CacheDomain,
		waitTimeout: cfg.RateLimit.WaitTimeout,
		retry:       cfg.Retry,
		log:         log,
	}
}

// item is one not-yet-resolved batch entry. The index ties it back to the
// submission order.
type item[D any] struct {
	index int
	form  D
}

// Run executes one batch invocation for userID. Every submitted form is
// accounted for exactly once in the returned results (permission-denied
// aborts excepted, which void the results entirely).
func Run[D any](ctx context.Context, e *Engine, a Adapter[D], userID string, op models.Operation, forms []D) *models.BatchResponse {
	logger := e.log.With().
		Str("user", userID).
		Str("resource", a.Resource()).
		Str("operation", string(op)).
		Int("batch_size", len(forms)).
		Logger()

	if len(forms) == 0 {
		return &models.BatchResponse{Success: true, Errors: []string{}, Results: []models.OutcomeRecord{}}
	}

	// Duplicate detection by natural key, before validation, quota, or any
	// network work. A duplicate rejects the whole batch.
	seen := make(map[string]struct{}, len(forms))
	for _, form := range forms {
		key := a.NaturalKey(op, form)
		if _, dup := seen[key]; dup {
			msg := fmt.Sprintf("Duplicate %s found for %s", singular(a.Resource()), key)
			logger.Warn().Str("key", key).Msg("duplicate descriptor in batch")
			return &models.BatchResponse{
				Success: false,
				Errors:  []string{msg},
				Results: []models.OutcomeRecord{},
				Message: msg,
			}
		}
		seen[key] = struct{}{}
	}

	col := newCollector(len(forms))

	// Structural validation. Invalid items never reach the network and never
	// consume quota or rate budget.
	pending := make([]item[D], 0, len(forms))
	for i, form := range forms {
		if err := a.Validate(op, form); err != nil {
			msg := fmt.Sprintf("%s %q: %s", singular(a.Resource()), a.Label(form), validationMessage(err))
			col.fail(i, msg)
			continue
		}
		pending = append(pending, item[D]{index: i, form: form})
	}

	var check quota.Check
	if len(pending) > 0 {
		var rejected *models.BatchResponse
		check, rejected = gateQuota(ctx, e, a, col, userID, op, pending, logger)
		if rejected != nil {
			return rejected
		}
	}

	runWaves(ctx, e, a, col, userID, op, pending, check, logger)

	view := col.snapshot()

	// Any batch with at least one confirmed success invalidates the cached
	// listing and signals dependent views, before the response is built.
	if view.successes > 0 {
		invalidate(ctx, e, a, userID)
		e.gateway.Notify(userID, a.ViewPaths()...)
	}

	return buildResponse(view)
}

// gateQuota applies the two pre-network tier checks. A non-nil response means
// the whole batch was rejected with zero outbound calls.
func gateQuota[D any](ctx context.Context, e *Engine, a Adapter[D], col *collector, userID string, op models.Operation, pending []item[D], logger zerolog.Logger) (quota.Check, *models.BatchResponse) {
	check, err := e.ledger.CheckLimit(ctx, userID, a.Feature(), op)
	if errors.Is(err, quota.ErrNoTier) {
		msg := fmt.Sprintf("No %s tier configured for this account", a.Feature())
		for _, it := range pending {
			col.fail(it.index, msg)
		}
		return check, buildResponse(col.snapshot())
	}
	if err != nil {
		logger.Error().Err(err).Msg("tier limit check failed")
		msg := "Usage tier lookup failed"
		for _, it := range pending {
			col.fail(it.index, msg)
		}
		return check, buildResponse(col.snapshot())
	}

	if check.LimitReached {
		metrics.QuotaRejections.WithLabelValues(a.Feature(), string(op)).Inc()
		msg := fmt.Sprintf("%s limit reached (%d of %d used)", opNoun(op), check.Usage, check.Limit)
		for _, it := range pending {
			col.failFeatureLimit(it.index, msg)
		}
		logger.Warn().Int64("limit", check.Limit).Int64("usage", check.Usage).Msg("batch rejected, tier limit already reached")
		return check, buildResponse(col.snapshot())
	}

	if int64(len(pending)) > check.Available() {
		metrics.QuotaRejections.WithLabelValues(a.Feature(), string(op)).Inc()
		msg := fmt.Sprintf("%s limit allows only %d more %s; batch of %d rejected",
			opNoun(op), check.Available(), a.Resource(), len(pending))
		for _, it := range pending {
			col.failFeatureLimit(it.index, msg)
		}
		logger.Warn().Int64("available", check.Available()).Msg("batch rejected, exceeds remaining allowance")
		return check, buildResponse(col.snapshot())
	}

	return check, nil
}

// runWaves fans out all pending items, retrying rate-limited waves with
// exponential backoff and jitter. Waves never overlap: each one fully
// completes before the controller re-evaluates.
func runWaves[D any](ctx context.Context, e *Engine, a Adapter[D], col *collector, userID string, op models.Operation, pending []item[D], check quota.Check, logger zerolog.Logger) {
	limiter := e.limiters.Get(ratelimit.UserKey(userID))
	delay := e.retry.InitialDelay
	retries := 0

	for len(pending) > 0 {
		var wg sync.WaitGroup
		for _, it := range pending {
			wg.Add(1)
			go func(it item[D]) {
				defer wg.Done()
				runOne(ctx, e, a, col, limiter, op, it, check)
			}(it)
		}
		wg.Wait()

		if col.batchAborted() {
			logger.Warn().Msg("permission denied, aborting remaining retries for the batch")
			return
		}

		limitedIdx := col.takeRateLimited()
		if len(limitedIdx) == 0 {
			return
		}

		// Carry only the rate-limited items into the next wave.
		limited := make(map[int]struct{}, len(limitedIdx))
		for _, i := range limitedIdx {
			limited[i] = struct{}{}
		}
		next := pending[:0]
		for _, it := range pending {
			if _, ok := limited[it.index]; ok {
				next = append(next, it)
			}
		}
		pending = next

		if retries >= e.retry.MaxRetries {
			// Exhausted the retry budget: unresolved items are explicitly
			// failed rather than silently dropped from the results.
			msg := fmt.Sprintf("rate limited by the admin API after %d attempts", retries+1)
			for _, it := range pending {
				col.fail(it.index, msg)
			}
			logger.Warn().Int("unresolved", len(pending)).Msg("retry budget exhausted")
			return
		}

		// Defensive invalidation between waves keeps half-mutated listings
		// out of the cache while the batch is still in flight.
		if op != models.OpDelete && col.successCount() > 0 {
			invalidate(ctx, e, a, userID)
		}

		metrics.RetryWaves.WithLabelValues(a.Resource()).Inc()
		sleep := delay
		if e.retry.JitterMax > 0 {
			sleep += time.Duration(rand.Int63n(int64(e.retry.JitterMax)))
		}
		logger.Info().Dur("backoff", sleep).Int("wave", retries+1).Int("pending", len(pending)).Msg("rate limited, backing off before next wave")

		select {
		case <-ctx.Done():
			msg := "cancelled while backing off"
			for _, it := range pending {
				col.fail(it.index, msg)
			}
			return
		case <-time.After(sleep):
		}

		delay *= 2
		retries++
	}
}

// runOne pushes a single item through the rate limiter, the global scheduler,
// and the executor, then records its classified outcome.
func runOne[D any](ctx context.Context, e *Engine, a Adapter[D], col *collector, limiter *ratelimit.Limiter, op models.Operation, it item[D], check quota.Check) {
	if err := limiter.Wait(ctx, e.waitTimeout); err != nil {
		if errors.Is(err, ratelimit.ErrWaitTimeout) {
			// Zero tokens for the whole wait window: synthetic rate-limit
			// condition, retried with the next wave.
			col.markRateLimited(it.index)
			return
		}
		col.fail(it.index, fmt.Sprintf("%s %q: %s", singular(a.Resource()), a.Label(it.form), err))
		return
	}

	var (
		res     *admin.Resource
		callErr error
	)
	schedErr := e.sched.Do(ctx, func() error {
		metrics.InFlight.Inc()
		defer metrics.InFlight.Dec()

		switch op {
		case models.OpCreate:
			body, err := a.Body(op, it.form)
			if err != nil {
				return err
			}
			res, callErr = e.exec.Create(ctx, a.CreatePath(it.form), body)
		case models.OpUpdate:
			body, err := a.Body(op, it.form)
			if err != nil {
				return err
			}
			res, callErr = e.exec.Update(ctx, a.RemoteName(it.form), body, a.UpdateMask(it.form))
		case models.OpDelete:
			callErr = e.exec.Delete(ctx, a.RemoteName(it.form))
		}
		return nil
	})
	if schedErr != nil {
		callErr = schedErr
	}

	label := a.Label(it.form)

	if callErr == nil {
		metrics.OutboundRequests.WithLabelValues(string(op), a.Resource(), "success").Inc()
		if err := e.ledger.IncrementUsage(ctx, check.LedgerID, op); err != nil {
			// The remote mutation already happened; a failed counter bump is
			// an ops problem, not a batch failure.
			e.log.Error().Err(err).Str("ledger", check.LedgerID).Msg("usage increment failed after confirmed success")
		}
		ids, names := resourceIdentity(res, a.RemoteName(it.form), label)
		col.succeed(it.index, ids, names)
		return
	}

	class := admin.ClassOf(callErr)
	metrics.OutboundRequests.WithLabelValues(string(op), a.Resource(), class.String()).Inc()
	msg := fmt.Sprintf("%s %q: %s", singular(a.Resource()), label, remoteMessage(callErr))

	switch class {
	case admin.ClassRateLimited:
		col.markRateLimited(it.index)
	case admin.ClassNotFound:
		col.failNotFound(it.index, msg)
	case admin.ClassFeatureLimit:
		col.failFeatureLimit(it.index, msg)
	case admin.ClassPermissionDenied:
		col.failPermissionDenied(it.index, msg)
	default:
		col.fail(it.index, msg)
	}
}

// invalidate deletes the user's cached listing for this resource type, plus
// the property-scoped listings named by the user's resource mapping rows.
// A failed mapping lookup still invalidates the user-scoped key.
func invalidate[D any](ctx context.Context, e *Engine, a Adapter[D], userID string) {
	metrics.CacheInvalidations.Inc()
	keys := []string{cache.Key(e.domain, a.Resource(), userID)}

	mappings, err := e.ledger.Mappings(ctx, userID)
	if err != nil {
		e.log.Error().Err(err).Str("user", userID).Msg("resource mapping lookup failed during invalidation")
	}
	for _, m := range mappings {
		keys = append(keys, cache.PropertyKey(e.domain, a.Resource(), m.PropertyID))
	}

	e.gateway.Invalidate(keys...)
}

// buildResponse shapes the final batch response. Failure classes keep their
// precedence for the batch-level message, but every class flag that occurred
// is set and every submitted item stays visible in results — except on
// permission-denied aborts, which void the results entirely.
func buildResponse(view collectorView) *models.BatchResponse {
	resp := &models.BatchResponse{
		Errors:  view.errors,
		Results: view.outcomes,
	}
	if resp.Errors == nil {
		resp.Errors = []string{}
	}

	switch {
	case view.permissionDenied:
		resp.Success = false
		resp.Results = []models.OutcomeRecord{}
		resp.Message = view.permissionMsg

	case view.notFound:
		resp.Success = false
		resp.NotFoundError = true
		resp.LimitReached = view.featureLimit
		resp.Message = view.notFoundMsg

	case view.featureLimit:
		resp.Success = false
		resp.LimitReached = true
		resp.Message = view.featureLimitMsg

	case len(view.errors) > 0:
		resp.Success = false
		resp.Message = joinErrors(view.errors)

	default:
		resp.Success = true
	}

	return resp
}

// joinErrors flattens the collected error messages into the response message.
func joinErrors(msgs []string) string {
	var merr *multierror.Error
	for _, m := range msgs {
		merr = multierror.Append(merr, errors.New(m))
	}
	merr.ErrorFormat = func(errs []error) string {
		parts := make([]string, len(errs))
		for i, err := range errs {
			parts[i] = err.Error()
		}
		return strings.Join(parts, "; ")
	}
	return merr.Error()
}

// resourceIdentity pulls the remote identifiers out of a mutation response.
// Deletes return no body, so the submitted remote name stands in.
func resourceIdentity(res *admin.Resource, fallbackName, label string) (ids, names []string) {
	if res == nil {
		if fallbackName != "" {
			return []string{fallbackName}, []string{label}
		}
		return nil, []string{label}
	}
	name := res.DisplayName
	if name == "" {
		name = label
	}
	return []string{res.Name}, []string{name}
}

// validationMessage renders a validation failure for the errors array.
func validationMessage(err error) string {
	var fe validate.FieldErrors
	if errors.As(err, &fe) {
		return fe.Error()
	}
	return err.Error()
}

// remoteMessage strips the classification prefix for user-facing messages.
func remoteMessage(err error) string {
	var re *admin.RemoteError
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}

// opNoun names an operation in limit messages ("Creation limit reached").
func opNoun(op models.Operation) string {
	switch op {
	case models.OpCreate:
		return "Creation"
	case models.OpUpdate:
		return "Update"
	default:
		return "Deletion"
	}
}

// singular trims the collection plural for messages ("audiences" →
// "audience").
func singular(resource string) string {
	return strings.TrimSuffix(resource, "s")
}
