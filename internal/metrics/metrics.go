// Package metrics exposes prometheus instrumentation for the mutation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OutboundRequests counts remote admin-API calls by verb, resource, and
	// outcome class.
	OutboundRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adminrelay",
		Name:      "outbound_requests_total",
		Help:      "Outbound admin API calls by verb, resource and outcome class.",
	}, []string{"verb", "resource", "class"})

	// RetryWaves counts wave-level backoff retries.
	RetryWaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adminrelay",
		Name:      "retry_waves_total",
		Help:      "Rate-limited waves that entered the backoff path.",
	}, []string{"resource"})

	// QuotaRejections counts batches rejected before any network work.
	QuotaRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adminrelay",
		Name:      "quota_rejections_total",
		Help:      "Batches rejected by the tier-limit pre-check.",
	}, []string{"feature", "operation"})

	// CacheInvalidations counts cache key deletions after mutations.
	CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "adminrelay",
		Name:      "cache_invalidations_total",
		Help:      "Cache entries deleted after successful mutations.",
	})

	// InFlight tracks outbound calls currently holding a scheduler slot.
	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "adminrelay",
		Name:      "outbound_in_flight",
		Help:      "Outbound admin API calls currently in flight.",
	})
)
