package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level collectors, registered once on the default registry.
var (
	CacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dtman_cache_ops_total",
			Help: "Total cache operations by op and result",
		},
		[]string{"op", "result"},
	)

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtman_cache_hits_total",
		Help: "Cache read hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtman_cache_misses_total",
		Help: "Cache read misses",
	})

	FailoversTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtman_cache_failovers_total",
		Help: "Cache endpoint failover events",
	})

	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dtman_cache_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	})

	SyncQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dtman_sync_queue_depth",
		Help: "Pending items in the durable sync queue",
	})

	SyncDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dtman_sync_drops_total",
		Help: "Sync queue items dropped past the retry ceiling",
	})

	DurableWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dtman_durable_writes_total",
			Help: "Durable tier writes by path (direct, queued)",
		},
		[]string{"path", "result"},
	)

	AuditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dtman_audits_total",
			Help: "Consistency audits by verdict",
		},
		[]string{"verdict"},
	)
)
