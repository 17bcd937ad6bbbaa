package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pawfeed_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// StoreOperationLatency records document store latency by operation and collection.
	StoreOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pawfeed_store_operation_latency_seconds",
		Help:    "Document store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "collection"})

	// InteractionsTotal counts like/repost operations by outcome.
	InteractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pawfeed_interactions_total",
		Help: "Total like and repost operations by operation and result code",
	}, []string{"operation", "result"})

	// OptimisticRollbacks counts optimistic local updates that had to be reverted.
	OptimisticRollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pawfeed_optimistic_rollbacks_total",
		Help: "Total optimistic updates reverted after a failed transaction",
	}, []string{"operation"})

	// CascadeFailures counts dependent documents a delete/restore cascade could not process.
	CascadeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pawfeed_cascade_failures_total",
		Help: "Total dependent documents left unprocessed by a cascade",
	}, []string{"operation"})

	// FeedRecomputeLatency records the time to rebuild a consolidated feed.
	FeedRecomputeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pawfeed_feed_recompute_latency_seconds",
		Help:    "Consolidated feed recompute latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"tab"})

	// FeedPublishes counts feed publishes by tab and source (store or seed).
	FeedPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pawfeed_feed_publishes_total",
		Help: "Total consolidated feed publishes",
	}, []string{"tab", "source"})

	// FeedSubscriptions is the gauge of live feed subscriptions.
	FeedSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pawfeed_feed_subscriptions",
		Help: "Number of live consolidated feed subscriptions",
	})

	// DiscoveryQueries counts discovery entry point calls.
	DiscoveryQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pawfeed_discovery_queries_total",
		Help: "Total discovery queries by entry point",
	}, []string{"entry_point"})
)

// TrackStore returns a function that records store latency when called (e.g. defer).
func TrackStore(operation, collection string) func() {
	start := time.Now()
	return func() {
		StoreOperationLatency.WithLabelValues(operation, collection).Observe(time.Since(start).Seconds())
	}
}
