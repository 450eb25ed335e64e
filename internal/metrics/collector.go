package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds every metric family the service records. Metrics
// register against the registerer passed to NewCollector, so tests can
// use an isolated registry.
type Collector struct {
	// Execution metrics
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec

	// Step metrics
	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepRetries   *prometheus.CounterVec
	awaitingSteps prometheus.Gauge
	timeoutsTotal prometheus.Counter

	// Store metrics
	lockConflictsTotal *prometheus.CounterVec
	dbConnectionsOpen  *prometheus.GaugeVec
	dbConnectionsIdle  *prometheus.GaugeVec

	// Event publisher metrics
	eventsPublishedTotal *prometheus.CounterVec
	retryQueueDepth      prometheus.Gauge

	// Cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers every metric family under namespace.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.executionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Total number of pipeline executions reaching a terminal state",
		},
		[]string{"status"},
	)

	c.executionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock duration of pipeline executions",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"status"},
	)

	c.stepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of steps reaching a terminal state",
		},
		[]string{"action", "status"},
	)

	c.stepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"action"},
	)

	c.stepRetries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_retries_total",
			Help:      "Total number of step retry attempts",
		},
		[]string{"action"},
	)

	c.awaitingSteps = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "awaiting_steps",
			Help:      "Steps currently suspended on an external event",
		},
	)

	c.timeoutsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_timeouts_total",
			Help:      "Awaiting steps forced to TIMEOUT by the sweep",
		},
	)

	c.lockConflictsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_conflicts_total",
			Help:      "Optimistic lock conflicts by entity type",
		},
		[]string{"entity"},
	)

	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Idle database connections",
		},
		[]string{"database"},
	)

	c.eventsPublishedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Callback events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	c.retryQueueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_retry_queue_depth",
			Help:      "Entries waiting in the publish retry queue",
		},
	)

	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache hits by cache name",
		},
		[]string{"cache"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache misses by cache name",
		},
		[]string{"cache"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordExecution records a terminal execution.
func (c *Collector) RecordExecution(status string, duration time.Duration) {
	c.executionsTotal.WithLabelValues(status).Inc()
	c.executionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStep records a terminal step.
func (c *Collector) RecordStep(action, status string, duration time.Duration) {
	c.stepsTotal.WithLabelValues(action, status).Inc()
	c.stepDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordStepRetry counts one retry attempt of a step.
func (c *Collector) RecordStepRetry(action string) {
	c.stepRetries.WithLabelValues(action).Inc()
}

// SetAwaitingSteps publishes the current awaiting-step count.
func (c *Collector) SetAwaitingSteps(n int64) {
	c.awaitingSteps.Set(float64(n))
}

// RecordTimeout counts one step forced to TIMEOUT.
func (c *Collector) RecordTimeout() {
	c.timeoutsTotal.Inc()
}

// RecordLockConflict counts an optimistic lock conflict.
func (c *Collector) RecordLockConflict(entity string) {
	c.lockConflictsTotal.WithLabelValues(entity).Inc()
}

// RecordEventPublished counts a publish attempt outcome
// ("ok", "retried", "dropped").
func (c *Collector) RecordEventPublished(eventType, outcome string) {
	c.eventsPublishedTotal.WithLabelValues(eventType, outcome).Inc()
}

// SetRetryQueueDepth publishes the publish retry queue depth.
func (c *Collector) SetRetryQueueDepth(n int) {
	c.retryQueueDepth.Set(float64(n))
}

// RecordCacheHit counts a cache hit.
func (c *Collector) RecordCacheHit(cache string) {
	c.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss counts a cache miss.
func (c *Collector) RecordCacheMiss(cache string) {
	c.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordDBConnections publishes pool gauges for a database.
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}
