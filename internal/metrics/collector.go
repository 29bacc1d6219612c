// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the orchestration metrics exposed by the module.
type Collector struct {
	delegationsTotal    *prometheus.CounterVec
	delegationDuration  *prometheus.HistogramVec
	delegationsInFlight prometheus.Gauge
	delegationsDeduped  prometheus.Counter

	interruptsTotal      *prometheus.CounterVec
	interruptRehydrated  prometheus.Counter
	interruptCacheHits   prometheus.Counter
	interruptCacheMisses prometheus.Counter

	logger *zap.Logger
}

// NewCollector registers the module's metrics with reg. Passing a nil
// registerer uses the default prometheus registry; tests pass their own
// registry so repeated construction does not collide.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.delegationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegations_total",
			Help:      "Total number of settled delegations",
		},
		[]string{"status"},
	)

	c.delegationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delegation_duration_seconds",
			Help:      "Time from delegation request to settlement in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"status"},
	)

	c.delegationsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delegations_in_flight",
			Help:      "Number of delegations currently awaiting completion",
		},
	)

	c.delegationsDeduped = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delegations_deduplicated_total",
			Help:      "Number of delegation calls that joined an already in-flight delegation",
		},
	)

	c.interruptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrupts_total",
			Help:      "Total number of interrupt state transitions",
		},
		[]string{"status"},
	)

	c.interruptRehydrated = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrupts_rehydrated_total",
			Help:      "Interrupt lookups served by the durable store after a memory miss",
		},
	)

	c.interruptCacheHits = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrupt_cache_hits_total",
			Help:      "Interrupt lookups served from memory",
		},
	)

	c.interruptCacheMisses = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrupt_cache_misses_total",
			Help:      "Interrupt lookups that missed the in-memory cache",
		},
	)

	return c
}

// DelegationStarted marks one delegation as in flight.
func (c *Collector) DelegationStarted() {
	if c == nil {
		return
	}
	c.delegationsInFlight.Inc()
}

// DelegationSettled records the outcome and duration of a delegation.
func (c *Collector) DelegationSettled(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.delegationsInFlight.Dec()
	c.delegationsTotal.WithLabelValues(status).Inc()
	c.delegationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// DelegationDeduplicated records a caller joining an in-flight delegation.
func (c *Collector) DelegationDeduplicated() {
	if c == nil {
		return
	}
	c.delegationsDeduped.Inc()
}

// InterruptTransition records an interrupt entering the given status.
func (c *Collector) InterruptTransition(status string) {
	if c == nil {
		return
	}
	c.interruptsTotal.WithLabelValues(status).Inc()
}

// InterruptCacheHit records an interrupt lookup served from memory.
func (c *Collector) InterruptCacheHit() {
	if c == nil {
		return
	}
	c.interruptCacheHits.Inc()
}

// InterruptCacheMiss records an interrupt lookup that missed memory.
func (c *Collector) InterruptCacheMiss() {
	if c == nil {
		return
	}
	c.interruptCacheMisses.Inc()
}

// InterruptRehydrated records a durable-store fallback that found a record.
func (c *Collector) InterruptRehydrated() {
	if c == nil {
		return
	}
	c.interruptRehydrated.Inc()
}
