// Package relay provides a top-level convenience entry point wiring the
// coordination core together with minimal boilerplate.
//
// Usage:
//
//	import "github.com/lumakit/relay"
//
//	core, err := relay.New(relay.WithLogger(logger))
//	result := core.Coordinator.Delegate(ctx, req)
//
// This is a thin wrapper around the bus, delegation, interrupt, and
// execution packages; use them directly when you need finer control.
package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lumakit/relay/budget"
	"github.com/lumakit/relay/bus"
	"github.com/lumakit/relay/delegation"
	"github.com/lumakit/relay/execution"
	"github.com/lumakit/relay/internal/metrics"
	"github.com/lumakit/relay/interrupt"
)

// Core bundles the wired coordination components.
type Core struct {
	Bus         *bus.InProcBus
	Coordinator *delegation.Coordinator
	Interrupts  *interrupt.Manager
	Executions  *execution.Registry
	Collector   *metrics.Collector

	// Budget holds the limits applied to trackers created via NewTracker.
	Budget budget.ExecutionBudget
}

type options struct {
	logger     *zap.Logger
	store      interrupt.DurableStore
	registerer prometheus.Registerer
	delegation delegation.Config
	budget     budget.ExecutionBudget
}

// Option configures the Core created by [New].
type Option func(*options)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithInterruptStore sets the durable interrupt store. Defaults to the
// in-memory store, which does not survive restarts.
func WithInterruptStore(store interrupt.DurableStore) Option {
	return func(o *options) { o.store = store }
}

// WithMetricsRegisterer registers the collector's metrics with reg instead
// of the default Prometheus registry. Nil disables metrics.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithDelegationConfig overrides the coordinator defaults.
func WithDelegationConfig(cfg delegation.Config) Option {
	return func(o *options) { o.delegation = cfg }
}

// WithBudget sets the execution budget for trackers created by the core.
func WithBudget(b budget.ExecutionBudget) Option {
	return func(o *options) { o.budget = b }
}

// New wires a Core with the given options.
func New(opts ...Option) (*Core, error) {
	o := options{
		store:      interrupt.NewMemoryStore(),
		registerer: prometheus.DefaultRegisterer,
		delegation: delegation.DefaultConfig(),
		budget:     budget.StandardBudget(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		logger, err := zap.NewProduction()
		if err != nil {
			return nil, err
		}
		o.logger = logger
	}

	var collector *metrics.Collector
	if o.registerer != nil {
		collector = metrics.NewCollector("relay", o.registerer, o.logger)
	}

	eventBus := bus.New(o.logger)
	return &Core{
		Bus:         eventBus,
		Coordinator: delegation.NewCoordinator(eventBus, o.delegation, o.logger, collector),
		Interrupts:  interrupt.NewManager(o.store, o.logger, collector),
		Executions:  execution.NewRegistry(o.logger),
		Collector:   collector,
		Budget:      o.budget,
	}, nil
}

// NewTracker creates a budget tracker for one execution using the core's
// configured limits.
func (c *Core) NewTracker() *budget.Tracker {
	return budget.NewTracker(c.Budget)
}
