// Package delegation coordinates sub-task hand-offs between agents.
//
// The coordinator deduplicates concurrent identical requests (single-flight
// per dedup key), announces lifecycle transitions on the event bus, and
// resolves each delegation from the matching delegation.completed event or
// a hard timeout — whichever comes first. Delegate never returns an error:
// every failure, including timeouts and panics, is folded into the Result.
package delegation

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lumakit/relay/bus"
	"github.com/lumakit/relay/internal/metrics"
)

// ErrTimeout marks a delegation that saw no completion event within the
// configured ceiling.
var ErrTimeout = errors.New("delegation timed out")

// Config tunes the coordinator.
type Config struct {
	// Timeout is the hard ceiling a waiter holds out for a completion
	// event. Zero means the 300-second default.
	Timeout time.Duration

	// HistoryTTL bounds how long settled results stay queryable. The
	// history is diagnostic only and never consulted for correctness.
	HistoryTTL time.Duration

	// KeyIncludesTask adds the task text to the dedup key, letting
	// distinct tasks from the same source→target pair run concurrently.
	KeyIncludesTask bool
}

const (
	defaultTimeout    = 300 * time.Second
	defaultHistoryTTL = 10 * time.Minute
)

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:    defaultTimeout,
		HistoryTTL: defaultHistoryTTL,
	}
}

// Coordinator owns the in-flight delegation set and the result history.
// Construct one per process (or per tenant) and share it; the zero value
// is not usable.
type Coordinator struct {
	bus       bus.Bus
	cfg       Config
	logger    *zap.Logger
	collector *metrics.Collector
	tracer    trace.Tracer

	flight  singleflight.Group
	history *gocache.Cache
}

// NewCoordinator creates a delegation coordinator publishing on b.
// The collector may be nil.
func NewCoordinator(b bus.Bus, cfg Config, logger *zap.Logger, collector *metrics.Collector) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = defaultHistoryTTL
	}
	return &Coordinator{
		bus:       b,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "delegation_coordinator")),
		collector: collector,
		tracer:    otel.Tracer("github.com/lumakit/relay/delegation"),
		history:   gocache.New(cfg.HistoryTTL, 2*cfg.HistoryTTL),
	}
}

// Delegate hands req off to the target agent and blocks until the matching
// completion event arrives or the timeout elapses. Concurrent calls with
// the same dedup key join the one in-flight delegation and all receive the
// identical Result.
//
// The context is used for tracing only: per the coordination contract there
// is no cancel, and one caller's context must not be able to fail the
// shared flight.
func (c *Coordinator) Delegate(ctx context.Context, req Request) Result {
	key := req.DedupKey(c.cfg.KeyIncludesTask)

	_, span := c.tracer.Start(ctx, "delegation.delegate",
		trace.WithAttributes(
			attribute.String("delegation.key", key),
			attribute.String("delegation.source_agent", req.SourceAgent),
			attribute.String("delegation.target_agent", req.TargetAgent),
		))
	defer span.End()

	// ran stays false for callers that joined another caller's flight;
	// singleflight marks Shared on the executor too, which must not count
	// as a deduplication.
	var ran bool
	ch := c.flight.DoChan(key, func() (out any, _ error) {
		ran = true
		defer func() {
			if r := recover(); r != nil {
				out = Result{
					TargetAgent: req.TargetAgent,
					Err:         fmt.Errorf("delegation %s panicked: %v", key, r),
				}
			}
		}()
		return c.await(key, req), nil
	})

	res := <-ch
	if res.Shared && !ran {
		c.collector.DelegationDeduplicated()
		span.SetAttributes(attribute.Bool("delegation.deduplicated", true))
	}

	result, ok := res.Val.(Result)
	if !ok {
		// Unreachable unless singleflight returns a foreign value.
		result = Result{TargetAgent: req.TargetAgent, Err: fmt.Errorf("delegation %s produced no result", key)}
	}
	span.SetAttributes(attribute.Bool("delegation.success", result.Success))
	return result
}

// await runs the single flight for key: publish the lifecycle events,
// register a one-shot waiter on completions, and settle on the first
// matching event or the timeout. The in-flight slot is released by
// singleflight as soon as this returns, so a later delegation with the
// same key runs fresh.
func (c *Coordinator) await(key string, req Request) Result {
	start := time.Now()
	c.collector.DelegationStarted()

	// Subscribe before announcing the request: the executing runtime may
	// complete synchronously within the Publish call below.
	matched := make(chan Result, 1)
	subID := c.bus.Subscribe(EventDelegationCompleted, func(ev bus.Event) {
		done, ok := ev.(*CompletedEvent)
		if !ok || done.DedupKey(c.cfg.KeyIncludesTask) != key {
			return
		}
		select {
		case matched <- Result{
			Success:          true,
			Payload:          done.Result,
			TargetAgent:      done.TargetAgent,
			ContinuationHint: done.ContinuationHint,
		}:
		default: // a first completion already settled this flight
		}
	})
	defer c.bus.Unsubscribe(subID)

	c.logger.Info("delegation requested",
		zap.String("key", key),
		zap.String("source_agent", req.SourceAgent),
		zap.String("target_agent", req.TargetAgent),
		zap.String("priority", string(req.Priority)),
	)

	now := time.Now()
	c.bus.Publish(&RequestedEvent{
		SourceAgent:       req.SourceAgent,
		TargetAgent:       req.TargetAgent,
		Task:              req.Task,
		Context:           req.Context,
		HandoffMessage:    req.HandoffMessage,
		Priority:          req.Priority,
		SourceExecutionID: req.SourceExecutionID,
		UserID:            req.UserID,
		PriorTurns:        req.PriorTurns,
		Timestamp_:        now,
	})
	c.publishProgress(req, ProgressStarting, "")

	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()

	var result Result
	select {
	case result = <-matched:
	case <-timer.C:
		result = Result{
			TargetAgent: req.TargetAgent,
			Err: fmt.Errorf("%w: no completion event for %s within %s",
				ErrTimeout, key, c.cfg.Timeout),
		}
	}

	c.settle(key, req, result, time.Since(start))
	return result
}

// settle records the outcome: progress event, history entry, metrics, log.
func (c *Coordinator) settle(key string, req Request, result Result, elapsed time.Duration) {
	status := ProgressCompleted
	if !result.Success {
		status = ProgressFailed
	}
	c.publishProgress(req, status, result.ErrorMessage())
	c.history.Set(key, result, gocache.DefaultExpiration)
	c.collector.DelegationSettled(status, elapsed)

	if result.Success {
		c.logger.Info("delegation completed",
			zap.String("key", key),
			zap.Duration("elapsed", elapsed),
		)
		return
	}
	c.logger.Warn("delegation failed",
		zap.String("key", key),
		zap.Duration("elapsed", elapsed),
		zap.Error(result.Err),
	)
}

func (c *Coordinator) publishProgress(req Request, status, message string) {
	c.bus.Publish(&ProgressEvent{
		SourceAgent:       req.SourceAgent,
		TargetAgent:       req.TargetAgent,
		Task:              req.Task,
		SourceExecutionID: req.SourceExecutionID,
		Status:            status,
		Message:           message,
		Timestamp_:        time.Now(),
	})
}

// History returns the settled result last recorded for key, if it is still
// within its lifetime. Diagnostics only: in-flight deduplication never
// consults it.
func (c *Coordinator) History(key string) (Result, bool) {
	v, ok := c.history.Get(key)
	if !ok {
		return Result{}, false
	}
	return v.(Result), true
}
