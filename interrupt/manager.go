package interrupt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumakit/relay/internal/metrics"
)

// Manager owns the interrupt state machine across both storage tiers:
// an in-memory cache for fast lookups and a DurableStore for crash
// recovery. All methods are safe for concurrent use; entries for unrelated
// execution ids never contend beyond the cache map lock.
type Manager struct {
	store     DurableStore
	logger    *zap.Logger
	collector *metrics.Collector

	mu    sync.RWMutex
	cache map[string]*Interrupt
}

// NewManager creates an interrupt manager over the given durable store.
// The collector may be nil.
func NewManager(store DurableStore, logger *zap.Logger, collector *metrics.Collector) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     store,
		logger:    logger.With(zap.String("component", "interrupt_manager")),
		collector: collector,
		cache:     make(map[string]*Interrupt),
	}
}

// StoreOptions describes the interrupt to create. UserID and AgentID are
// optional; without a UserID the interrupt is kept in memory only and will
// not survive a restart.
type StoreOptions struct {
	ExecutionID string
	ThreadID    string
	Payload     ActionPayload
	UserID      string
	AgentID     string
}

// StoreInterrupt creates a pending interrupt. The record always lands in
// the memory cache; it is additionally persisted when a user id is present.
// A durable-store failure is propagated and leaves neither tier populated.
func (m *Manager) StoreInterrupt(ctx context.Context, opts StoreOptions) (*Interrupt, error) {
	if opts.ExecutionID == "" {
		return nil, errors.New("execution id is required")
	}

	now := time.Now()
	rec := &Interrupt{
		ExecutionID: opts.ExecutionID,
		ThreadID:    opts.ThreadID,
		UserID:      opts.UserID,
		AgentID:     opts.AgentID,
		Payload:     opts.Payload,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	m.mu.Lock()
	m.cache[rec.ExecutionID] = rec
	m.mu.Unlock()

	if opts.UserID == "" {
		// Anonymous interrupts are intentionally ephemeral; the caller
		// accepted that they vanish with the process.
		m.logger.Debug("interrupt stored without user id, skipping durable persistence",
			zap.String("execution_id", rec.ExecutionID),
		)
		m.collector.InterruptTransition(string(StatusPending))
		return rec, nil
	}

	if err := m.store.Insert(ctx, rec); err != nil {
		m.mu.Lock()
		delete(m.cache, rec.ExecutionID)
		m.mu.Unlock()
		return nil, fmt.Errorf("persist interrupt %s: %w", rec.ExecutionID, err)
	}

	m.logger.Info("interrupt stored",
		zap.String("execution_id", rec.ExecutionID),
		zap.String("thread_id", rec.ThreadID),
		zap.String("action", rec.Payload.Action),
	)
	m.collector.InterruptTransition(string(StatusPending))
	return rec, nil
}

// GetInterrupt returns a snapshot of the interrupt for executionID,
// checking memory first and falling back to the durable store on a miss. A
// record found only in the store is written back into the cache, so the
// next lookup is a hit. The returned record is a copy: later transitions
// never mutate it under a caller's feet. Returns ErrNotFound when neither
// tier has it.
func (m *Manager) GetInterrupt(ctx context.Context, executionID string) (*Interrupt, error) {
	m.mu.RLock()
	rec, ok := m.cache[executionID]
	if ok {
		rec = rec.clone()
	}
	m.mu.RUnlock()
	if ok {
		m.collector.InterruptCacheHit()
		return rec, nil
	}
	m.collector.InterruptCacheMiss()

	stored, err := m.store.GetByExecutionID(ctx, executionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load interrupt %s: %w", executionID, err)
	}

	m.mu.Lock()
	// A concurrent lookup may have rehydrated already; the cached copy is
	// authoritative once present.
	if cur, ok := m.cache[executionID]; ok {
		stored = cur
	} else {
		m.cache[executionID] = stored
	}
	out := stored.clone()
	m.mu.Unlock()

	m.collector.InterruptRehydrated()
	m.logger.Debug("interrupt rehydrated from durable store",
		zap.String("execution_id", executionID),
	)
	return out, nil
}

// UpdateInterruptResponse attaches a human decision to a pending interrupt
// and transitions it to approved or rejected. The transition is
// idempotent-guarded: a second call on the same execution id fails with
// ErrNotPending instead of overwriting the first decision.
func (m *Manager) UpdateInterruptResponse(ctx context.Context, executionID string, resp HumanResponse) (*Interrupt, error) {
	next, err := resp.StatusFor()
	if err != nil {
		return nil, err
	}

	// Fallback load outside the lock so a store round-trip never blocks
	// unrelated interrupts.
	rec, err := m.GetInterrupt(ctx, executionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if cur, ok := m.cache[executionID]; ok {
		rec = cur
	}
	if rec.Status != StatusPending {
		status := rec.Status
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: interrupt %s is %s", ErrNotPending, executionID, status)
	}
	prev := rec.clone()
	now := time.Now()
	r := resp
	rec.Response = &r
	rec.Status = next
	rec.UpdatedAt = now
	rec.ResolvedAt = &now
	m.cache[executionID] = rec
	updated := rec.clone()
	m.mu.Unlock()

	if updated.UserID != "" {
		if err := m.store.UpdateByExecutionID(ctx, updated); err != nil {
			// Keep the tiers agreed: revert memory to pending so the caller
			// can retry instead of stranding the decision in cache only.
			m.mu.Lock()
			m.cache[executionID] = prev
			m.mu.Unlock()
			return nil, fmt.Errorf("persist interrupt response %s: %w", executionID, err)
		}
	}

	m.logger.Info("interrupt resolved",
		zap.String("execution_id", executionID),
		zap.String("kind", string(resp.Kind)),
		zap.String("status", string(next)),
	)
	m.collector.InterruptTransition(string(next))
	return updated, nil
}

// ExpireInterrupt is the entry point for the external expiry sweep. It
// moves a pending interrupt to the terminal expired state; normal flow
// never produces this transition.
func (m *Manager) ExpireInterrupt(ctx context.Context, executionID string) (*Interrupt, error) {
	rec, err := m.GetInterrupt(ctx, executionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if cur, ok := m.cache[executionID]; ok {
		rec = cur
	}
	if rec.Status != StatusPending {
		status := rec.Status
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: interrupt %s is %s", ErrNotPending, executionID, status)
	}
	prev := rec.clone()
	now := time.Now()
	rec.Status = StatusExpired
	rec.UpdatedAt = now
	rec.ResolvedAt = &now
	m.cache[executionID] = rec
	updated := rec.clone()
	m.mu.Unlock()

	if updated.UserID != "" {
		if err := m.store.UpdateByExecutionID(ctx, updated); err != nil {
			m.mu.Lock()
			m.cache[executionID] = prev
			m.mu.Unlock()
			return nil, fmt.Errorf("persist interrupt expiry %s: %w", executionID, err)
		}
	}

	m.logger.Warn("interrupt expired", zap.String("execution_id", executionID))
	m.collector.InterruptTransition(string(StatusExpired))
	return updated, nil
}

// PendingInterrupts lists snapshots of cached interrupts still awaiting a
// decision, optionally filtered by owning user id. Serving the approval
// surface does not need the durable tier: anything pending after a restart
// is rehydrated on its first GetInterrupt.
func (m *Manager) PendingInterrupts(userID string) []*Interrupt {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Interrupt
	for _, rec := range m.cache {
		if rec.Status != StatusPending {
			continue
		}
		if userID != "" && rec.UserID != userID {
			continue
		}
		out = append(out, rec.clone())
	}
	return out
}

// Forget drops the in-memory copy once the caller has observed the final
// status. The durable record, if any, is retained for audit.
func (m *Manager) Forget(executionID string) {
	m.mu.Lock()
	delete(m.cache, executionID)
	m.mu.Unlock()
}

// ClearCache wipes the whole memory tier. It exists to simulate a process
// restart in tests and diagnostics; durable records are untouched.
func (m *Manager) ClearCache() {
	m.mu.Lock()
	m.cache = make(map[string]*Interrupt)
	m.mu.Unlock()
}
