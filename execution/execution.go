// Package execution tracks the lifecycle of in-flight agent executions.
// The registry is a process-local concurrent map keyed by execution id;
// durability is the interrupt manager's concern, not this package's.
package execution

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the lifecycle state of an execution record. Records start
// running; Register is called when work begins, so there is no separate
// queued state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Finished reports whether the status is terminal.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Step is one recorded action within an execution, in append order.
type Step struct {
	Name       string         `json:"name"`
	Detail     string         `json:"detail,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// Record is one execution's mutable state. All mutation goes through the
// methods; direct field writes after Register are not safe.
type Record struct {
	ID        string
	AgentID   string
	StartTime time.Time

	mu        sync.RWMutex
	status    Status
	steps     []Step
	result    string
	errMsg    string
	endTime   time.Time
	updatedAt time.Time
}

// Status returns the current lifecycle state.
func (r *Record) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Steps returns a copy of the recorded steps in append order.
func (r *Record) Steps() []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}

// Result returns the completion payload, empty until completed.
func (r *Record) Result() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result
}

// Err returns the failure message, empty unless failed.
func (r *Record) Err() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errMsg
}

// EndTime returns when the execution reached a terminal state.
func (r *Record) EndTime() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endTime
}

// Duration returns elapsed wall-clock time, frozen once finished.
func (r *Record) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.status.Finished() {
		return r.endTime.Sub(r.StartTime)
	}
	return time.Since(r.StartTime)
}

func (r *Record) addStep(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
	r.updatedAt = step.RecordedAt
}

// finish moves the record to a terminal state. Returns false when the
// record is already terminal; terminal states never overwrite each other.
func (r *Record) finish(status Status, result, errMsg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Finished() {
		return false
	}
	now := time.Now()
	r.status = status
	r.result = result
	r.errMsg = errMsg
	r.endTime = now
	r.updatedAt = now
	return true
}

// Registry is a concurrent map of execution records.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		records: make(map[string]*Record),
		logger:  logger.With(zap.String("component", "execution_registry")),
	}
}

// Register creates a running record for executionID. A blank id gets a
// generated one. Registering an id twice returns an error and leaves the
// existing record untouched.
func (reg *Registry) Register(executionID, agentID string) (*Record, error) {
	if executionID == "" {
		executionID = uuid.NewString()
	}

	rec := &Record{
		ID:        executionID,
		AgentID:   agentID,
		StartTime: time.Now(),
		status:    StatusRunning,
	}

	reg.mu.Lock()
	if _, exists := reg.records[executionID]; exists {
		reg.mu.Unlock()
		return nil, fmt.Errorf("execution %s is already registered", executionID)
	}
	reg.records[executionID] = rec
	reg.mu.Unlock()

	reg.logger.Debug("execution registered",
		zap.String("execution_id", executionID),
		zap.String("agent_id", agentID),
	)
	return rec, nil
}

// Get returns the record for executionID, or false when absent.
func (reg *Registry) Get(executionID string) (*Record, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	rec, ok := reg.records[executionID]
	return rec, ok
}

// AddStep appends a step to a non-terminal execution.
func (reg *Registry) AddStep(executionID string, step Step) error {
	rec, ok := reg.Get(executionID)
	if !ok {
		return fmt.Errorf("execution not found: %s", executionID)
	}
	if rec.Status().Finished() {
		return fmt.Errorf("execution %s is already %s", executionID, rec.Status())
	}
	if step.RecordedAt.IsZero() {
		step.RecordedAt = time.Now()
	}
	rec.addStep(step)
	return nil
}

// Complete marks the execution completed with its result payload.
func (reg *Registry) Complete(executionID, result string) error {
	return reg.finish(executionID, StatusCompleted, result, "")
}

// Fail marks the execution failed with the error message.
func (reg *Registry) Fail(executionID string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return reg.finish(executionID, StatusFailed, "", msg)
}

// Cancel marks the execution cancelled.
func (reg *Registry) Cancel(executionID string) error {
	return reg.finish(executionID, StatusCancelled, "", "")
}

func (reg *Registry) finish(executionID string, status Status, result, errMsg string) error {
	rec, ok := reg.Get(executionID)
	if !ok {
		return fmt.Errorf("execution not found: %s", executionID)
	}
	if !rec.finish(status, result, errMsg) {
		return fmt.Errorf("execution %s is already %s", executionID, rec.Status())
	}

	reg.logger.Debug("execution finished",
		zap.String("execution_id", executionID),
		zap.String("status", string(status)),
	)
	return nil
}

// List returns all current records in unspecified order.
func (reg *Registry) List() []*Record {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Record, 0, len(reg.records))
	for _, rec := range reg.records {
		out = append(out, rec)
	}
	return out
}

// CleanupFinished drops terminal records that ended before now-olderThan
// and reports how many were removed.
func (reg *Registry) CleanupFinished(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	cleaned := 0
	for id, rec := range reg.records {
		if rec.Status().Finished() && rec.EndTime().Before(cutoff) {
			delete(reg.records, id)
			cleaned++
		}
	}

	if cleaned > 0 {
		reg.logger.Debug("cleaned up finished executions", zap.Int("count", cleaned))
	}
	return cleaned
}
