package delegation

import (
	"time"

	"github.com/lumakit/relay/bus"
)

// Event types emitted by the coordinator. The runtime that actually executes
// delegated tasks listens for delegation.requested and publishes
// delegation.completed; UIs build timelines from delegation.progress.
const (
	EventDelegationRequested bus.EventType = "delegation.requested"
	EventDelegationProgress  bus.EventType = "delegation.progress"
	EventDelegationCompleted bus.EventType = "delegation.completed"
)

// Progress statuses carried by ProgressEvent.
const (
	ProgressStarting  = "starting"
	ProgressCompleted = "completed"
	ProgressFailed    = "failed"
)

// RequestedEvent announces a new delegation to the executing runtime.
type RequestedEvent struct {
	SourceAgent       string         `json:"source_agent"`
	TargetAgent       string         `json:"target_agent"`
	Task              string         `json:"task"`
	Context           map[string]any `json:"context,omitempty"`
	HandoffMessage    string         `json:"handoff_message,omitempty"`
	Priority          Priority       `json:"priority,omitempty"`
	SourceExecutionID string         `json:"source_execution_id,omitempty"`
	UserID            string         `json:"user_id,omitempty"`
	PriorTurns        []Turn         `json:"prior_turns,omitempty"`
	Timestamp_        time.Time      `json:"timestamp"`
}

func (e *RequestedEvent) Type() bus.EventType  { return EventDelegationRequested }
func (e *RequestedEvent) Timestamp() time.Time { return e.Timestamp_ }

// ProgressEvent reports a lifecycle transition of an in-flight delegation.
type ProgressEvent struct {
	SourceAgent       string    `json:"source_agent"`
	TargetAgent       string    `json:"target_agent"`
	Task              string    `json:"task"`
	SourceExecutionID string    `json:"source_execution_id,omitempty"`
	Status            string    `json:"status"`
	Message           string    `json:"message,omitempty"`
	Timestamp_        time.Time `json:"timestamp"`
}

func (e *ProgressEvent) Type() bus.EventType  { return EventDelegationProgress }
func (e *ProgressEvent) Timestamp() time.Time { return e.Timestamp_ }

// CompletedEvent is published by the executing runtime when a delegated
// task finishes. It carries the source execution id in addition to the
// source/target/task triple so waiters can recompute the dedup key.
type CompletedEvent struct {
	SourceAgent       string    `json:"source_agent"`
	TargetAgent       string    `json:"target_agent"`
	Task              string    `json:"task"`
	SourceExecutionID string    `json:"source_execution_id,omitempty"`
	Result            any       `json:"result,omitempty"`
	ContinuationHint  string    `json:"continuation_hint,omitempty"`
	Timestamp_        time.Time `json:"timestamp"`
}

func (e *CompletedEvent) Type() bus.EventType  { return EventDelegationCompleted }
func (e *CompletedEvent) Timestamp() time.Time { return e.Timestamp_ }

// DedupKey recomputes the in-flight key from the event's own identifiers.
// Waiters match on this, never on arrival order, because completions for
// unrelated delegations may interleave.
func (e *CompletedEvent) DedupKey(includeTask bool) string {
	req := Request{
		SourceAgent:       e.SourceAgent,
		TargetAgent:       e.TargetAgent,
		Task:              e.Task,
		SourceExecutionID: e.SourceExecutionID,
	}
	return req.DedupKey(includeTask)
}
