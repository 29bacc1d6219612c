package delegation

import "strings"

// Priority orders delegations for the executing runtime.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Turn is one prior conversation exchange forwarded with a delegation so
// the target agent has the context that led to the hand-off.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request asks another agent to perform a sub-task. It exists only for the
// duration of one coordination call and is never persisted.
type Request struct {
	SourceAgent       string         `json:"source_agent"`
	TargetAgent       string         `json:"target_agent"`
	Task              string         `json:"task"`
	Context           map[string]any `json:"context,omitempty"`
	HandoffMessage    string         `json:"handoff_message,omitempty"`
	Priority          Priority       `json:"priority,omitempty"`
	SourceExecutionID string         `json:"source_execution_id,omitempty"`
	UserID            string         `json:"user_id,omitempty"`
	PriorTurns        []Turn         `json:"prior_turns,omitempty"`
}

// DedupKey identifies an in-flight delegation. The key is derived from
// identifiers, not task content: two different tasks from the same
// source→target pair within one execution share a single in-flight slot.
// Setting includeTask appends the task text for callers that want distinct
// tasks to run independently.
func (r Request) DedupKey(includeTask bool) string {
	execID := r.SourceExecutionID
	if execID == "" {
		execID = "unknown"
	}
	parts := []string{execID, r.SourceAgent, r.TargetAgent}
	if includeTask {
		parts = append(parts, r.Task)
	}
	return strings.Join(parts, ":")
}

// Result is the outcome of a delegation. Failures are carried in Err; the
// coordinator never returns an error alongside it.
type Result struct {
	Success          bool   `json:"success"`
	Payload          any    `json:"payload,omitempty"`
	TargetAgent      string `json:"target_agent,omitempty"`
	ContinuationHint string `json:"continuation_hint,omitempty"`
	Err              error  `json:"-"`
}

// ErrorMessage returns the failure text, or "" for successful results.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
