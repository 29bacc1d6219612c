// Package interrupt pauses an agent execution until an explicit human
// decision arrives, and survives a process restart while waiting.
//
// Process memory is only a cache: every lookup that misses memory falls
// back to the durable store and rehydrates the cache, so a record written
// before a crash is served identically after it. Interrupts stored without
// a user id skip the durable tier on purpose and do not survive restarts.
package interrupt

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors surfaced by the manager and the stores.
var (
	// ErrNotFound marks a lookup for an execution id with no interrupt in
	// either tier.
	ErrNotFound = errors.New("interrupt not found")

	// ErrNotPending marks an attempt to attach a response to an interrupt
	// that already left the pending state.
	ErrNotPending = errors.New("interrupt is not pending")

	// ErrUnknownResponseKind marks a response whose kind is not one of
	// accept/edit/response/ignore.
	ErrUnknownResponseKind = errors.New("unknown response kind")
)

// Status is the interrupt state machine: pending → approved | rejected,
// with expired reachable only through the external expiry sweep.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// ResponseKind classifies a human decision.
type ResponseKind string

const (
	ResponseAccept  ResponseKind = "accept"
	ResponseEdit    ResponseKind = "edit"
	ResponseRespond ResponseKind = "response"
	ResponseIgnore  ResponseKind = "ignore"
)

// ActionPayload describes the sensitive side effect awaiting approval and
// which kinds of response the surface may offer for it.
type ActionPayload struct {
	Action       string         `json:"action"`
	Args         map[string]any `json:"args,omitempty"`
	Description  string         `json:"description,omitempty"`
	AllowAccept  bool           `json:"allow_accept"`
	AllowEdit    bool           `json:"allow_edit"`
	AllowRespond bool           `json:"allow_respond"`
	AllowIgnore  bool           `json:"allow_ignore"`
}

// HumanResponse is the decision supplied by a human for a pending
// interrupt. Args carries kind-specific data, e.g. the edited tool
// arguments for an edit response.
type HumanResponse struct {
	Kind    ResponseKind   `json:"kind"`
	Args    map[string]any `json:"args,omitempty"`
	Message string         `json:"message,omitempty"`
}

// StatusFor maps a response kind to the resulting interrupt status:
// accept, edit and response all let the action proceed (approved); ignore
// rejects it.
func (r HumanResponse) StatusFor() (Status, error) {
	switch r.Kind {
	case ResponseAccept, ResponseEdit, ResponseRespond:
		return StatusApproved, nil
	case ResponseIgnore:
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownResponseKind, r.Kind)
	}
}

// Interrupt is the durable unit: one paused execution awaiting a decision.
// ExecutionID is unique per interrupt and is the key in both tiers.
type Interrupt struct {
	ExecutionID string         `json:"execution_id"`
	ThreadID    string         `json:"thread_id"`
	UserID      string         `json:"user_id,omitempty"`
	AgentID     string         `json:"agent_id,omitempty"`
	Payload     ActionPayload  `json:"payload"`
	Status      Status         `json:"status"`
	Response    *HumanResponse `json:"response,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
}

// Resolved reports whether the interrupt has left the pending state.
func (i *Interrupt) Resolved() bool { return i.Status != StatusPending }

// clone returns a shallow copy so cache internals never alias a value
// handed to a store or a caller about to mutate it.
func (i *Interrupt) clone() *Interrupt {
	cp := *i
	if i.Response != nil {
		r := *i.Response
		cp.Response = &r
	}
	if i.ResolvedAt != nil {
		ts := *i.ResolvedAt
		cp.ResolvedAt = &ts
	}
	return &cp
}
