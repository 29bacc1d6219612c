// Package budget bounds how much work a single agent execution may consume.
//
// Budgets are advisory and local: the tracker never stops anything itself.
// The execution runtime polls CheckBudget between reasoning steps or tool
// calls, which is the only place where stopping is safe.
package budget

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ExecutionBudget caps a single agent run on three axes.
type ExecutionBudget struct {
	MaxDuration  time.Duration `json:"max_duration"`
	MaxToolCalls int           `json:"max_tool_calls"`
	MaxCycles    int           `json:"max_cycles"`
}

// TightBudget suits quick single-purpose delegations.
func TightBudget() ExecutionBudget {
	return ExecutionBudget{
		MaxDuration:  2 * time.Minute,
		MaxToolCalls: 5,
		MaxCycles:    10,
	}
}

// StandardBudget is the default for interactive agent runs.
func StandardBudget() ExecutionBudget {
	return ExecutionBudget{
		MaxDuration:  5 * time.Minute,
		MaxToolCalls: 15,
		MaxCycles:    25,
	}
}

// ExtendedBudget suits long research or multi-step background work.
func ExtendedBudget() ExecutionBudget {
	return ExecutionBudget{
		MaxDuration:  15 * time.Minute,
		MaxToolCalls: 50,
		MaxCycles:    75,
	}
}

// BudgetStatus reports whether a run should stop and why.
type BudgetStatus struct {
	Exceeded    bool     `json:"exceeded"`
	Reason      string   `json:"reason,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Utilization expresses consumption as three independent percentages,
// each clamped to [0,100].
type Utilization struct {
	Time      float64 `json:"time"`
	ToolCalls float64 `json:"tool_calls"`
	Cycles    float64 `json:"cycles"`
}

// Max returns the highest of the three percentages.
func (u Utilization) Max() float64 {
	m := u.Time
	if u.ToolCalls > m {
		m = u.ToolCalls
	}
	if u.Cycles > m {
		m = u.Cycles
	}
	return m
}

// exhaustedSuggestions are the remediation hints attached to an exceeded
// status; the runtime surfaces them to the agent verbatim.
var exhaustedSuggestions = []string{
	"finalize with partial results",
	"summarize what was accomplished and what remains",
	"delegate the remaining work as a fresh execution",
}

// approachingThreshold is the utilization percentage above which
// IsApproachingLimit reports true.
const approachingThreshold = 80.0

// Tracker counts consumption for one execution against its budget.
// Counters are monotonic and lock-free; checks are pure functions of the
// counters and elapsed time.
type Tracker struct {
	budget    ExecutionBudget
	startedAt time.Time
	toolCalls atomic.Int64
	cycles    atomic.Int64

	now func() time.Time // test seam
}

// NewTracker starts tracking an execution from now.
func NewTracker(budget ExecutionBudget) *Tracker {
	t := &Tracker{budget: budget, now: time.Now}
	t.startedAt = t.now()
	return t
}

// Budget returns the limits this tracker enforces.
func (t *Tracker) Budget() ExecutionBudget { return t.budget }

// RecordToolCall counts one tool invocation.
func (t *Tracker) RecordToolCall() { t.toolCalls.Add(1) }

// RecordAgentCycle counts one reasoning cycle.
func (t *Tracker) RecordAgentCycle() { t.cycles.Add(1) }

// ToolCalls returns the number of tool invocations recorded so far.
func (t *Tracker) ToolCalls() int { return int(t.toolCalls.Load()) }

// Cycles returns the number of reasoning cycles recorded so far.
func (t *Tracker) Cycles() int { return int(t.cycles.Load()) }

// Elapsed returns wall-clock time since the tracker was created.
func (t *Tracker) Elapsed() time.Duration { return t.now().Sub(t.startedAt) }

// CheckBudget reports whether any limit has been reached. A zero limit on
// an axis means that axis is unbounded.
func (t *Tracker) CheckBudget() BudgetStatus {
	if elapsed := t.Elapsed(); t.budget.MaxDuration > 0 && elapsed >= t.budget.MaxDuration {
		return BudgetStatus{
			Exceeded: true,
			Reason: fmt.Sprintf("time budget exhausted: %s elapsed of %s allowed",
				elapsed.Round(time.Second), t.budget.MaxDuration),
			Suggestions: exhaustedSuggestions,
		}
	}
	if calls := t.ToolCalls(); t.budget.MaxToolCalls > 0 && calls >= t.budget.MaxToolCalls {
		return BudgetStatus{
			Exceeded: true,
			Reason: fmt.Sprintf("tool-call budget exhausted: %d of %d allowed",
				calls, t.budget.MaxToolCalls),
			Suggestions: exhaustedSuggestions,
		}
	}
	if cycles := t.Cycles(); t.budget.MaxCycles > 0 && cycles >= t.budget.MaxCycles {
		return BudgetStatus{
			Exceeded: true,
			Reason: fmt.Sprintf("reasoning-cycle budget exhausted: %d of %d allowed",
				cycles, t.budget.MaxCycles),
			Suggestions: exhaustedSuggestions,
		}
	}
	return BudgetStatus{}
}

// GetUtilization returns consumption on each axis as a percentage.
func (t *Tracker) GetUtilization() Utilization {
	return Utilization{
		Time:      percent(float64(t.Elapsed()), float64(t.budget.MaxDuration)),
		ToolCalls: percent(float64(t.ToolCalls()), float64(t.budget.MaxToolCalls)),
		Cycles:    percent(float64(t.Cycles()), float64(t.budget.MaxCycles)),
	}
}

// IsApproachingLimit reports whether any axis is above 80% utilization.
func (t *Tracker) IsApproachingLimit() bool {
	return t.GetUtilization().Max() > approachingThreshold
}

// GetWarning returns a human-readable warning once any axis passes 80%
// utilization. The second return value is false while the run is healthy.
func (t *Tracker) GetWarning() (string, bool) {
	u := t.GetUtilization()
	switch m := u.Max(); {
	case m <= approachingThreshold:
		return "", false
	case m == u.Time:
		return fmt.Sprintf("execution has used %.0f%% of its time budget", u.Time), true
	case m == u.ToolCalls:
		return fmt.Sprintf("execution has used %.0f%% of its tool-call budget", u.ToolCalls), true
	default:
		return fmt.Sprintf("execution has used %.0f%% of its reasoning-cycle budget", u.Cycles), true
	}
}

// percent clamps used/limit to [0,100]; an unlimited axis reports 0.
func percent(used, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	p := 100 * used / limit
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
