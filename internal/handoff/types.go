// Package handoff persists structured continuation records keyed by agent
// role and formats the replay context a successor agent's first prompt is
// seeded with.
package handoff

import (
	"time"

	"github.com/kream0/autonoma-sub001/internal/agent"
)

// ContinuationBlock is the parsed body of a handoff record: the structured
// continuation an agent reports when handoffRequired fires mid-task.
type ContinuationBlock struct {
	FilesModified  []string `json:"files_modified"`
	FilesToTouch   []string `json:"files_to_touch"`
	CurrentState   string   `json:"current_state"`
	Blockers       []string `json:"blockers"`
	NextSteps      []string `json:"next_steps"`
	Context        string   `json:"context"`
}

// Record is a single handoff event: a predecessor agent's continuation
// state, the task it was mid-execution on, and — once a successor is
// created — a back-filled reference to that successor so the chain of
// replacements for a role is traversable.
type Record struct {
	PredecessorAgentID string            `json:"predecessor_agent_id"`
	Role               agent.Role        `json:"role"`
	CurrentTaskID      string            `json:"current_task_id"`
	Timestamp          time.Time         `json:"timestamp"`
	FinalUsage         agent.TokenUsage  `json:"final_usage"`
	Continuation       ContinuationBlock `json:"continuation"`
	SuccessorAgentID   string            `json:"successor_agent_id,omitempty"`
}

// Minimal reports whether this record carries only identity and
// token-usage — the parser's fallback when no continuation block could be
// recovered from the predecessor's last output.
func (r *Record) Minimal() bool {
	return r.Continuation.CurrentState == "" &&
		len(r.Continuation.FilesModified) == 0 &&
		len(r.Continuation.NextSteps) == 0
}
