package agent

import "time"

// EventKind discriminates the sum-typed Event a Session emits. The design
// notes call for collapsing the output/status/error/token-update callback
// quartet into a single channel; Event is that sum type.
type EventKind string

const (
	// EventOutput carries one line (or aggregated block) of subprocess
	// output as it is produced.
	EventOutput EventKind = "output"
	// EventStatusChange carries a Status transition (running/complete/error).
	EventStatusChange EventKind = "status"
	// EventTokenUsage carries an updated cumulative TokenUsage reading.
	EventTokenUsage EventKind = "token_usage"
)

// Status is an AgentSession's lifecycle state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Event is the single event type a Session's channel carries. Exactly one
// of the kind-specific fields is meaningful for a given Kind.
type Event struct {
	Kind      EventKind
	AgentID   string
	Timestamp time.Time

	// EventOutput
	Line string

	// EventStatusChange
	Status Status
	Reason string // populated when Status == StatusError

	// EventTokenUsage
	Usage TokenUsage
}
