// Package memory defines the narrow memory interface PhaseContext exposes
// to phases: record learnings at task completion, query hits by tag during
// prompt assembly. The store itself is kept out of this package on
// purpose, consumed only through this interface; the concrete backing
// store lives in internal/state, against the autonoma.db memories table
// and its full-text index. This package also carries the agent-output
// signal vocabulary phases parse learnings from.
package memory

import "time"

// SignalType is the kind of memory signal an agent's output can carry.
type SignalType string

const (
	KeyFact      SignalType = "KEY_FACT"
	Decision     SignalType = "DECISION"
	Learning     SignalType = "LEARNING"
	FileModified SignalType = "FILE_MODIFIED"
)

// Signal is one parsed memory signal extracted from agent output.
type Signal struct {
	Type    SignalType
	Content string
}

// Entry is a single persisted memory entry.
type Entry struct {
	Type      SignalType `json:"type"`
	Content   string     `json:"content"`
	TaskID    string     `json:"task_id,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Interface is the narrow capability PhaseContext hands to phases: record
// learnings at task completion, and query hits for a free-text tag such as
// "architecture" or "decisions" during prompt assembly.
type Interface interface {
	Record(entries []Entry) error
	Query(tag string, limit int) ([]Entry, error)
}
