package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ProgressCounts summarizes a run's batch/task completion for the
// external-monitor snapshot.
type ProgressCounts struct {
	BatchesTotal int `json:"batchesTotal"`
	BatchesDone  int `json:"batchesDone"`
	TasksTotal   int `json:"tasksTotal"`
	TasksDone    int `json:"tasksDone"`
}

// RoleStatus is one role's entry in the status snapshot's per-role table.
type RoleStatus struct {
	AgentID            string `json:"agentId,omitempty"`
	Status             string `json:"status"`
	ContextUsedPercent int    `json:"contextUsedPercent"`
}

// HumanQueueStatus mirrors one unresolved human-queue escalation into the
// status snapshot, so an external monitor sees it without querying
// autonoma.db directly.
type HumanQueueStatus struct {
	TaskID    string    `json:"taskId"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// StatusSnapshot is the full external-monitor view written to
// status.json after every state-affecting event.
type StatusSnapshot struct {
	Phase      string                `json:"phase"`
	Iteration  int                   `json:"iteration"`
	Progress   ProgressCounts        `json:"progress"`
	Roles      map[string]RoleStatus `json:"roles"`
	HumanQueue []HumanQueueStatus    `json:"humanQueue,omitempty"`
	LastUpdate time.Time             `json:"lastUpdate"`
}

// StatusWriter writes status.json with single-flight semantics: a write
// already in flight suppresses a follow-up Write call outright, since
// status.json is a best-effort external-monitor snapshot, not a record
// any component reads back. Flush bypasses suppression for the one write
// that must land — the final snapshot at shutdown.
type StatusWriter struct {
	path string

	mu      sync.Mutex
	writing bool
}

// NewStatusWriter builds a StatusWriter over the given status.json path.
func NewStatusWriter(path string) *StatusWriter {
	return &StatusWriter{path: path}
}

// Write asynchronously persists snap, dropping the call entirely if a
// previous write is still in flight.
func (w *StatusWriter) Write(snap StatusSnapshot) {
	w.mu.Lock()
	if w.writing {
		w.mu.Unlock()
		return
	}
	w.writing = true
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			w.writing = false
			w.mu.Unlock()
		}()
		_ = atomicWriteJSON(w.path, &snap)
	}()
}

// Flush synchronously persists snap, waiting out any in-flight write
// first rather than suppressing — used at shutdown so the terminal status
// is never silently dropped.
func (w *StatusWriter) Flush(snap StatusSnapshot) error {
	for {
		w.mu.Lock()
		if !w.writing {
			w.writing = true
			w.mu.Unlock()
			break
		}
		w.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	defer func() {
		w.mu.Lock()
		w.writing = false
		w.mu.Unlock()
	}()
	return atomicWriteJSON(w.path, &snap)
}

// atomicWriteJSON marshals v and replaces path via a temp-file-then-rename,
// the same crash-safety idiom state.Save uses for state.json.
func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("orchestrator: marshaling status: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("orchestrator: creating status directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".status-*.json.tmp")
	if err != nil {
		return fmt.Errorf("orchestrator: creating temp status file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("orchestrator: writing temp status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("orchestrator: closing temp status file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("orchestrator: renaming temp status file into place: %w", err)
	}
	return nil
}
