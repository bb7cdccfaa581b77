package state

import "time"

// STATEVersion is the current PersistedState schema version. Migration
// terminates here regardless of how old the on-disk version is.
const STATEVersion = 4

// Task is one developer task inside a Batch.
type Task struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	TargetFiles       []string `json:"targetFiles,omitempty"`
	Complexity        string   `json:"complexity,omitempty"`
	Status            string   `json:"status"`
	AssignedTo        string   `json:"assignedTo,omitempty"`
	RetryCount        int      `json:"retryCount"`
	MaxRetries        int      `json:"maxRetries"`
	LastFailureReason string   `json:"lastFailureReason,omitempty"`
}

// Batch is one totally-ordered unit of development work.
type Batch struct {
	BatchID         string `json:"batchId"`
	Parallel        bool   `json:"parallel"`
	MaxParallel     int    `json:"maxParallelTasks,omitempty"`
	Description     string `json:"description,omitempty"`
	Status          string `json:"status"`
	Tasks           []Task `json:"tasks"`
}

// Milestone is one entry of the CEO's plan.
type Milestone struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Plan is the CEO's ordered set of milestones.
type Plan struct {
	Milestones []Milestone `json:"milestones"`
}

// PersistedState is the top-level on-disk orchestration record.
// Requirements and project-context content are deliberately never
// persisted here — only a path and a presence flag.
type PersistedState struct {
	Version                int             `json:"version"`
	StartedAt              time.Time       `json:"startedAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`
	Phase                  string          `json:"phase"`
	RequirementsPath       string          `json:"requirementsPath"`
	HasProjectContext      bool            `json:"hasProjectContext"`
	Plan                   Plan            `json:"plan"`
	Batches                []Batch         `json:"batches"`
	CurrentBatchIndex      int             `json:"currentBatchIndex"`
	CurrentTasksInProgress []string        `json:"currentTasksInProgress"`
	CompletedPhases        map[string]bool `json:"completedPhases"`
	LastTestOutput         string          `json:"lastTestOutput,omitempty"`
	LastQaOutput           string          `json:"lastQaOutput,omitempty"`
	CEOApprovalAttempts    int             `json:"ceoApprovalAttempts"`
	CEOFeedback            string          `json:"ceoFeedback,omitempty"`
	Handoffs               []HandoffRecord `json:"handoffs,omitempty"`
	TotalLoopIterations    int             `json:"totalLoopIterations"`
}

// HandoffRecord is the persisted shape of a handoff event, independent of
// internal/handoff.Record so state.go has no import-cycle dependency on
// the handoff package.
type HandoffRecord struct {
	PredecessorAgentID string    `json:"predecessorAgentId"`
	Role               string    `json:"role"`
	CurrentTaskID       string    `json:"currentTaskId"`
	Timestamp           time.Time `json:"timestamp"`
	SuccessorAgentID    string    `json:"successorAgentId,omitempty"`
}

// RewindPhases is the fixed set of phases a CEO rejection atomically
// removes from CompletedPhases.
var RewindPhases = []string{"development", "testing", "review", "ceo-approval"}

// CompletePhase marks a phase done. Invoking it twice has the same effect
// as once.
func (s *PersistedState) CompletePhase(phase string) {
	if s.CompletedPhases == nil {
		s.CompletedPhases = make(map[string]bool)
	}
	s.CompletedPhases[phase] = true
}

// Rewind removes the mutable phases a CEO rejection invalidates and
// resets every batch/task to pending, per the CEO-Approval REJECT
// contract.
func (s *PersistedState) Rewind() {
	for _, p := range RewindPhases {
		delete(s.CompletedPhases, p)
	}
	s.CurrentBatchIndex = 0
	s.CurrentTasksInProgress = nil
	for bi := range s.Batches {
		s.Batches[bi].Status = "pending"
		for ti := range s.Batches[bi].Tasks {
			s.Batches[bi].Tasks[ti].Status = "pending"
			s.Batches[bi].Tasks[ti].RetryCount = 0
		}
	}
}
