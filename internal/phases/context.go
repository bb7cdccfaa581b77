// Package phases implements the six PhaseRunners that drive one
// orchestration cycle: Planning, Task-Breakdown, Development, Testing,
// Review, and CEO-Approval. Each phase is written as a function over a
// PhaseContext value — the narrow capability bag an orchestrator
// assembles and hands down — so a phase never reaches into the
// orchestrator's private storage directly.
package phases

import (
	"context"

	"github.com/kream0/autonoma-sub001/internal/agent"
	"github.com/kream0/autonoma-sub001/internal/handoff"
	"github.com/kream0/autonoma-sub001/internal/memory"
	"github.com/kream0/autonoma-sub001/internal/retry"
	"github.com/kream0/autonoma-sub001/internal/state"
	"github.com/kream0/autonoma-sub001/internal/verify"
)

// Logger is the single emission path every significant phase transition
// goes through, so the log files under logs/ and any external monitor
// stay in sync (the emitOutput hook).
type Logger interface {
	Emit(tag, format string, args ...any)
}

// HumanQueuer is the narrow human-queue capability a phase needs: raise
// an escalation when a task exhausts its retries.
type HumanQueuer interface {
	Enqueue(sessionID, taskID, reason string) error
}

// Runtime is the agent-lifecycle capability phases drive: finding the
// live singleton for a role, spawning new sessions (singleton
// replacement, or one-per-developer for a batch), dispatching a prompt
// and blocking for the run, and tearing a batch's developers down.
type Runtime interface {
	FindAgent(role agent.Role) (*agent.Session, bool)
	SpawnAgent(role agent.Role, agentID string) (*agent.Session, error)
	StartAgent(ctx context.Context, sess *agent.Session, taskID, prompt string) (string, error)
	CleanupDevelopers(sessions []*agent.Session)
	SaveAgentLog(agentID, content string) error
}

// PhaseContext is the capability bag every PhaseRunner receives. Fields
// are exported because phases live in the same package and operate on
// it directly, the way agentium's phase_loop.go methods operate on a
// *Controller.
type PhaseContext struct {
	WorkDir         string
	SessionID       string
	Requirements    string // content, never persisted — only RequirementsPath is
	ProjectDocsText string // enumerated project docs for an `adopt` run, never persisted
	HasProjectDocs  bool

	State *state.PersistedState

	Memory     memory.Interface
	HumanQueue HumanQueuer
	RetryStore *retry.Store
	Handoffs   *handoff.Store
	Runtime    Runtime
	Logger     Logger

	VerifyChecks   []verify.Check
	MaxTaskRetries int

	SaveState func() error
}

// DefaultMaxTaskRetries is used when a task's own MaxRetries is unset.
const DefaultMaxTaskRetries = 2

// ReviewMaxRounds bounds the Review phase's selective-retry loop.
const ReviewMaxRounds = 2

func (pc *PhaseContext) emit(tag, format string, args ...any) {
	if pc.Logger != nil {
		pc.Logger.Emit(tag, format, args...)
	}
}

func (pc *PhaseContext) save() error {
	if pc.SaveState == nil {
		return nil
	}
	return pc.SaveState()
}

func taskMaxRetries(t *state.Task, pc *PhaseContext) int {
	if t.MaxRetries > 0 {
		return t.MaxRetries
	}
	if pc.MaxTaskRetries > 0 {
		return pc.MaxTaskRetries
	}
	return DefaultMaxTaskRetries
}

// findTask locates a task by id across all batches.
func findTask(s *state.PersistedState, taskID string) (*state.Task, *state.Batch) {
	for bi := range s.Batches {
		for ti := range s.Batches[bi].Tasks {
			if s.Batches[bi].Tasks[ti].ID == taskID {
				return &s.Batches[bi].Tasks[ti], &s.Batches[bi]
			}
		}
	}
	return nil, nil
}
