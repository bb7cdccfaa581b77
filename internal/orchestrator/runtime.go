package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kream0/autonoma-sub001/internal/agent"
	"github.com/kream0/autonoma-sub001/internal/config"
	ctxwatch "github.com/kream0/autonoma-sub001/internal/context"
	"github.com/kream0/autonoma-sub001/internal/handoff"
)

// maxObservationChars gates when an invocation's output is, in addition to
// its full copy under logs/, also spilled to observations/ as its own
// file — the same character-budget idiom the handoff package's replay
// block truncation uses, applied here to "this output is big enough that
// a human or a later agent will want it addressable on its own".
const maxObservationChars = 20000

// AgentRuntime is the concrete phases.Runtime: it owns every live agent
// session, the per-agent context budget, and the single handoff store
// every role's continuation passes through. Singleton roles (CEO, Staff,
// QA) are tracked by role; Developer and E2E sessions are tracked by
// agent id only, since a Development batch may hold several concurrently.
//
// A handoff is implemented as reusing the same *agent.Session rather than
// allocating a new one: phases package code (runOneTask, runBatchSequential)
// holds onto the *agent.Session pointer it received from SpawnAgent across
// every retry of a task, and the Runtime interface gives no way to swap
// that pointer out from under the caller. Resetting the same session's
// watcher state and prefixing its next prompt with a replay block
// satisfies "a new developer with the same role/name is created" (the
// agent id is unchanged) without requiring phases to re-fetch a session
// mid-task.
type AgentRuntime struct {
	workDir   string
	agentsCfg map[string]config.AgentConfig
	watcher   *ctxwatch.Watcher
	handoffs  *handoff.Store
	logger    *TagLogger
	watchdog  *Watchdog

	mu            sync.Mutex
	singletons    map[agent.Role]*agent.Session
	byAgentID     map[string]*agent.Session
	lastOutput    map[string]string
	lastTaskID    map[string]string
	pendingReplay map[string]*handoff.Record
}

// NewAgentRuntime constructs an AgentRuntime over workDir. The watcher's
// threshold/handoff callbacks are wired internally, closing the loop
// between ContextWatcher and the handoff path without the orchestrator
// having to mediate every call.
func NewAgentRuntime(workDir string, agentsCfg map[string]config.AgentConfig, handoffs *handoff.Store, logger *TagLogger, contextLimit int) *AgentRuntime {
	r := &AgentRuntime{
		workDir:       workDir,
		agentsCfg:     agentsCfg,
		handoffs:      handoffs,
		logger:        logger,
		watchdog:      NewWatchdog(),
		singletons:    make(map[agent.Role]*agent.Session),
		byAgentID:     make(map[string]*agent.Session),
		lastOutput:    make(map[string]string),
		lastTaskID:    make(map[string]string),
		pendingReplay: make(map[string]*handoff.Record),
	}
	r.watcher = ctxwatch.New(contextLimit, r.onThreshold, r.onHandoff)
	return r
}

func roleConfigKey(role agent.Role) string {
	switch role {
	case agent.RoleCEO:
		return "ceo"
	case agent.RoleStaff:
		return "staff-engineer"
	case agent.RoleQA:
		return "qa"
	case agent.RoleE2E:
		return "e2e"
	default:
		return "developer"
	}
}

func buildCommand(info agent.RoleInfo, acfg config.AgentConfig) agent.Command {
	args := append([]string{}, acfg.BaseArgs...)
	if info.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", info.SystemPrompt)
	}
	return agent.Command{
		Path:           acfg.Path,
		BaseArgs:       args,
		PromptViaStdin: acfg.PromptViaStdin,
	}
}

// FindAgent implements phases.Runtime. Only singleton roles are tracked
// this way; Developer/E2E sessions are addressed directly by the pointer
// phases already hold from SpawnAgent.
func (r *AgentRuntime) FindAgent(role agent.Role) (*agent.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.singletons[role]
	return sess, ok
}

// SpawnAgent implements phases.Runtime: builds the role's Command from
// configuration, constructs a fresh Session, and registers it with the
// context watcher. If an unconsumed handoff record already exists for
// this role (e.g. left over from a crash before the successor's first
// prompt went out), its replay block is queued for this session's first
// invocation.
func (r *AgentRuntime) SpawnAgent(role agent.Role, agentID string) (*agent.Session, error) {
	info, err := agent.LookupRole(role)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: spawn %s: %w", agentID, err)
	}

	acfg, ok := r.agentsCfg[roleConfigKey(role)]
	if !ok {
		acfg, ok = r.agentsCfg["developer"]
		if !ok {
			return nil, fmt.Errorf("orchestrator: no agent configuration for role %q", role)
		}
	}

	sess := agent.NewSession(agentID, role, r.workDir, buildCommand(info, acfg))

	r.mu.Lock()
	if role.Singleton() {
		r.singletons[role] = sess
	}
	r.byAgentID[agentID] = sess
	r.mu.Unlock()

	r.watcher.Register(agentID)

	if rec := r.handoffs.Latest(role); rec != nil && rec.SuccessorAgentID == "" {
		r.mu.Lock()
		r.pendingReplay[agentID] = rec
		r.mu.Unlock()
		if err := r.handoffs.BackfillSuccessor(role, agentID); err != nil {
			r.logger.Emit("runtime", "agent %s: failed to backfill handoff successor: %v", agentID, err)
		}
	}

	r.logger.Emit("runtime", "spawned %s agent %s", role, agentID)
	return sess, nil
}

// StartAgent implements phases.Runtime: prefixes a queued replay block
// (if this session has one pending from a handoff), dispatches the
// prompt, persists the invocation's full output under logs/ (and, if
// oversize, a second copy under observations/), and feeds the reported
// token usage into the context watcher.
func (r *AgentRuntime) StartAgent(ctx context.Context, sess *agent.Session, taskID, prompt string) (string, error) {
	r.mu.Lock()
	rec, pending := r.pendingReplay[sess.AgentID]
	if pending {
		delete(r.pendingReplay, sess.AgentID)
	}
	r.mu.Unlock()

	if pending {
		prompt = handoff.BuildReplayBlock(rec) + "\n" + prompt
		r.logger.Emit("handoff", "agent %s: prefixed replay block from predecessor %s", sess.AgentID, rec.PredecessorAgentID)
	}

	r.watchdog.Touch(sess.AgentID, time.Now())
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	go r.watchSession(monitorCtx, sess)

	at := time.Now()
	output, runErr := sess.Start(ctx, prompt)
	stopMonitor()

	if logErr := writeInvocationLog(r.workDir, sess.AgentID, output, at); logErr != nil {
		r.logger.Emit("runtime", "agent %s: failed to persist invocation log: %v", sess.AgentID, logErr)
	}
	if len(output) > maxObservationChars {
		if obsErr := writeObservation(r.workDir, sess.AgentID, output, at); obsErr != nil {
			r.logger.Emit("runtime", "agent %s: failed to spill oversize output to observations: %v", sess.AgentID, obsErr)
		} else {
			r.logger.Emit("runtime", "agent %s: output %d bytes; spilled to observations/", sess.AgentID, len(output))
		}
	}

	r.mu.Lock()
	r.lastOutput[sess.AgentID] = output
	r.lastTaskID[sess.AgentID] = taskID
	r.mu.Unlock()

	if usage := sess.Usage(); usage.Total() > 0 {
		r.watcher.Update(sess.AgentID, usage.Total())
	}

	r.watchdog.Reset(sess.AgentID)

	return output, runErr
}

// watchSession drains sess.Events for the duration of one blocking Start
// call, touching the watchdog on every observed output line and, on a
// stall severe enough to warrant it, killing the session. Reading Events
// is optional for correctness (emit drops rather than blocks a slow
// consumer), so this goroutine only ever improves liveness detection,
// never the session's own behavior.
func (r *AgentRuntime) watchSession(ctx context.Context, sess *agent.Session) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sess.Events:
			if !ok {
				return
			}
			if evt.Kind == agent.EventOutput {
				r.watchdog.Touch(sess.AgentID, time.Now())
			}
		case now := <-ticker.C:
			switch r.watchdog.Decide(sess.AgentID, now) {
			case ActionInjectGuidance:
				r.logger.Emit("watchdog", "agent %s: stalled past %s, nudging on next prompt", sess.AgentID, StallThreshold)
			case ActionRespawn:
				r.logger.Emit("watchdog", "agent %s: stalled past respawn threshold, killing to force a retry", sess.AgentID)
				sess.Kill()
			case ActionEscalateToUser:
				r.logger.Emit("watchdog", "agent %s: stalled again after respawn, escalating to human queue", sess.AgentID)
				sess.Kill()
			}
		}
	}
}

// CleanupDevelopers implements phases.Runtime: kills every session,
// unregisters it from the watcher, and clears the shared per-role
// handoff record once for the batch, since handoff.Store keeps only the
// single most recent record per role rather than per agent id.
func (r *AgentRuntime) CleanupDevelopers(sessions []*agent.Session) {
	for _, sess := range sessions {
		sess.Kill()
		r.watcher.Unregister(sess.AgentID)
		r.watchdog.Reset(sess.AgentID)
		r.mu.Lock()
		delete(r.byAgentID, sess.AgentID)
		delete(r.lastOutput, sess.AgentID)
		delete(r.lastTaskID, sess.AgentID)
		delete(r.pendingReplay, sess.AgentID)
		r.mu.Unlock()
	}
	if len(sessions) == 0 {
		return
	}
	if err := r.handoffs.Clear(sessions[0].Role); err != nil {
		r.logger.Emit("runtime", "failed clearing handoff record for %s: %v", sessions[0].Role, err)
	}
	r.logger.Emit("runtime", "destroyed %d developer agent(s)", len(sessions))
}

// SaveAgentLog implements phases.Runtime for callers outside the normal
// StartAgent path (the orchestrator persists a final CEO summary this
// way at run completion).
func (r *AgentRuntime) SaveAgentLog(agentID, content string) error {
	return writeInvocationLog(r.workDir, agentID, content, time.Now())
}

// KillAll terminates every tracked session, singleton or developer,
// regardless of status. Safe to call more than once.
func (r *AgentRuntime) KillAll() {
	r.mu.Lock()
	sessions := make([]*agent.Session, 0, len(r.byAgentID))
	for _, sess := range r.byAgentID {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Kill()
		r.watchdog.Reset(sess.AgentID)
	}
}

// PercentUsed exposes the context watcher's per-agent usage for status
// reporting.
func (r *AgentRuntime) PercentUsed(agentID string) int {
	return r.watcher.PercentUsed(agentID)
}

func (r *AgentRuntime) onThreshold(agentID string, threshold int, message string) {
	r.logger.Emit("context", "agent %s: %s", agentID, message)
}

// onHandoff is the context watcher's one-shot callback at the final
// threshold: it builds a continuation record from the agent's most recent
// output, writes it to the handoff store, resets the watcher's counters
// for this agent id, and queues the replay block for the session's next
// invocation.
func (r *AgentRuntime) onHandoff(agentID string) {
	r.mu.Lock()
	sess, ok := r.byAgentID[agentID]
	output := r.lastOutput[agentID]
	taskID := r.lastTaskID[agentID]
	r.mu.Unlock()
	if !ok {
		return
	}

	rec := handoff.BuildRecord(agentID, sess.Role, taskID, sess.Usage(), output)
	if err := r.handoffs.Write(rec); err != nil {
		r.logger.Emit("handoff", "agent %s: failed to persist handoff record: %v", agentID, err)
		return
	}

	r.watcher.Reset(agentID)
	r.watchdog.Reset(agentID)

	r.mu.Lock()
	r.pendingReplay[agentID] = rec
	r.mu.Unlock()

	r.logger.Emit("handoff", "agent %s crossed the handoff threshold on task %q; next prompt carries a replay block", agentID, taskID)
}
