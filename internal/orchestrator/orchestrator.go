// Package orchestrator owns the agent map, task state, and phase loop
// for one Autonoma run: it assembles a phases.PhaseContext from its own
// storage and dispatches to the six PhaseRunners in sequence, the way the
// teacher's Controller drives its phase loop from a single owning struct
// instead of a global registry.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kream0/autonoma-sub001/internal/config"
	"github.com/kream0/autonoma-sub001/internal/handoff"
	"github.com/kream0/autonoma-sub001/internal/memory"
	"github.com/kream0/autonoma-sub001/internal/observability"
	"github.com/kream0/autonoma-sub001/internal/phases"
	"github.com/kream0/autonoma-sub001/internal/retry"
	"github.com/kream0/autonoma-sub001/internal/scanner"
	"github.com/kream0/autonoma-sub001/internal/security"
	"github.com/kream0/autonoma-sub001/internal/state"
	"github.com/kream0/autonoma-sub001/internal/verify"
)

// terminal phases runOneCycle stops dispatching on.
const (
	phaseComplete = "complete"
	phaseFailed   = "failed"
)

// Orchestrator is the top-level object cmd/autonoma constructs: one per
// working directory, holding every piece of long-lived run state and the
// capabilities a PhaseContext is assembled from.
type Orchestrator struct {
	cfg       *config.Config
	workDir   string
	sessionID string

	db        *state.DB
	handoffs  *handoff.Store
	retries   *retry.Store
	runtime   *AgentRuntime
	tracer    observability.Tracer
	logger    *TagLogger
	memStore  memory.Interface
	guidance  *GuidanceWatcher
	status    *StatusWriter
	validator *security.CommandValidator

	shutdownOnce sync.Once

	State *state.PersistedState
}

// New assembles an Orchestrator for workDir under cfg. sessionID scopes
// the SQLite-backed memory and human-queue tables so multiple concurrent
// runs against different working directories never collide.
func New(cfg *config.Config, workDir, sessionID string) (*Orchestrator, error) {
	validator := security.NewCommandValidator()
	if err := validator.ValidateSessionID(sessionID); err != nil {
		return nil, fmt.Errorf("orchestrator: invalid session id: %w", err)
	}
	if err := validator.ValidatePath(workDir); err != nil {
		return nil, fmt.Errorf("orchestrator: invalid working directory: %w", err)
	}

	autonomaDir := filepath.Join(workDir, ".autonoma")
	if err := os.MkdirAll(autonomaDir, 0o750); err != nil {
		return nil, fmt.Errorf("orchestrator: creating .autonoma directory: %w", err)
	}

	db, err := state.Open(filepath.Join(autonomaDir, "autonoma.db"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: opening database: %w", err)
	}

	handoffs, err := handoff.NewStore(workDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("orchestrator: opening handoff store: %w", err)
	}

	tracer, err := buildTracer(cfg.Observability)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("orchestrator: building tracer: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(autonomaDir, "run.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("orchestrator: opening run log: %w", err)
	}
	stdLogger := log.New(logFile, "", log.LstdFlags)

	o := &Orchestrator{
		cfg:       cfg,
		workDir:   workDir,
		sessionID: sessionID,
		db:        db,
		handoffs:  handoffs,
		retries:   retry.NewStore(),
		tracer:    tracer,
		memStore:  state.NewMemoryStore(db, sessionID),
		status:    NewStatusWriter(filepath.Join(autonomaDir, "status.json")),
		validator: validator,
	}
	o.logger = NewTagLogger(stdLogger, o.onEmit)
	o.runtime = NewAgentRuntime(workDir, cfg.Agents, handoffs, o.logger, contextLimitFor(cfg))

	pollInterval, err := time.ParseDuration(cfg.Guidance.PollInterval)
	if err != nil {
		pollInterval = 5 * time.Second
	}
	o.guidance = NewGuidanceWatcher(filepath.Join(autonomaDir, "guidance.txt"), pollInterval)

	return o, nil
}

func contextLimitFor(cfg *config.Config) int {
	return 200_000
}

func buildTracer(cfg config.ObservabilityConfig) (observability.Tracer, error) {
	if !cfg.Enabled {
		return &observability.NoOpTracer{}, nil
	}
	return observability.NewOtelTracer(observability.OtelConfig{ServiceName: cfg.ServiceName})
}

// onEmit is the TagLogger callback that keeps status.json close to
// real-time without the phases package needing to know status.json
// exists: every tagged line is a candidate state-affecting event, and
// the single-flight StatusWriter makes an extra call here cheap.
func (o *Orchestrator) onEmit(tag, line string) {
	if o.State == nil {
		return
	}
	o.writeStatus()
}

// Close releases the database handle and flushes the tracer. Safe to
// call once, at process exit, after killAll.
func (o *Orchestrator) Close(ctx context.Context) error {
	_ = o.tracer.Flush(ctx)
	_ = o.tracer.Stop(ctx)
	return o.db.Close()
}

// statePath is where state.json lives for this run.
func (o *Orchestrator) statePath() string {
	return filepath.Join(o.workDir, ".autonoma", "state.json")
}

// newPhaseContext assembles the capability bag every PhaseRunner
// receives from the Orchestrator's own storage.
func (o *Orchestrator) newPhaseContext() *phases.PhaseContext {
	return &phases.PhaseContext{
		WorkDir:         o.workDir,
		SessionID:       o.sessionID,
		Requirements:    o.State.RequirementsPath,
		HasProjectDocs:  o.State.HasProjectContext,
		State:           o.State,
		Memory:          o.memStore,
		HumanQueue:      o.db,
		RetryStore:      o.retries,
		Handoffs:        o.handoffs,
		Runtime:         o.runtime,
		Logger:          o.logger,
		VerifyChecks:    o.verifyChecks(),
		MaxTaskRetries:  o.cfg.Retry.MaxTaskRetries,
		SaveState:       o.saveState,
	}
}

// verifyChecks builds the Development/Testing phases' build-test-lint-
// typecheck gate from explicit configuration if present, falling back to
// scanning the working tree for its build system the way `adopt` does
// for a project Autonoma has never seen configuration for.
func (o *Orchestrator) verifyChecks() []verify.Check {
	v := o.cfg.Verification
	if len(v.BuildCmd) > 0 || len(v.TestCmd) > 0 || len(v.LintCmd) > 0 || len(v.TypeCheckCmd) > 0 {
		return verify.StandardChecks(v.BuildCmd, v.TestCmd, v.LintCmd, v.TypeCheckCmd)
	}

	info, err := scanner.New(o.workDir).Scan()
	if err != nil {
		o.logger.Emit("scanner", "project scan failed, verification gate will be empty: %v", err)
		return nil
	}
	// scanner.ProjectInfo covers more build systems than it has a type-
	// check slot for; verify.DetectCommands's narrower Go/Node/Makefile
	// detection fills that one gap instead of duplicating the rest.
	_, _, _, typeCheck := verify.DetectCommands(o.workDir)
	return verify.StandardChecks(info.BuildCommands, info.TestCommands, info.LintCommands, typeCheck)
}

func (o *Orchestrator) saveState() error {
	return state.Save(o.statePath(), o.State)
}

// Start begins a fresh orchestration against requirements at reqPath: no
// state.json may already exist.
func (o *Orchestrator) Start(ctx context.Context, reqPath string) error {
	ctx, cancel := o.withSignalHandling(ctx)
	defer cancel()

	if existing, err := state.Load(o.statePath()); err != nil {
		return fmt.Errorf("orchestrator: checking for existing state: %w", err)
	} else if existing != nil {
		return fmt.Errorf("orchestrator: state.json already exists at %s; use resume", o.statePath())
	}

	reqBytes, err := os.ReadFile(reqPath)
	if err != nil {
		return fmt.Errorf("orchestrator: reading requirements: %w", err)
	}

	o.State = state.New(reqPath, false)
	pc := o.newPhaseContext()
	pc.Requirements = string(reqBytes)

	if err := o.saveState(); err != nil {
		return fmt.Errorf("orchestrator: persisting initial state: %w", err)
	}

	return o.runUntilTerminal(ctx, pc)
}

// Resume continues an existing orchestration from whatever phase
// state.json last recorded.
func (o *Orchestrator) Resume(ctx context.Context) error {
	ctx, cancel := o.withSignalHandling(ctx)
	defer cancel()

	loaded, err := state.Load(o.statePath())
	if err != nil {
		return fmt.Errorf("orchestrator: loading state: %w", err)
	}
	if loaded == nil {
		return fmt.Errorf("orchestrator: no state.json found at %s; use start", o.statePath())
	}
	if loaded.RequirementsPath == state.MigratedRequirementsMarker {
		return fmt.Errorf("orchestrator: state.json at %s carries a migrated requirements marker with no "+
			"recoverable requirements content; resume cannot continue without it — restart this project with start",
			o.statePath())
	}
	o.State = loaded

	pc := o.newPhaseContext()
	if o.State.RequirementsPath != "" {
		if reqBytes, err := os.ReadFile(o.State.RequirementsPath); err == nil {
			pc.Requirements = string(reqBytes)
		}
	}

	return o.runUntilTerminal(ctx, pc)
}

// Adopt begins an orchestration against an existing project: reqPath is
// still the requirements document, but contextPaths enumerate pre-existing
// project docs (READMEs, design notes) folded into the Planning phase's
// prompt instead of treated as greenfield.
func (o *Orchestrator) Adopt(ctx context.Context, reqPath string, contextPaths []string) error {
	ctx, cancel := o.withSignalHandling(ctx)
	defer cancel()

	if existing, err := state.Load(o.statePath()); err != nil {
		return fmt.Errorf("orchestrator: checking for existing state: %w", err)
	} else if existing != nil {
		return fmt.Errorf("orchestrator: state.json already exists at %s; use resume", o.statePath())
	}

	reqBytes, err := os.ReadFile(reqPath)
	if err != nil {
		return fmt.Errorf("orchestrator: reading requirements: %w", err)
	}

	var docs []byte
	for _, p := range contextPaths {
		content, err := os.ReadFile(p)
		if err != nil {
			o.logger.Emit("adopt", "skipping unreadable project doc %s: %v", p, err)
			continue
		}
		docs = append(docs, []byte(fmt.Sprintf("\n--- %s ---\n", p))...)
		docs = append(docs, content...)
	}

	o.State = state.New(reqPath, true)
	pc := o.newPhaseContext()
	pc.Requirements = string(reqBytes)
	pc.ProjectDocsText = string(docs)
	pc.HasProjectDocs = len(docs) > 0

	if err := o.saveState(); err != nil {
		return fmt.Errorf("orchestrator: persisting initial state: %w", err)
	}

	return o.runUntilTerminal(ctx, pc)
}

// RunInitialPhases drives only Planning and Task-Breakdown, the pair a
// caller might want to run without committing to the full development
// loop (e.g. to inspect the generated plan before continuing).
func (o *Orchestrator) RunInitialPhases(ctx context.Context, reqPath string) error {
	reqBytes, err := os.ReadFile(reqPath)
	if err != nil {
		return fmt.Errorf("orchestrator: reading requirements: %w", err)
	}

	o.State = state.New(reqPath, false)
	pc := o.newPhaseContext()
	pc.Requirements = string(reqBytes)

	if err := o.saveState(); err != nil {
		return err
	}

	for _, step := range []struct {
		phase string
		run   func(context.Context, *phases.PhaseContext) error
	}{
		{"planning", phases.Planning},
		{"task-breakdown", phases.TaskBreakdown},
	} {
		if o.State.Phase != step.phase {
			continue
		}
		if err := step.run(ctx, pc); err != nil {
			return fmt.Errorf("orchestrator: %s phase: %w", step.phase, err)
		}
		o.writeStatus()
	}
	return nil
}

// RunOneCycle dispatches exactly the phase runner for the state's
// current phase, leaving State.Phase advanced for the next call. It does
// not loop to completion; runUntilTerminal wraps it in the loop that
// does.
func (o *Orchestrator) RunOneCycle(ctx context.Context, pc *phases.PhaseContext) error {
	switch o.State.Phase {
	case "planning":
		return phases.Planning(ctx, pc)
	case "task-breakdown":
		return phases.TaskBreakdown(ctx, pc)
	case "development":
		return phases.Development(ctx, pc)
	case "testing":
		return phases.Testing(ctx, pc)
	case "review":
		return phases.Review(ctx, pc)
	case "ceo-approval":
		done, err := phases.CEOApproval(ctx, pc)
		if err != nil {
			return err
		}
		if done {
			o.State.Phase = phaseComplete
			return o.saveState()
		}
		return nil
	default:
		return fmt.Errorf("orchestrator: unknown phase %q", o.State.Phase)
	}
}

// runUntilTerminal repeatedly calls runOneCycle, checking for inbound
// guidance between phases, until the run reaches a terminal phase or ctx
// is cancelled.
func (o *Orchestrator) runUntilTerminal(ctx context.Context, pc *phases.PhaseContext) error {
	guidanceCtx, stopGuidance := context.WithCancel(ctx)
	defer stopGuidance()
	go o.guidance.Run(guidanceCtx)

	for {
		if o.State.Phase == phaseComplete || o.State.Phase == phaseFailed {
			o.writeStatus()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-o.guidance.Messages():
			o.ReplanWithGuidance(msg, pc)
		default:
		}

		if err := o.RunOneCycle(ctx, pc); err != nil {
			o.State.Phase = phaseFailed
			o.logger.Emit("orchestrator", "phase failed, aborting run: %v", err)
			_ = o.saveState()
			o.status.Flush(o.snapshot())
			return err
		}
		o.writeStatus()
	}
}

// ReplanWithGuidance folds an operator's inbound guidance message into
// CEO feedback and rewinds to development, the same recovery path a CEO
// rejection already drives through Rewind.
func (o *Orchestrator) ReplanWithGuidance(guidance string, pc *phases.PhaseContext) {
	o.logger.Emit("guidance", "applying operator guidance: %s", guidance)
	if o.State.CEOFeedback != "" {
		o.State.CEOFeedback += "\n\n"
	}
	o.State.CEOFeedback += guidance
	o.State.Rewind()
	o.State.Phase = "development"
	_ = o.saveState()
}

// HasUnresolvedHumanQueue reports whether this run has at least one
// escalation awaiting a human, used by the CLI entry point to tell a
// blocked run apart from an outright failed one.
func (o *Orchestrator) HasUnresolvedHumanQueue() bool {
	entries, err := o.db.PendingHumanQueue(o.sessionID)
	if err != nil {
		return false
	}
	return len(entries) > 0
}

func (o *Orchestrator) writeStatus() {
	o.status.Write(o.snapshot())
}

func (o *Orchestrator) snapshot() StatusSnapshot {
	snap := StatusSnapshot{
		Phase:      o.State.Phase,
		Iteration:  o.State.TotalLoopIterations,
		LastUpdate: time.Now().UTC(),
		Roles:      make(map[string]RoleStatus),
	}

	for _, b := range o.State.Batches {
		snap.Progress.BatchesTotal++
		if b.Status == "complete" {
			snap.Progress.BatchesDone++
		}
		for _, t := range b.Tasks {
			snap.Progress.TasksTotal++
			if t.Status == "complete" {
				snap.Progress.TasksDone++
			}
		}
	}

	if entries, err := o.db.PendingHumanQueue(o.sessionID); err == nil {
		for _, e := range entries {
			snap.HumanQueue = append(snap.HumanQueue, HumanQueueStatus{
				TaskID:    e.TaskID,
				Reason:    e.Reason,
				CreatedAt: e.CreatedAt,
			})
		}
	}

	return snap
}
