package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kream0/autonoma-sub001/internal/agent"
	"github.com/kream0/autonoma-sub001/internal/config"
	"github.com/kream0/autonoma-sub001/internal/memory"
	"github.com/kream0/autonoma-sub001/internal/phases"
	"github.com/kream0/autonoma-sub001/internal/retry"
	"github.com/kream0/autonoma-sub001/internal/state"
	"github.com/kream0/autonoma-sub001/internal/verify"
)

// scriptedPhaseRuntime is a minimal phases.Runtime fake, grounded on the
// phases package's own scriptedRuntime test fixture, sized to exactly
// what orchestrator-level tests need: a single canned reply per role.
type scriptedPhaseRuntime struct {
	replies map[agent.Role]string
	sess    map[agent.Role]*agent.Session
}

func newScriptedPhaseRuntime() *scriptedPhaseRuntime {
	return &scriptedPhaseRuntime{
		replies: make(map[agent.Role]string),
		sess:    make(map[agent.Role]*agent.Session),
	}
}

func (r *scriptedPhaseRuntime) FindAgent(role agent.Role) (*agent.Session, bool) {
	s, ok := r.sess[role]
	return s, ok
}

func (r *scriptedPhaseRuntime) SpawnAgent(role agent.Role, agentID string) (*agent.Session, error) {
	s := &agent.Session{AgentID: agentID, Role: role}
	r.sess[role] = s
	return s, nil
}

func (r *scriptedPhaseRuntime) StartAgent(ctx context.Context, sess *agent.Session, taskID, prompt string) (string, error) {
	return r.replies[sess.Role], nil
}

func (r *scriptedPhaseRuntime) CleanupDevelopers(sessions []*agent.Session) {}

func (r *scriptedPhaseRuntime) SaveAgentLog(agentID, content string) error { return nil }

type noopMemory struct{}

func (noopMemory) Record(entries []memory.Entry) error             { return nil }
func (noopMemory) Query(tag string, limit int) ([]memory.Entry, error) { return nil, nil }

type noopHumanQueue struct{}

func (noopHumanQueue) Enqueue(sessionID, taskID, reason string) error { return nil }

func newTestOrchestrator(t *testing.T, rt phases.Runtime) (*Orchestrator, *phases.PhaseContext) {
	t.Helper()
	workDir := t.TempDir()

	db, err := state.Open(filepath.Join(workDir, "autonoma.db"))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	o := &Orchestrator{
		cfg:       &config.Config{},
		workDir:   workDir,
		sessionID: "sess-1",
		db:        db,
		logger:    newTestLogger(),
	}
	o.State = state.New("requirements.md", false)

	pc := &phases.PhaseContext{
		WorkDir:        workDir,
		SessionID:      "sess-1",
		Requirements:   "Build a widget.",
		State:          o.State,
		Memory:         noopMemory{},
		HumanQueue:     noopHumanQueue{},
		RetryStore:     retry.NewStore(),
		Runtime:        rt,
		Logger:         o.logger,
		MaxTaskRetries: 2,
		SaveState:      func() error { return nil },
	}
	return o, pc
}

func TestOrchestratorRunOneCycleUnknownPhaseErrors(t *testing.T) {
	o, pc := newTestOrchestrator(t, newScriptedPhaseRuntime())
	o.State.Phase = "bogus"

	if err := o.RunOneCycle(context.Background(), pc); err == nil {
		t.Fatal("expected an error for an unrecognized phase")
	}
}

func TestOrchestratorRunOneCycleCEOApprovalApproveMarksComplete(t *testing.T) {
	rt := newScriptedPhaseRuntime()
	rt.replies[agent.RoleCEO] = "```json\n" +
		`{"decision":"APPROVE","confidence":0.9,"summary":"looks good"}` +
		"\n```\nCEO_DECISION"

	o, pc := newTestOrchestrator(t, rt)
	o.State.Phase = "ceo-approval"

	if err := o.RunOneCycle(context.Background(), pc); err != nil {
		t.Fatalf("RunOneCycle: %v", err)
	}
	if o.State.Phase != phaseComplete {
		t.Fatalf("Phase = %q, want %q after CEO approval", o.State.Phase, phaseComplete)
	}
}

func TestOrchestratorRunOneCycleCEOApprovalRejectRewindsToDevelopment(t *testing.T) {
	rt := newScriptedPhaseRuntime()
	rt.replies[agent.RoleCEO] = "```json\n" +
		`{"decision":"REJECT","confidence":0.4,"summary":"missing tests",` +
		`"requiredChanges":[{"priority":"high","what":"add tests","why":"coverage","where":"pkg/foo","how":"table tests"}]}` +
		"\n```\nCEO_DECISION"

	o, pc := newTestOrchestrator(t, rt)
	o.State.Phase = "ceo-approval"
	o.State.CompletePhase("development")
	o.State.CompletePhase("testing")

	if err := o.RunOneCycle(context.Background(), pc); err != nil {
		t.Fatalf("RunOneCycle: %v", err)
	}
	if o.State.Phase != "development" {
		t.Fatalf("Phase = %q, want development after a REJECT within budget", o.State.Phase)
	}
	if o.State.CompletedPhases["development"] {
		t.Fatal("Rewind should have cleared the development phase's completion flag")
	}
	if o.State.CEOFeedback == "" {
		t.Fatal("expected CEOFeedback to carry the rejection's required changes")
	}
}

func TestOrchestratorReplanWithGuidanceRewindsAndAppendsFeedback(t *testing.T) {
	o, pc := newTestOrchestrator(t, newScriptedPhaseRuntime())
	o.State.Phase = "review"
	o.State.CEOFeedback = "earlier note"
	o.State.CompletePhase("development")

	o.ReplanWithGuidance("stop using global variables", pc)

	if o.State.Phase != "development" {
		t.Fatalf("Phase = %q, want development", o.State.Phase)
	}
	if o.State.CEOFeedback != "earlier note\n\nstop using global variables" {
		t.Fatalf("CEOFeedback = %q", o.State.CEOFeedback)
	}
	if o.State.CompletedPhases["development"] {
		t.Fatal("guidance should rewind the same phases a CEO rejection does")
	}
}

func TestOrchestratorSnapshotAggregatesProgress(t *testing.T) {
	o, _ := newTestOrchestrator(t, newScriptedPhaseRuntime())
	o.State.Phase = "development"
	o.State.Batches = []state.Batch{
		{
			BatchID: "batch-1",
			Status:  "complete",
			Tasks: []state.Task{
				{ID: "t-1", Status: "complete"},
				{ID: "t-2", Status: "complete"},
			},
		},
		{
			BatchID: "batch-2",
			Status:  "running",
			Tasks: []state.Task{
				{ID: "t-3", Status: "pending"},
			},
		},
	}

	snap := o.snapshot()
	if snap.Progress.BatchesTotal != 2 || snap.Progress.BatchesDone != 1 {
		t.Fatalf("batch progress = %+v", snap.Progress)
	}
	if snap.Progress.TasksTotal != 3 || snap.Progress.TasksDone != 2 {
		t.Fatalf("task progress = %+v", snap.Progress)
	}
}

func TestOrchestratorResumeRejectsMigratedRequirementsMarker(t *testing.T) {
	workDir := t.TempDir()

	db, err := state.Open(filepath.Join(workDir, "autonoma.db"))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	o := &Orchestrator{
		cfg:     &config.Config{},
		workDir: workDir,
		db:      db,
		logger:  newTestLogger(),
		status:  NewStatusWriter(filepath.Join(workDir, "status.json")),
	}

	migrated := state.New(state.MigratedRequirementsMarker, false)
	migrated.RequirementsPath = state.MigratedRequirementsMarker
	if err := state.Save(o.statePath(), migrated); err != nil {
		t.Fatalf("state.Save: %v", err)
	}

	err = o.Resume(context.Background())
	if err == nil {
		t.Fatal("expected Resume to error on a migrated requirements marker")
	}
}

func TestOrchestratorVerifyChecksFillsTypeCheckFromDetectCommands(t *testing.T) {
	o, _ := newTestOrchestrator(t, newScriptedPhaseRuntime())
	if err := os.WriteFile(filepath.Join(o.workDir, "go.mod"), []byte("module example.com/widget\n\ngo 1.22\n"), 0o644); err != nil {
		t.Fatalf("WriteFile go.mod: %v", err)
	}

	checks := o.verifyChecks()

	var sawTypeCheck bool
	for _, c := range checks {
		if c.Criterion == verify.CriterionTypeCheck {
			sawTypeCheck = true
		}
	}
	if !sawTypeCheck {
		t.Fatalf("verifyChecks() = %+v, want a type-check criterion from verify.DetectCommands "+
			"since scanner.ProjectInfo has no type-check field of its own", checks)
	}
}

func TestOrchestratorHasUnresolvedHumanQueue(t *testing.T) {
	o, _ := newTestOrchestrator(t, newScriptedPhaseRuntime())

	if o.HasUnresolvedHumanQueue() {
		t.Fatal("a fresh run should have no pending human-queue entries")
	}

	if err := o.db.Enqueue(o.sessionID, "t-1", "ambiguous requirement"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if !o.HasUnresolvedHumanQueue() {
		t.Fatal("expected an unresolved entry after Enqueue")
	}
}
