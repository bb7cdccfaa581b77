package handoff

import (
	"strings"
	"testing"

	"github.com/kream0/autonoma-sub001/internal/agent"
)

func TestParseContinuationFullBlock(t *testing.T) {
	output := `Some preamble text.
<handoff>
<task_id>T-7</task_id>
<status>in_progress</status>
<files_modified><file>src/a.ts</file><file>src/b.ts</file></files_modified>
<files_to_touch><file>src/c.ts</file></files_to_touch>
<current_state>Implemented the parser, tests not yet written.</current_state>
<blockers><blocker>Unclear on retry semantics</blocker></blockers>
<next_steps><step>Write unit tests</step><step>Wire into caller</step></next_steps>
<context>Extra free-form notes.</context>
</handoff>`

	c := ParseContinuation(output)
	if len(c.FilesModified) != 2 || c.FilesModified[0] != "src/a.ts" {
		t.Errorf("FilesModified = %v", c.FilesModified)
	}
	if len(c.FilesToTouch) != 1 || c.FilesToTouch[0] != "src/c.ts" {
		t.Errorf("FilesToTouch = %v", c.FilesToTouch)
	}
	if c.CurrentState != "Implemented the parser, tests not yet written." {
		t.Errorf("CurrentState = %q", c.CurrentState)
	}
	if len(c.NextSteps) != 2 {
		t.Errorf("NextSteps = %v", c.NextSteps)
	}
	if ParseTaskID(output) != "T-7" {
		t.Errorf("ParseTaskID = %q", ParseTaskID(output))
	}
}

func TestParseContinuationAbsentYieldsMinimal(t *testing.T) {
	rec := BuildRecord("agent-1", agent.RoleDeveloper, "T-9", agent.TokenUsage{InputTokens: 100}, "no structured block here")
	if !rec.Minimal() {
		t.Errorf("expected minimal record when no handoff block present")
	}
}

func TestStoreWriteReplacesAndBackfills(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	rec1 := BuildRecord("agent-1", agent.RoleDeveloper, "T-1", agent.TokenUsage{}, "<handoff><current_state>first</current_state></handoff>")
	if err := s.Write(rec1); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := s.BackfillSuccessor(agent.RoleDeveloper, "agent-2"); err != nil {
		t.Fatalf("BackfillSuccessor: %v", err)
	}

	got := s.Latest(agent.RoleDeveloper)
	if got.SuccessorAgentID != "agent-2" {
		t.Errorf("SuccessorAgentID = %q, want agent-2", got.SuccessorAgentID)
	}

	rec2 := BuildRecord("agent-2", agent.RoleDeveloper, "T-1", agent.TokenUsage{}, "<handoff><current_state>second</current_state></handoff>")
	if err := s.Write(rec2); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got = s.Latest(agent.RoleDeveloper)
	if got.Continuation.CurrentState != "second" {
		t.Errorf("expected replace-on-write semantics, got %q", got.Continuation.CurrentState)
	}

	// Reload from disk to confirm persistence.
	s2, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore reload: %v", err)
	}
	if s2.Latest(agent.RoleDeveloper).Continuation.CurrentState != "second" {
		t.Errorf("reloaded store lost latest record")
	}
}

func TestBuildReplayBlockMinimal(t *testing.T) {
	rec := &Record{CurrentTaskID: "T-1"}
	block := BuildReplayBlock(rec)
	if !strings.Contains(block, "No structured continuation") {
		t.Errorf("expected minimal-record notice, got %q", block)
	}
}

func TestBuildReplayBlockTruncatesContext(t *testing.T) {
	longCtx := strings.Repeat("x", maxContextChars+500)
	rec := &Record{
		CurrentTaskID: "T-1",
		Continuation:  ContinuationBlock{CurrentState: "working", Context: longCtx},
	}
	block := BuildReplayBlock(rec)
	if !strings.Contains(block, "(truncated)") {
		t.Errorf("expected truncation marker in replay block")
	}
}
