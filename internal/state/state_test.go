package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s := New("requirements.md", true)
	s.Phase = "development"
	s.CompletePhase("planning")
	s.Batches = []Batch{{BatchID: "b1", Status: "in_progress", Tasks: []Task{{ID: "t1", Status: "pending"}}}}

	if err := Save(path, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil for an existing file")
	}
	if loaded.Phase != "development" {
		t.Errorf("Phase = %q, want development", loaded.Phase)
	}
	if !loaded.CompletedPhases["planning"] {
		t.Error("expected planning to be completed")
	}
	if len(loaded.Batches) != 1 || loaded.Batches[0].BatchID != "b1" {
		t.Errorf("Batches = %+v", loaded.Batches)
	}
	if loaded.RequirementsPath != "requirements.md" {
		t.Errorf("RequirementsPath = %q", loaded.RequirementsPath)
	}
}

func TestLoadMissingFileReturnsNilNoError(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if s != nil {
		t.Fatal("expected nil state for missing file")
	}
}

func TestSaveNeverLeavesTempFileBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	if err := Save(path, New("req.md", false)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		t.Errorf("expected exactly state.json in dir, got %+v", entries)
	}
}

func TestRewindClearsMutablePhasesAndResetsTasks(t *testing.T) {
	s := New("req.md", false)
	for _, p := range []string{"planning", "task-breakdown", "development", "testing", "review", "ceo-approval"} {
		s.CompletePhase(p)
	}
	s.Batches = []Batch{{BatchID: "b1", Status: "done", Tasks: []Task{{ID: "t1", Status: "done", RetryCount: 2}}}}
	s.CurrentBatchIndex = 3
	s.CurrentTasksInProgress = []string{"t1"}

	s.Rewind()

	for _, p := range RewindPhases {
		if s.CompletedPhases[p] {
			t.Errorf("expected %q to be cleared by Rewind", p)
		}
	}
	if !s.CompletedPhases["planning"] || !s.CompletedPhases["task-breakdown"] {
		t.Error("Rewind should not clear phases outside RewindPhases")
	}
	if s.CurrentBatchIndex != 0 || s.CurrentTasksInProgress != nil {
		t.Error("Rewind should reset batch progress")
	}
	if s.Batches[0].Status != "pending" || s.Batches[0].Tasks[0].Status != "pending" || s.Batches[0].Tasks[0].RetryCount != 0 {
		t.Errorf("Rewind should reset batch/task state, got %+v", s.Batches[0])
	}
}

func TestMigrateUnknownVersionReturnsNoState(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{"version": 99})
	_, err := migrate(raw, 99)
	if err == nil {
		t.Fatal("expected error for unknown version")
	}
}

func TestMigrateV1CollapsesFlatTasksIntoSingleBatch(t *testing.T) {
	v1 := map[string]any{
		"version":        1,
		"tasks":          []any{map[string]any{"id": "t1", "status": "pending"}},
		"requirements":   "full requirements body",
		"projectContext": "some context blob",
	}
	raw, _ := json.Marshal(v1)

	out, err := migrate(raw, 1)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(out, &doc); err != nil {
		t.Fatalf("unmarshal migrated: %v", err)
	}

	if doc["version"].(float64) != STATEVersion {
		t.Errorf("version = %v, want %d", doc["version"], STATEVersion)
	}
	if _, stillPresent := doc["tasks"]; stillPresent {
		t.Error("flat tasks list should be removed after migration")
	}
	batches, ok := doc["batches"].([]any)
	if !ok || len(batches) != 1 {
		t.Fatalf("expected exactly one collapsed batch, got %v", doc["batches"])
	}
	if doc["requirementsPath"] != MigratedRequirementsMarker {
		t.Errorf("requirementsPath = %v, want %q", doc["requirementsPath"], MigratedRequirementsMarker)
	}
	if _, stillPresent := doc["requirements"]; stillPresent {
		t.Error("inline requirements body should be removed after migration")
	}
	if doc["hasProjectContext"] != true {
		t.Errorf("hasProjectContext = %v, want true", doc["hasProjectContext"])
	}
	if _, stillPresent := doc["projectContext"]; stillPresent {
		t.Error("inline projectContext blob should be removed after migration")
	}
}

func TestMigrateV2EmptyProjectContextBecomesFalse(t *testing.T) {
	v2 := map[string]any{
		"version":        2,
		"tasks":          []any{},
		"projectContext": "",
	}
	raw, _ := json.Marshal(v2)

	out, err := migrate(raw, 2)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	var doc map[string]any
	json.Unmarshal(out, &doc)
	if doc["hasProjectContext"] != false {
		t.Errorf("hasProjectContext = %v, want false for empty blob", doc["hasProjectContext"])
	}
}
