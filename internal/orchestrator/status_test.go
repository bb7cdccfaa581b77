package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStatusWriterFlushPersistsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	w := NewStatusWriter(path)

	snap := StatusSnapshot{Phase: "development", Iteration: 3}
	if err := w.Flush(snap); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading status.json: %v", err)
	}

	var got StatusSnapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshaling status.json: %v", err)
	}
	if got.Phase != "development" || got.Iteration != 3 {
		t.Fatalf("got %+v, want phase=development iteration=3", got)
	}
}

func TestStatusWriterWriteSuppressesConcurrentCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	w := NewStatusWriter(path)

	w.mu.Lock()
	w.writing = true
	w.mu.Unlock()

	// This call must be dropped outright rather than blocking, since a
	// write is already (synthetically) in flight.
	done := make(chan struct{})
	go func() {
		w.Write(StatusSnapshot{Phase: "suppressed"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write blocked instead of dropping while a write was in flight")
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no file to be written by the suppressed call, stat err = %v", err)
	}
}
