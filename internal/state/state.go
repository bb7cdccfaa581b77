package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StateFileName is the well-known PersistedState file name inside a
// session's working directory.
const StateFileName = "state.json"

// New returns a fresh PersistedState for a brand-new session.
func New(requirementsPath string, hasProjectContext bool) *PersistedState {
	now := time.Now()
	return &PersistedState{
		Version:           STATEVersion,
		StartedAt:         now,
		UpdatedAt:         now,
		Phase:             "planning",
		RequirementsPath:  requirementsPath,
		HasProjectContext: hasProjectContext,
		CompletedPhases:   make(map[string]bool),
	}
}

// Load reads and migrates the PersistedState at path. It returns
// (nil, nil) if no file exists yet — a fresh session — and a non-nil
// error only for a read/parse failure or an unmigratable version.
func Load(path string) (*PersistedState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var versioned struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &versioned); err != nil {
		return nil, fmt.Errorf("parsing state file: %w", err)
	}

	migrated, err := migrate(raw, versioned.Version)
	if err != nil {
		return nil, err
	}

	var s PersistedState
	if err := json.Unmarshal(migrated, &s); err != nil {
		return nil, fmt.Errorf("parsing migrated state file: %w", err)
	}
	if s.CompletedPhases == nil {
		s.CompletedPhases = make(map[string]bool)
	}
	return &s, nil
}

// Save atomically replaces the PersistedState file at path: it writes to
// a sibling temp file and renames over the destination, so a crash
// mid-write never leaves a truncated state.json behind.
func Save(path string, s *PersistedState) error {
	s.Version = STATEVersion
	s.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp state file into place: %w", err)
	}
	return nil
}
