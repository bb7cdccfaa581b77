package handoff

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kream0/autonoma-sub001/internal/agent"
)

// Store persists one Record per role, replacing the previous record for
// that role on every handoff event — there is exactly one "most recent"
// handoff per role at any time, which is what a newly created successor's
// first prompt replays from.
type Store struct {
	mu       sync.RWMutex
	filePath string
	byRole   map[agent.Role]*Record
}

// NewStore creates a handoff store persisted under <workDir>/.autonoma/handoffs/.
func NewStore(workDir string) (*Store, error) {
	dir := filepath.Join(workDir, ".autonoma", "handoffs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("handoff: create directory: %w", err)
	}

	s := &Store{
		filePath: filepath.Join(dir, "latest.json"),
		byRole:   make(map[agent.Role]*Record),
	}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("handoff: load store: %w", err)
	}
	return s, nil
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	var loaded map[agent.Role]*Record
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return fmt.Errorf("handoff: parse store file: %w", err)
	}
	s.byRole = loaded
	return nil
}

// save persists the store. Must be called with mu held for read or write.
func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.byRole, "", "  ")
	if err != nil {
		return fmt.Errorf("handoff: marshal store: %w", err)
	}
	return os.WriteFile(s.filePath, raw, 0644)
}

// Write records a handoff event, replacing any prior record for the role,
// and persists it to disk before the predecessor agent is killed.
func (s *Store) Write(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byRole[rec.Role] = rec
	return s.save()
}

// BackfillSuccessor stamps the successor agent id onto the most recent
// handoff record for a role, once the successor has been created. This is
// the step that keeps the handoff chain traversable.
func (s *Store) BackfillSuccessor(role agent.Role, successorAgentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byRole[role]
	if !ok {
		return fmt.Errorf("handoff: no record for role %q to backfill", role)
	}
	rec.SuccessorAgentID = successorAgentID
	return s.save()
}

// Latest returns the most recent handoff record for a role, or nil if none
// exists.
func (s *Store) Latest(role agent.Role) *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byRole[role]
}

// Clear removes the stored record for a role (used when a role's lifetime
// ends without a pending handoff, e.g. a batch's developers are torn down
// cleanly).
func (s *Store) Clear(role agent.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byRole, role)
	return s.save()
}
