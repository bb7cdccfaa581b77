package state

import (
	"context"
	"strings"
	"time"

	"github.com/kream0/autonoma-sub001/internal/memory"
)

// MemoryStore backs memory.Interface against autonoma.db's memories table
// and its FTS5 index, so PhaseContext's narrow Record/Query capability has
// a concrete, queryable implementation.
type MemoryStore struct {
	db        *DB
	sessionID string
}

// NewMemoryStore returns a memory.Interface scoped to one session.
func NewMemoryStore(db *DB, sessionID string) *MemoryStore {
	return &MemoryStore{db: db, sessionID: sessionID}
}

var _ memory.Interface = (*MemoryStore)(nil)

// Record persists a batch of memory entries.
func (m *MemoryStore) Record(entries []memory.Entry) error {
	ctx := context.Background()
	return m.db.retryWrite(ctx, "record_memories", func() error {
		tx, err := m.db.write.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		for _, e := range entries {
			ts := e.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO memories (session_id, type, content, task_id, tags, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, m.sessionID, string(e.Type), e.Content, nullableString(e.TaskID), nullableString(strings.Join(e.Tags, ",")), ts)
			if err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// Query returns the most recent entries whose tags or content match the
// given tag term, via the memories_fts full-text index, newest first,
// capped at limit.
func (m *MemoryStore) Query(tag string, limit int) ([]memory.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := m.db.read.QueryContext(context.Background(), `
		SELECT mem.type, mem.content, mem.task_id, mem.tags, mem.created_at
		FROM memories_fts
		JOIN memories mem ON mem.id = memories_fts.rowid
		WHERE memories_fts MATCH ? AND mem.session_id = ?
		ORDER BY mem.id DESC
		LIMIT ?
	`, ftsQuery(tag), m.sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []memory.Entry
	for rows.Next() {
		var e memory.Entry
		var typ, taskID, tags string
		if err := rows.Scan(&typ, &e.Content, &taskID, &tags, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Type = memory.SignalType(typ)
		e.TaskID = taskID
		if tags != "" {
			e.Tags = strings.Split(tags, ",")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ftsQuery quotes a free-text term for FTS5's MATCH operator so tag text
// containing punctuation doesn't break the query syntax.
func ftsQuery(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
