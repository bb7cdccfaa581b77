package state

import (
	"context"
	"time"
)

// HumanQueueEntry is one escalation raised when a task exhausts its
// retries without passing verification.
type HumanQueueEntry struct {
	ID         int64
	TaskID     string
	Reason     string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Enqueue records a human-queue escalation for a task that exhausted its
// retries.
func (db *DB) Enqueue(sessionID, taskID, reason string) error {
	ctx := context.Background()
	return db.retryWrite(ctx, "enqueue_human_blocker", func() error {
		_, err := db.write.ExecContext(ctx, `
			INSERT INTO human_queue (session_id, task_id, reason, created_at)
			VALUES (?, ?, ?, ?)
		`, sessionID, taskID, reason, time.Now())
		return err
	})
}

// PendingHumanQueue returns every unresolved escalation for a session,
// oldest first, for status-surface reporting.
func (db *DB) PendingHumanQueue(sessionID string) ([]HumanQueueEntry, error) {
	rows, err := db.read.QueryContext(context.Background(), `
		SELECT id, task_id, reason, created_at
		FROM human_queue
		WHERE session_id = ? AND resolved_at IS NULL
		ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HumanQueueEntry
	for rows.Next() {
		var e HumanQueueEntry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResolveHumanQueueEntry marks an escalation resolved.
func (db *DB) ResolveHumanQueueEntry(id int64) error {
	ctx := context.Background()
	return db.retryWrite(ctx, "resolve_human_blocker", func() error {
		_, err := db.write.ExecContext(ctx, `
			UPDATE human_queue SET resolved_at = ? WHERE id = ?
		`, time.Now(), id)
		return err
	})
}
