package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/kream0/autonoma-sub001/internal/retry"
)

// SaveRetryContext persists a task's retry context so it survives an
// orchestrator restart between `resume` invocations; internal/retry.Store
// itself only holds this in memory for the life of one process.
func (db *DB) SaveRetryContext(c *retry.Context) error {
	failingJSON, err := json.Marshal(c.Failing)
	if err != nil {
		return err
	}
	ctx := context.Background()
	return db.retryWrite(ctx, "save_retry_context", func() error {
		_, err := db.write.ExecContext(ctx, `
			INSERT INTO retry_contexts (task_id, reason, failing_criteria, retry_count, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(task_id) DO UPDATE SET
				reason = excluded.reason,
				failing_criteria = excluded.failing_criteria,
				retry_count = excluded.retry_count,
				updated_at = excluded.updated_at
		`, c.TaskID, c.Reason, string(failingJSON), c.RetryCount, time.Now())
		return err
	})
}

// LoadRetryContext returns the persisted retry context for a task, or nil
// if none exists.
func (db *DB) LoadRetryContext(taskID string) (*retry.Context, error) {
	var c retry.Context
	c.TaskID = taskID
	var failingJSON string
	err := db.read.QueryRowContext(context.Background(), `
		SELECT reason, failing_criteria, retry_count FROM retry_contexts WHERE task_id = ?
	`, taskID).Scan(&c.Reason, &failingJSON, &c.RetryCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if failingJSON != "" {
		if err := json.Unmarshal([]byte(failingJSON), &c.Failing); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// ClearRetryContext deletes a task's persisted retry context, called on
// full success.
func (db *DB) ClearRetryContext(taskID string) error {
	ctx := context.Background()
	return db.retryWrite(ctx, "clear_retry_context", func() error {
		_, err := db.write.ExecContext(ctx, `DELETE FROM retry_contexts WHERE task_id = ?`, taskID)
		return err
	})
}
