package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/steward/internal/tasks"
	"github.com/steveyegge/steward/internal/types"
)

// Enqueue inserts a pending task, assigning an id and timestamp when missing
func (s *SQLiteStorage) Enqueue(ctx context.Context, task types.Task) (types.Task, error) {
	if !task.Class.IsValid() {
		return task, fmt.Errorf("invalid priority class: %d", int(task.Class))
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return task, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, class, estimated_tokens, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID,
		task.Title,
		task.Class.String(),
		task.EstimatedTokens,
		string(payload),
		tasks.StatusPending,
		task.CreatedAt.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return task, fmt.Errorf("failed to insert task: %w", err)
	}
	return task, nil
}

// Pending returns queued tasks, oldest first
func (s *SQLiteStorage) Pending(ctx context.Context) ([]types.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, class, estimated_tokens, payload, created_at
		FROM tasks
		WHERE status = ?
		ORDER BY created_at ASC, rowid ASC
	`, tasks.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending tasks: %w", err)
	}
	defer rows.Close()

	var out []types.Task
	for rows.Next() {
		var (
			task    types.Task
			class   string
			payload string
		)
		if err := rows.Scan(&task.ID, &task.Title, &class, &task.EstimatedTokens, &payload, &task.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if task.Class, err = types.ParsePriorityClass(class); err != nil {
			return nil, fmt.Errorf("task %s: %w", task.ID, err)
		}
		if payload != "" && payload != "null" {
			if err := json.Unmarshal([]byte(payload), &task.Payload); err != nil {
				return nil, fmt.Errorf("task %s: failed to unmarshal payload: %w", task.ID, err)
			}
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// Complete marks a pending task completed
func (s *SQLiteStorage) Complete(ctx context.Context, id string) error {
	return s.finish(ctx, id, tasks.StatusCompleted, "")
}

// Fail marks a pending task failed
func (s *SQLiteStorage) Fail(ctx context.Context, id string, reason string) error {
	return s.finish(ctx, id, tasks.StatusFailed, reason)
}

func (s *SQLiteStorage) finish(ctx context.Context, id, status, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, failure_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, status, reason, time.Now().UTC(), id, tasks.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", tasks.ErrNotFound, id)
	}
	return nil
}
