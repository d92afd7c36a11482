package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/steward/internal/tasks"
	"github.com/steveyegge/steward/internal/types"
)

// Enqueue inserts a pending task, assigning an id and timestamp when missing
func (p *PostgresStorage) Enqueue(ctx context.Context, task types.Task) (types.Task, error) {
	if !task.Class.IsValid() {
		return task, fmt.Errorf("invalid priority class: %d", int(task.Class))
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	payload, err := marshalJSON(task.Payload)
	if err != nil {
		return task, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO tasks (id, title, class, estimated_tokens, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, task.ID, task.Title, task.Class.String(), task.EstimatedTokens, payload, tasks.StatusPending, task.CreatedAt, time.Now())
	if err != nil {
		return task, fmt.Errorf("failed to insert task: %w", err)
	}
	return task, nil
}

// Pending returns queued tasks, oldest first
func (p *PostgresStorage) Pending(ctx context.Context) ([]types.Task, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, title, class, estimated_tokens, payload, created_at
		FROM tasks
		WHERE status = $1
		ORDER BY created_at ASC, seq ASC
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
			payload []byte
		)
		if err := rows.Scan(&task.ID, &task.Title, &class, &task.EstimatedTokens, &payload, &task.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if task.Class, err = types.ParsePriorityClass(class); err != nil {
			return nil, fmt.Errorf("task %s: %w", task.ID, err)
		}
		if task.Payload, err = unmarshalJSON(payload); err != nil {
			return nil, fmt.Errorf("task %s: failed to unmarshal payload: %w", task.ID, err)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// Complete marks a pending task completed
func (p *PostgresStorage) Complete(ctx context.Context, id string) error {
	return p.finish(ctx, id, tasks.StatusCompleted, "")
}

// Fail marks a pending task failed
func (p *PostgresStorage) Fail(ctx context.Context, id string, reason string) error {
	return p.finish(ctx, id, tasks.StatusFailed, reason)
}

func (p *PostgresStorage) finish(ctx context.Context, id, status, reason string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE tasks SET status = $1, failure_reason = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`, status, reason, time.Now(), id, tasks.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", tasks.ErrNotFound, id)
	}
	return nil
}
