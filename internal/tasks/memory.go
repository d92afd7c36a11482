package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/steward/internal/types"
)

// MemoryQueue is an in-process FIFO Queue
type MemoryQueue struct {
	mu      sync.Mutex
	pending []types.Task
	failed  map[string]string
	done    []string
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an empty queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{failed: make(map[string]string)}
}

// Enqueue appends a task, assigning an id and timestamp when missing
func (q *MemoryQueue) Enqueue(ctx context.Context, task types.Task) (types.Task, error) {
	if !task.Class.IsValid() {
		return task, fmt.Errorf("invalid priority class: %d", int(task.Class))
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, task)
	return task, nil
}

// Pending returns a copy of the queued tasks
func (q *MemoryQueue) Pending(ctx context.Context) ([]types.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]types.Task(nil), q.pending...), nil
}

// Complete removes a handled task
func (q *MemoryQueue) Complete(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.removeLocked(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	q.done = append(q.done, id)
	return nil
}

// Fail removes a task whose handler failed
func (q *MemoryQueue) Fail(ctx context.Context, id string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.removeLocked(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	q.failed[id] = reason
	return nil
}

// FailureReason returns why a task failed
func (q *MemoryQueue) FailureReason(id string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	reason, ok := q.failed[id]
	return reason, ok
}

func (q *MemoryQueue) removeLocked(id string) bool {
	for i, t := range q.pending {
		if t.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return true
		}
	}
	return false
}
