// Package tasks is the primary work queue drained by every poll cycle.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/steveyegge/steward/internal/types"
)

// ErrNotFound is returned when a task id is not pending
var ErrNotFound = errors.New("task not found")

// Task status values used by durable queues
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Queue is the primary task queue
type Queue interface {
	// Pending returns queued tasks, oldest first
	Pending(ctx context.Context) ([]types.Task, error)
	// Complete removes a task after it was handled successfully
	Complete(ctx context.Context, id string) error
	// Fail removes a task after its handler failed
	Fail(ctx context.Context, id string, reason string) error
}

// Handler performs the work of one task
type Handler interface {
	Handle(ctx context.Context, task types.Task) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, task types.Task) error

// Handle calls f(ctx, task)
func (f HandlerFunc) Handle(ctx context.Context, task types.Task) error { return f(ctx, task) }

// Admitter answers admission questions (budget.Source satisfies it)
type Admitter interface {
	CanProceed(ctx context.Context, estimatedTokens int64, class types.PriorityClass) types.Admission
}

// DrainResult summarizes one drain pass
type DrainResult struct {
	Handled    int
	Succeeded  int
	Failed     int
	Deferred   int
	// Unrecorded counts handled tasks whose outcome could not be written
	// back; they are still pending and will be handled again.
	Unrecorded int
}

// Drain admits and handles every pending task. Denied tasks stay queued for a
// later cycle. A failing task is marked failed and never stops the drain.
// onHandled, when set, is called after each handled task (success or failure)
// whose outcome reached the queue. A task whose outcome write fails stays
// pending, may run again, and is only reported to onHandled once it is
// recorded.
func Drain(ctx context.Context, q Queue, admit Admitter, h Handler, logger *slog.Logger, onHandled func(types.Task, error)) (DrainResult, error) {
	var res DrainResult
	if logger == nil {
		logger = slog.Default()
	}

	pending, err := q.Pending(ctx)
	if err != nil {
		return res, fmt.Errorf("listing pending tasks: %w", err)
	}

	for _, task := range pending {
		decision := admit.CanProceed(ctx, task.EstimatedTokens, task.Class)
		if !decision.Allowed {
			res.Deferred++
			logger.Debug("task deferred", "task", task.ID, "class", task.Class.String(), "reason", decision.Reason)
			continue
		}

		handleErr := handle(ctx, h, task)
		res.Handled++

		var recordErr error
		if handleErr != nil {
			res.Failed++
			logger.Warn("task failed", "task", task.ID, "err", handleErr)
			if recordErr = q.Fail(ctx, task.ID, handleErr.Error()); recordErr != nil {
				logger.Warn("failed to mark task failed", "task", task.ID, "err", recordErr)
			}
		} else {
			res.Succeeded++
			if recordErr = q.Complete(ctx, task.ID); recordErr != nil {
				logger.Warn("failed to mark task complete", "task", task.ID, "err", recordErr)
			}
		}

		if recordErr != nil {
			res.Unrecorded++
			continue
		}
		if onHandled != nil {
			onHandled(task, handleErr)
		}
	}

	return res, nil
}

func handle(ctx context.Context, h Handler, task types.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.ID, r)
		}
	}()
	return h.Handle(ctx, task)
}
