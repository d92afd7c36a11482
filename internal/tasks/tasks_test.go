package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/steward/internal/admission"
	"github.com/steveyegge/steward/internal/types"
)

type snapshotAdmitter struct{ snap types.BudgetSnapshot }

func (a snapshotAdmitter) CanProceed(ctx context.Context, tokens int64, class types.PriorityClass) types.Admission {
	return admission.Decide(a.snap, tokens, class)
}

func enqueue(t *testing.T, q *MemoryQueue, id string, class types.PriorityClass) {
	t.Helper()
	_, err := q.Enqueue(context.Background(), types.Task{ID: id, Title: id, Class: class, EstimatedTokens: 100})
	require.NoError(t, err)
}

func TestMemoryQueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	task, err := q.Enqueue(ctx, types.Task{Title: "generated id", Class: types.ClassStandard})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.False(t, task.CreatedAt.IsZero())

	_, err = q.Enqueue(ctx, types.Task{Class: types.PriorityClass(9)})
	assert.Error(t, err)

	require.NoError(t, q.Complete(ctx, task.ID))
	assert.ErrorIs(t, q.Complete(ctx, task.ID), ErrNotFound)
	assert.ErrorIs(t, q.Fail(ctx, "missing", "x"), ErrNotFound)
}

func TestDrain_PauseOnlyUserTasks(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	enqueue(t, q, "bg", types.ClassBackground)
	enqueue(t, q, "user", types.ClassUser)
	enqueue(t, q, "std", types.ClassStandard)

	var handled []string
	h := HandlerFunc(func(ctx context.Context, task types.Task) error {
		handled = append(handled, task.ID)
		return nil
	})

	admit := snapshotAdmitter{snap: types.BudgetSnapshot{Level: types.LevelPause}}
	res, err := Drain(ctx, q, admit, h, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"user"}, handled)
	assert.Equal(t, DrainResult{Handled: 1, Succeeded: 1, Deferred: 2}, res)

	pending, _ := q.Pending(ctx)
	assert.Len(t, pending, 2, "denied tasks stay queued")
}

func TestDrain_ReduceAllowsStandard(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	enqueue(t, q, "bg", types.ClassBackground)
	enqueue(t, q, "std", types.ClassStandard)

	admit := snapshotAdmitter{snap: types.BudgetSnapshot{Level: types.LevelReduce, TokensRemaining: 1_000}}
	res, err := Drain(ctx, q, admit, HandlerFunc(func(context.Context, types.Task) error { return nil }), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Deferred)
}

func TestDrain_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	enqueue(t, q, "first", types.ClassStandard)
	enqueue(t, q, "panics", types.ClassStandard)
	enqueue(t, q, "last", types.ClassStandard)

	h := HandlerFunc(func(ctx context.Context, task types.Task) error {
		switch task.ID {
		case "first":
			return errors.New("disk full")
		case "panics":
			panic("index out of range")
		}
		return nil
	})

	var callbacks int
	admit := snapshotAdmitter{snap: types.BudgetSnapshot{Level: types.LevelNormal, TokensRemaining: 1_000}}
	res, err := Drain(ctx, q, admit, h, nil, func(types.Task, error) { callbacks++ })
	require.NoError(t, err)

	assert.Equal(t, DrainResult{Handled: 3, Succeeded: 1, Failed: 2}, res)
	assert.Equal(t, 3, callbacks)

	reason, ok := q.FailureReason("panics")
	require.True(t, ok)
	assert.Contains(t, reason, "panicked")

	pending, _ := q.Pending(ctx)
	assert.Empty(t, pending)
}

type brokenQueue struct{ MemoryQueue }

func (b *brokenQueue) Pending(context.Context) ([]types.Task, error) {
	return nil, errors.New("connection refused")
}

func TestDrain_PendingError(t *testing.T) {
	_, err := Drain(context.Background(), &brokenQueue{}, snapshotAdmitter{}, HandlerFunc(func(context.Context, types.Task) error { return nil }), nil, nil)
	assert.Error(t, err)
}

type stuckQueue struct {
	*MemoryQueue
	completeErr error
}

func (q *stuckQueue) Complete(ctx context.Context, id string) error {
	if q.completeErr != nil {
		return q.completeErr
	}
	return q.MemoryQueue.Complete(ctx, id)
}

func TestDrain_UnrecordedCompletionIsNotReported(t *testing.T) {
	ctx := context.Background()
	q := &stuckQueue{MemoryQueue: NewMemoryQueue(), completeErr: errors.New("database is locked")}
	enqueue(t, q.MemoryQueue, "report", types.ClassStandard)

	runs := 0
	h := HandlerFunc(func(context.Context, types.Task) error { runs++; return nil })
	var callbacks int
	admit := snapshotAdmitter{snap: types.BudgetSnapshot{Level: types.LevelNormal, TokensRemaining: 1_000}}

	res, err := Drain(ctx, q, admit, h, nil, func(types.Task, error) { callbacks++ })
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Handled: 1, Succeeded: 1, Unrecorded: 1}, res)
	assert.Zero(t, callbacks)

	pending, _ := q.Pending(ctx)
	assert.Len(t, pending, 1, "task stays queued")

	// Once the write goes through, the task is reported exactly once
	q.completeErr = nil
	res, err = Drain(ctx, q, admit, h, nil, func(types.Task, error) { callbacks++ })
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Handled: 1, Succeeded: 1}, res)
	assert.Equal(t, 2, runs)
	assert.Equal(t, 1, callbacks)

	pending, _ = q.Pending(ctx)
	assert.Empty(t, pending)
}
