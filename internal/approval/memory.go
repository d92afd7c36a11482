package approval

import (
	"context"
	"sync"

	"github.com/steveyegge/steward/internal/types"
)

// MemoryQueue is an in-process Queue, used in tests and when no durable
// storage is configured.
type MemoryQueue struct {
	mu       sync.Mutex
	requests []types.ApprovalRequest
}

// NewMemoryQueue creates an empty queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// AddApproval appends a request
func (q *MemoryQueue) AddApproval(ctx context.Context, req types.ApprovalRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requests = append(q.requests, req)
	return nil
}

// ListApprovals returns the newest requests first, up to limit (0 = all)
func (q *MemoryQueue) ListApprovals(ctx context.Context, limit int) ([]types.ApprovalRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]types.ApprovalRequest, 0, len(q.requests))
	for i := len(q.requests) - 1; i >= 0; i-- {
		out = append(out, q.requests[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of queued requests
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}
