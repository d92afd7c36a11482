package discovery

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/steveyegge/steward/internal/types"
)

// ForUserItem is the reportable part of a for-user initiative
type ForUserItem struct {
	Title    string `json:"title"`
	Category string `json:"category"`
}

// ScanReport summarizes one discovery pass. Reports are immutable once
// published; readers always receive a copy.
type ScanReport struct {
	At         time.Time           `json:"at"`
	Level      types.ThrottleLevel `json:"level"`
	Discovered int                 `json:"discovered"`
	Suppressed int                 `json:"suppressed"`
	Executed   int                 `json:"executed"`
	Failed     int                 `json:"failed"`
	Escalated  int                 `json:"escalated"`
	ForUser    []ForUserItem       `json:"for_user,omitempty"`
	Errors     []string            `json:"errors,omitempty"`
}

func (r ScanReport) clone() ScanReport {
	out := r
	out.ForUser = append([]ForUserItem(nil), r.ForUser...)
	out.Errors = append([]string(nil), r.Errors...)
	return out
}

// Feed carries scan reports from the poll loop to reporting consumers
// through a small channel. Only the feed's own goroutine updates the latest
// report; consumers read it by value.
type Feed struct {
	updates chan ScanReport
	latest  atomic.Pointer[ScanReport]
	dropped atomic.Int64
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewFeed creates a feed with the given channel buffer (minimum 1)
func NewFeed(buffer int, logger *slog.Logger) *Feed {
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		updates: make(chan ScanReport, buffer),
		logger:  logger,
	}
}

// Publish hands a report to the feed without blocking. When the buffer is
// full the oldest pending report is replaced. Returns false if the report
// was dropped.
func (f *Feed) Publish(r ScanReport) bool {
	r = r.clone()
	select {
	case f.updates <- r:
		return true
	default:
	}

	select {
	case <-f.updates:
		f.dropped.Add(1)
	default:
	}

	select {
	case f.updates <- r:
		return true
	default:
		f.dropped.Add(1)
		return false
	}
}

// Latest returns a copy of the most recent report
func (f *Feed) Latest() (ScanReport, bool) {
	r := f.latest.Load()
	if r == nil {
		return ScanReport{}, false
	}
	return r.clone(), true
}

// Dropped returns how many reports were superseded before being consumed
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}

// Start begins consuming published reports
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return nil
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})

	go f.run(ctx, f.stopCh, f.doneCh)
	return nil
}

// Stop stops the consumer after draining pending reports
func (f *Feed) Stop(ctx context.Context) error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	close(f.stopCh)
	done := f.doneCh
	f.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Feed) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case r := <-f.updates:
			f.store(r)
		case <-stopCh:
			f.drain()
			return
		case <-ctx.Done():
			f.drain()
			return
		}
	}
}

func (f *Feed) drain() {
	for {
		select {
		case r := <-f.updates:
			f.store(r)
		default:
			return
		}
	}
}

func (f *Feed) store(r ScanReport) {
	f.latest.Store(&r)
	f.logger.Debug("scan report updated",
		"discovered", r.Discovered, "executed", r.Executed, "escalated", r.Escalated)
}
