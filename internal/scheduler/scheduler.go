// Package scheduler fires named, time-triggered handlers from the poll loop.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrUnknownHandler is returned when a handler has no configured trigger
var ErrUnknownHandler = errors.New("unknown handler")

// HandlerFunc is a scheduled job
type HandlerFunc func(ctx context.Context) error

// Config configures a Scheduler
type Config struct {
	Triggers  []Trigger
	StatePath string // empty disables persistence
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Options control a single CheckAndRun pass
type Options struct {
	// EssentialOnly skips handlers whose trigger is not essential
	EssentialOnly bool
}

// Report lists what happened to each due handler in one pass
type Report struct {
	Ran     []string
	Skipped []string
	Failed  []string
}

// State tracks handler run history. Persisted to survive restarts.
type State struct {
	Handlers map[string]*RunRecord `json:"handlers"`
}

// RunRecord is the run history of one handler.
// LastSkipped marks an occurrence dropped in essential-only mode; it
// consumes that occurrence the same way a run does.
type RunRecord struct {
	LastRun     time.Time `json:"last_run"`
	LastSkipped time.Time `json:"last_skipped,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	Runs        int       `json:"runs"`
	Skips       int       `json:"skips"`
	Failures    int       `json:"failures"`
}

// last returns the most recent occurrence the handler has consumed
func (r *RunRecord) last() time.Time {
	if r.LastSkipped.After(r.LastRun) {
		return r.LastSkipped
	}
	return r.LastRun
}

// Scheduler runs registered handlers whose triggers are due
type Scheduler struct {
	triggers  []Trigger
	statePath string
	clock     func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	state    *State
}

// New creates a scheduler, restoring run history when present
func New(cfg Config) (*Scheduler, error) {
	seen := make(map[string]bool, len(cfg.Triggers))
	for _, t := range cfg.Triggers {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("invalid trigger %q: %w", t.Name, err)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("trigger %q defined twice", t.Name)
		}
		seen[t.Name] = true
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Scheduler{
		triggers:  cfg.Triggers,
		statePath: cfg.StatePath,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		handlers:  make(map[string]HandlerFunc),
		state:     &State{Handlers: make(map[string]*RunRecord)},
	}

	if err := s.loadState(); err != nil {
		s.logger.Warn("failed to load scheduler state, starting fresh", "path", s.statePath, "err", err)
	}

	return s, nil
}

// RegisterHandler attaches fn to the trigger with the same name
func (s *Scheduler) RegisterHandler(name string, fn HandlerFunc) error {
	if fn == nil {
		return fmt.Errorf("handler %q is nil", name)
	}
	if _, ok := s.trigger(name); !ok {
		return fmt.Errorf("%w: no trigger configured for %q", ErrUnknownHandler, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.handlers[name]; exists {
		return fmt.Errorf("handler %q already registered", name)
	}
	s.handlers[name] = fn
	return nil
}

// Triggers returns the configured triggers in file order
func (s *Scheduler) Triggers() []Trigger {
	return append([]Trigger(nil), s.triggers...)
}

// Record returns the run history of a handler
func (s *Scheduler) Record(name string) (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.Handlers[name]
	if !ok {
		return RunRecord{}, false
	}
	return *rec, true
}

// CheckAndRun runs every registered handler whose trigger is due, in trigger
// order. In essential-only mode non-essential handlers are skipped outright:
// the skipped occurrence is consumed, not deferred, so they run again at
// their next natural trigger. A failing or panicking
// handler never stops the others.
func (s *Scheduler) CheckAndRun(ctx context.Context, opts Options) Report {
	var report Report
	now := s.clock()

	for _, t := range s.triggers {
		s.mu.Lock()
		fn, registered := s.handlers[t.Name]
		var last time.Time
		if rec, ok := s.state.Handlers[t.Name]; ok {
			last = rec.last()
		}
		s.mu.Unlock()

		if !registered || !t.Due(now, last) {
			continue
		}

		if opts.EssentialOnly && !t.Essential {
			s.recordSkip(t.Name, now)
			s.logger.Debug("scheduled handler skipped", "handler", t.Name)
			report.Skipped = append(report.Skipped, t.Name)
			continue
		}

		err := s.runHandler(ctx, t.Name, fn)
		s.recordRun(t.Name, now, err)

		if err != nil {
			s.logger.Error("scheduled handler failed", "handler", t.Name, "err", err)
			report.Failed = append(report.Failed, t.Name)
			continue
		}
		s.logger.Debug("scheduled handler ran", "handler", t.Name)
		report.Ran = append(report.Ran, t.Name)
	}

	if len(report.Ran) > 0 || len(report.Failed) > 0 || len(report.Skipped) > 0 {
		if err := s.saveState(); err != nil {
			s.logger.Warn("failed to persist scheduler state", "err", err)
		}
	}

	return report
}

func (s *Scheduler) runHandler(ctx context.Context, name string, fn HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", name, r)
		}
	}()
	return fn(ctx)
}

// recordRun stores the outcome. A failed run still counts as a run so a
// broken handler waits for its next trigger instead of retrying every cycle.
func (s *Scheduler) recordRun(name string, at time.Time, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.Handlers[name]
	if !ok {
		rec = &RunRecord{}
		s.state.Handlers[name] = rec
	}
	rec.LastRun = at
	rec.Runs++
	rec.LastError = ""
	if runErr != nil {
		rec.Failures++
		rec.LastError = runErr.Error()
	}
}

func (s *Scheduler) recordSkip(name string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.Handlers[name]
	if !ok {
		rec = &RunRecord{}
		s.state.Handlers[name] = rec
	}
	rec.LastSkipped = at
	rec.Skips++
}

func (s *Scheduler) trigger(name string) (Trigger, bool) {
	for _, t := range s.triggers {
		if t.Name == name {
			return t, true
		}
	}
	return Trigger{}, false
}

func (s *Scheduler) saveState() error {
	if s.statePath == "" {
		return nil
	}

	s.mu.Lock()
	data, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshaling scheduler state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.statePath), 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := os.WriteFile(s.statePath, data, 0644); err != nil {
		return fmt.Errorf("writing scheduler state: %w", err)
	}
	return nil
}

func (s *Scheduler) loadState() error {
	if s.statePath == "" {
		return nil
	}

	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading scheduler state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("unmarshaling scheduler state: %w", err)
	}
	if state.Handlers == nil {
		state.Handlers = make(map[string]*RunRecord)
	}

	s.state = &state
	return nil
}
