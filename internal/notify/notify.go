// Package notify delivers best-effort advisories to a human.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Notifier sends an advisory. Callers treat failures as non-fatal and never retry.
type Notifier interface {
	Advise(ctx context.Context, title, body string, urgent bool) error
}

// Result makes a best-effort send observable without requiring it to succeed
type Result struct {
	Attempted bool
	Delivered bool
	Err       error
}

// Send attempts one advisory and reports what happened. A nil notifier is
// not attempted.
func Send(ctx context.Context, n Notifier, title, body string, urgent bool) Result {
	if n == nil {
		return Result{}
	}
	err := n.Advise(ctx, title, body, urgent)
	return Result{Attempted: true, Delivered: err == nil, Err: err}
}

// Console prints advisories to a terminal
type Console struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewConsole creates a console notifier (nil writer = stderr)
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stderr
	}
	return &Console{out: out, now: time.Now}
}

// Advise prints the advisory, red when urgent
func (c *Console) Advise(ctx context.Context, title, body string, urgent bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	heading := color.New(color.FgYellow, color.Bold)
	marker := "⚠️ "
	if urgent {
		heading = color.New(color.FgRed, color.Bold)
		marker = "🚨"
	}

	if _, err := heading.Fprintf(c.out, "%s %s\n", marker, title); err != nil {
		return fmt.Errorf("writing advisory: %w", err)
	}
	if body != "" {
		if _, err := fmt.Fprintf(c.out, "   %s\n", body); err != nil {
			return fmt.Errorf("writing advisory: %w", err)
		}
	}
	_, err := color.New(color.Faint).Fprintf(c.out, "   %s\n", c.now().Format(time.RFC3339))
	return err
}

// Log writes advisories to a structured logger
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging notifier
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Advise logs at warn, or error when urgent
func (l *Log) Advise(ctx context.Context, title, body string, urgent bool) error {
	level := slog.LevelWarn
	if urgent {
		level = slog.LevelError
	}
	l.logger.Log(ctx, level, "advisory", "title", title, "body", body, "urgent", urgent)
	return nil
}

// Multi fans an advisory out to several notifiers. Every notifier is tried;
// the joined error reports the ones that failed.
type Multi []Notifier

// Advise calls every notifier
func (m Multi) Advise(ctx context.Context, title, body string, urgent bool) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Advise(ctx, title, body, urgent); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to Notifier
type Func func(ctx context.Context, title, body string, urgent bool) error

// Advise calls f
func (f Func) Advise(ctx context.Context, title, body string, urgent bool) error {
	return f(ctx, title, body, urgent)
}
