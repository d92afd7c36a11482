package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/steveyegge/steward/internal/approval"
	"github.com/steveyegge/steward/internal/events"
	"github.com/steveyegge/steward/internal/storage/postgres"
	"github.com/steveyegge/steward/internal/storage/sqlite"
	"github.com/steveyegge/steward/internal/tasks"
	"github.com/steveyegge/steward/internal/types"
)

// ErrNotFound is returned when a task id does not exist
var ErrNotFound = tasks.ErrNotFound

// Storage is the durable side of the agent: approval requests, the audit
// trail and the primary task queue.
type Storage interface {
	// Approvals (append-only; resolution happens outside the agent)
	approval.Queue
	approval.Lister

	// Audit trail
	events.Store
	ListAuditEvents(ctx context.Context, limit int) ([]events.AuditEvent, error)
	CleanupAuditEvents(ctx context.Context, policy events.RetentionPolicy) (events.CleanupResult, error)

	// Primary task queue
	tasks.Queue
	Enqueue(ctx context.Context, task types.Task) (types.Task, error)

	// Lifecycle
	Close() error
}

// Backend names
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds database configuration
type Config struct {
	// Backend is "sqlite" (default) or "postgres"
	Backend string `yaml:"backend" json:"backend"`
	// Path is the SQLite database file path.
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string `yaml:"path" json:"path"`
	// PostgresURL is a pgx connection string, used when Backend is "postgres"
	PostgresURL string `yaml:"postgres_url" json:"postgres_url"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendSQLite,
		Path:    ".steward/steward.db",
	}
}

// Validate checks the backend selection
func (c *Config) Validate() error {
	switch c.Backend {
	case "", BackendSQLite:
		return nil
	case BackendPostgres:
		if c.PostgresURL == "" {
			return errors.New("postgres backend requires postgres_url")
		}
		return nil
	}
	return fmt.Errorf("unknown storage backend %q (want %q or %q)", c.Backend, BackendSQLite, BackendPostgres)
}

// NewStorage opens the configured backend and applies pending migrations
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendPostgres:
		return postgres.New(ctx, cfg.PostgresURL)
	default:
		path := cfg.Path
		if path == "" {
			path = DefaultConfig().Path
		}
		return sqlite.New(ctx, path)
	}
}
