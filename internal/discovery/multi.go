package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/steward/internal/types"
)

// NamedSource pairs a WorkSource with a unique name
type NamedSource struct {
	Name   string
	Source WorkSource
}

// MultiSource fans Scan out to several sources concurrently. Each source
// writes only its own slot; results are aggregated in registration order.
// Execute is routed to the source that reported the id in the latest scan.
type MultiSource struct {
	sources []NamedSource
	limit   int
	logger  *slog.Logger

	mu     sync.RWMutex
	owners map[string]int
}

var _ WorkSource = (*MultiSource)(nil)

// NewMultiSource creates a fan-out source running at most maxConcurrent
// scans at once (0 = one per source).
func NewMultiSource(maxConcurrent int, logger *slog.Logger, sources ...NamedSource) (*MultiSource, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}

	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		if s.Source == nil {
			return nil, fmt.Errorf("source %q is nil", s.Name)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("source %q already registered", s.Name)
		}
		seen[s.Name] = true
	}

	if maxConcurrent <= 0 {
		maxConcurrent = len(sources)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiSource{
		sources: sources,
		limit:   maxConcurrent,
		logger:  logger,
		owners:  make(map[string]int),
	}, nil
}

// Scan runs every source and merges their results. A failing source does not
// hide the others: successful results are returned together with the joined
// errors. When two sources report the same id, the earlier source wins.
func (m *MultiSource) Scan(ctx context.Context) ([]types.Initiative, error) {
	slots := make([][]types.Initiative, len(m.sources))
	errs := make([]error, len(m.sources))

	var g errgroup.Group
	g.SetLimit(m.limit)
	for i, src := range m.sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("source %s: %w", src.Name, err)
				return nil
			}

			items, err := src.Source.Scan(ctx)
			if err != nil {
				errs[i] = fmt.Errorf("source %s: %w", src.Name, err)
				return nil
			}
			slots[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var merged []types.Initiative
	owners := make(map[string]int)
	for i, items := range slots {
		for _, item := range items {
			if prev, dup := owners[item.ID]; dup {
				m.logger.Debug("duplicate initiative id across sources",
					"initiative", item.ID, "kept", m.sources[prev].Name, "dropped", m.sources[i].Name)
				continue
			}
			owners[item.ID] = i
			merged = append(merged, item)
		}
	}

	m.mu.Lock()
	m.owners = owners
	m.mu.Unlock()

	return merged, errors.Join(errs...)
}

// Execute routes to the source that last reported id
func (m *MultiSource) Execute(ctx context.Context, id string) error {
	m.mu.RLock()
	idx, ok := m.owners[id]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInitiative, id)
	}
	return m.sources[idx].Source.Execute(ctx, id)
}
