package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/steward/internal/types"
)

// FileEntry is one initiative in an initiatives file. Command is optional and
// only used by CommandExecutor.
type FileEntry struct {
	types.Initiative `yaml:",inline"`
	Command          []string `yaml:"command"`
}

// File is the on-disk layout of an initiatives file
type File struct {
	Initiatives []FileEntry `yaml:"initiatives"`
}

// ExecuteFunc runs one initiative
type ExecuteFunc func(ctx context.Context, entry FileEntry) error

// FileSource scans initiatives from a YAML file on every Scan, so edits are
// picked up without a restart. Execution is delegated to an ExecuteFunc.
type FileSource struct {
	path    string
	execute ExecuteFunc
	logger  *slog.Logger

	mu   sync.RWMutex
	last map[string]FileEntry
}

var _ WorkSource = (*FileSource)(nil)

// NewFileSource creates a file-backed source
func NewFileSource(path string, execute ExecuteFunc, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:    path,
		execute: execute,
		logger:  logger,
		last:    make(map[string]FileEntry),
	}
}

// Scan reads the file. A missing file is an empty scan. Invalid entries are
// skipped with a warning; a file that cannot be parsed is an error.
func (s *FileSource) Scan(ctx context.Context) ([]types.Initiative, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read initiatives file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse initiatives file %s: %w", s.path, err)
	}

	entries := make(map[string]FileEntry, len(f.Initiatives))
	items := make([]types.Initiative, 0, len(f.Initiatives))
	for _, entry := range f.Initiatives {
		entry.Status = types.InitiativeDiscovered
		if err := entry.Validate(); err != nil {
			s.logger.Warn("skipping invalid initiative", "initiative", entry.ID, "err", err)
			continue
		}
		if _, dup := entries[entry.ID]; dup {
			s.logger.Warn("skipping duplicate initiative id", "initiative", entry.ID)
			continue
		}
		entries[entry.ID] = entry
		items = append(items, entry.Initiative)
	}

	s.mu.Lock()
	s.last = entries
	s.mu.Unlock()

	return items, nil
}

// Execute runs an initiative reported by the latest scan
func (s *FileSource) Execute(ctx context.Context, id string) error {
	s.mu.RLock()
	entry, ok := s.last[id]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInitiative, id)
	}
	if s.execute == nil {
		return fmt.Errorf("no executor configured for initiative %s", id)
	}
	return s.execute(ctx, entry)
}

// CommandExecutor returns an ExecuteFunc that runs each entry's command in
// workDir. Entries without a command fail.
func CommandExecutor(workDir string, logger *slog.Logger) ExecuteFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, entry FileEntry) error {
		if len(entry.Command) == 0 {
			return fmt.Errorf("initiative %s has no command", entry.ID)
		}

		cmd := exec.CommandContext(ctx, entry.Command[0], entry.Command[1:]...)
		cmd.Dir = workDir
		out, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("command for initiative %s failed: %w (output: %s)", entry.ID, err, truncate(string(out), 512))
		}

		logger.Info("initiative command finished", "initiative", entry.ID, "output_bytes", len(out))
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
