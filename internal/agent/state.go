package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/steveyegge/steward/internal/types"
)

// loadRunState reads the persisted counters. A missing or unreadable file
// yields zero values; only the counters are needed on restart.
func loadRunState(path string, logger *slog.Logger) types.RunState {
	var state types.RunState
	if path == "" {
		return state
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("failed to read run state, starting fresh", "path", path, "err", err)
		}
		return state
	}
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Warn("corrupt run state, starting fresh", "path", path, "err", err)
		return types.RunState{}
	}
	if state.TasksProcessed < 0 || state.Errors < 0 {
		logger.Warn("run state has negative counters, starting fresh", "path", path)
		return types.RunState{}
	}
	return state
}

// saveRunState overwrites the state file. It is not atomic.
func saveRunState(path string, state types.RunState) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run state: %w", err)
	}
	return nil
}
