// Package config loads steward's configuration: built-in defaults, then an
// optional YAML file, then STEWARD_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/steward/internal/agent"
	"github.com/steveyegge/steward/internal/budget"
	"github.com/steveyegge/steward/internal/discovery"
	"github.com/steveyegge/steward/internal/storage"
	"github.com/steveyegge/steward/internal/telemetry"
	"github.com/steveyegge/steward/internal/types"
)

// DefaultDataDir holds state files, the lock and the default database
const DefaultDataDir = ".steward"

// DefaultPath is read when Load is called without a path. Unlike an explicit
// path, it may be missing.
var DefaultPath = filepath.Join(DefaultDataDir, "config.yaml")

// Gate modes
const (
	GateRate   = "rate"
	GateRandom = "random"
)

// DedupConfig sizes the recently-acted-on set
type DedupConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Window   time.Duration `yaml:"window" json:"window"`
	Capacity int           `yaml:"capacity" json:"capacity"`
}

// Config is the complete steward configuration
type Config struct {
	DataDir            string        `yaml:"data_dir" json:"data_dir"`
	PollInterval       time.Duration `yaml:"poll_interval" json:"poll_interval"`
	StatePath          string        `yaml:"state_path" json:"state_path"`
	SchedulePath       string        `yaml:"schedule_path" json:"schedule_path"`
	SchedulerStatePath string        `yaml:"scheduler_state_path" json:"scheduler_state_path"`
	InitiativesPath    string        `yaml:"initiatives_path" json:"initiatives_path"`
	ControlSocket      string        `yaml:"control_socket" json:"control_socket"`

	Storage storage.Config `yaml:"storage" json:"storage"`
	Budget  budget.Config  `yaml:"budget" json:"budget"`

	AutoExecute          types.AutoExecuteThreshold `yaml:"auto_execute" json:"auto_execute"`
	Approval             types.ApprovalThreshold    `yaml:"approval" json:"approval"`
	MaxExecutionsNormal  int                        `yaml:"max_executions_normal" json:"max_executions_normal"`
	MaxExecutionsWarning int                        `yaml:"max_executions_warning" json:"max_executions_warning"`

	GateMode           string                  `yaml:"gate_mode" json:"gate_mode"`
	Discovery          discovery.Probabilities `yaml:"discovery_probabilities" json:"discovery_probabilities"`
	Cleanup            discovery.Probabilities `yaml:"cleanup_probabilities" json:"cleanup_probabilities"`
	MaxConcurrentScans int                     `yaml:"max_concurrent_scans" json:"max_concurrent_scans"`
	Dedup              DedupConfig             `yaml:"dedup" json:"dedup"`

	ErrorNotifyEvery int                  `yaml:"error_notify_every" json:"error_notify_every"`
	AuditRetention   AuditRetentionConfig `yaml:"audit_retention" json:"audit_retention"`
	Telemetry        telemetry.Config     `yaml:"telemetry" json:"telemetry"`
	LogLevel         string               `yaml:"log_level" json:"log_level"`
}

// Default returns the built-in configuration
func Default() Config {
	loop := agent.DefaultConfig()
	return Config{
		DataDir:              DefaultDataDir,
		PollInterval:         loop.PollInterval,
		StatePath:            filepath.Join(DefaultDataDir, "agent_state.json"),
		SchedulePath:         filepath.Join(DefaultDataDir, "schedule.yaml"),
		SchedulerStatePath:   filepath.Join(DefaultDataDir, "scheduler_state.json"),
		InitiativesPath:      filepath.Join(DefaultDataDir, "initiatives.yaml"),
		ControlSocket:        filepath.Join(DefaultDataDir, "steward.sock"),
		Storage:              *storage.DefaultConfig(),
		Budget:               *budget.DefaultConfig(),
		AutoExecute:          loop.AutoExecute,
		Approval:             loop.Approval,
		MaxExecutionsNormal:  loop.MaxExecutionsNormal,
		MaxExecutionsWarning: loop.MaxExecutionsWarning,
		GateMode:             GateRate,
		Discovery:            discovery.DefaultDiscoveryProbabilities(),
		Cleanup:              discovery.DefaultCleanupProbabilities(),
		Dedup: DedupConfig{
			Enabled:  true,
			Window:   discovery.DefaultRecentWindow,
			Capacity: discovery.DefaultRecentCapacity,
		},
		ErrorNotifyEvery: loop.ErrorNotifyEvery,
		AuditRetention:   DefaultAuditRetentionConfig(),
		LogLevel:         "info",
	}
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment, then validates it. An empty path reads DefaultPath if present.
func Load(path string) (Config, error) {
	cfg := Default()

	optional := path == ""
	if optional {
		path = DefaultPath
	}
	if err := cfg.mergeFile(path, optional); err != nil {
		return cfg, err
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv applies STEWARD_* overrides. Budget variables (STEWARD_BUDGET_*)
// are handled by budget.LoadFromEnv.
func (c *Config) applyEnv() error {
	parsers := []func() error{
		func() error { return parseEnvString("STEWARD_DATA_DIR", &c.DataDir) },
		func() error { return parseEnvDuration("STEWARD_POLL_INTERVAL", &c.PollInterval) },
		func() error { return parseEnvString("STEWARD_STATE_PATH", &c.StatePath) },
		func() error { return parseEnvString("STEWARD_SCHEDULE_PATH", &c.SchedulePath) },
		func() error { return parseEnvString("STEWARD_INITIATIVES_PATH", &c.InitiativesPath) },
		func() error { return parseEnvString("STEWARD_CONTROL_SOCKET", &c.ControlSocket) },
		func() error { return parseEnvString("STEWARD_STORAGE_BACKEND", &c.Storage.Backend) },
		func() error { return parseEnvString("STEWARD_STORAGE_PATH", &c.Storage.Path) },
		func() error { return parseEnvString("STEWARD_POSTGRES_URL", &c.Storage.PostgresURL) },
		func() error { return parseEnvInt("STEWARD_MAX_EXECUTIONS_NORMAL", &c.MaxExecutionsNormal) },
		func() error { return parseEnvInt("STEWARD_MAX_EXECUTIONS_WARNING", &c.MaxExecutionsWarning) },
		func() error { return parseEnvInt("STEWARD_AUTO_EXECUTE_MIN_PRIORITY", &c.AutoExecute.MinPriority) },
		func() error { return parseEnvFloat("STEWARD_AUTO_EXECUTE_MAX_COST", &c.AutoExecute.MaxCostPerTask) },
		func() error { return parseEnvFloat("STEWARD_APPROVAL_MIN_COST", &c.Approval.MinCost) },
		func() error { return parseEnvString("STEWARD_GATE_MODE", &c.GateMode) },
		func() error { return parseEnvFloat("STEWARD_DISCOVERY_PROBABILITY_NORMAL", &c.Discovery.Normal) },
		func() error { return parseEnvFloat("STEWARD_DISCOVERY_PROBABILITY_WARNING", &c.Discovery.Warning) },
		func() error { return parseEnvBool("STEWARD_DEDUP_ENABLED", &c.Dedup.Enabled) },
		func() error { return parseEnvDuration("STEWARD_DEDUP_WINDOW", &c.Dedup.Window) },
		func() error { return parseEnvInt("STEWARD_ERROR_NOTIFY_EVERY", &c.ErrorNotifyEvery) },
		func() error { return parseEnvString("STEWARD_OTEL_ENDPOINT", &c.Telemetry.Endpoint) },
		func() error { return parseEnvBool("STEWARD_OTEL_INSECURE", &c.Telemetry.Insecure) },
		func() error { return parseEnvString("STEWARD_LOG_LEVEL", &c.LogLevel) },
		func() error { return applyAuditRetentionEnv(&c.AuditRetention) },
	}
	for _, parse := range parsers {
		if err := parse(); err != nil {
			return err
		}
	}

	budget.LoadFromEnv(&c.Budget)
	return nil
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.ControlSocket == "" {
		return errors.New("control_socket is required")
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Budget.Validate(); err != nil {
		return fmt.Errorf("budget: %w", err)
	}
	if err := c.Agent().Validate(); err != nil {
		return err
	}
	if c.GateMode != GateRate && c.GateMode != GateRandom {
		return fmt.Errorf("gate_mode must be %q or %q (got %q)", GateRate, GateRandom, c.GateMode)
	}
	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery_probabilities: %w", err)
	}
	if err := c.Cleanup.Validate(); err != nil {
		return fmt.Errorf("cleanup_probabilities: %w", err)
	}
	if c.MaxConcurrentScans < 0 {
		return fmt.Errorf("max_concurrent_scans cannot be negative (got %d)", c.MaxConcurrentScans)
	}
	if c.Dedup.Enabled && (c.Dedup.Window <= 0 || c.Dedup.Capacity <= 0) {
		return errors.New("dedup window and capacity must be positive when dedup is enabled")
	}
	if err := c.AuditRetention.Validate(); err != nil {
		return fmt.Errorf("audit_retention: %w", err)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Agent returns the poll loop configuration
func (c Config) Agent() agent.Config {
	loop := agent.DefaultConfig()
	loop.PollInterval = c.PollInterval
	loop.StatePath = c.StatePath
	loop.AutoExecute = c.AutoExecute
	loop.Approval = c.Approval
	loop.MaxExecutionsNormal = c.MaxExecutionsNormal
	loop.MaxExecutionsWarning = c.MaxExecutionsWarning
	loop.ErrorNotifyEvery = c.ErrorNotifyEvery
	loop.Retention = c.AuditRetention.Policy()
	return loop
}

// Gates builds the discovery and cleanup gates for the configured mode
func (c Config) Gates(clock func() time.Time) (discoveryGate, cleanupGate discovery.Gate, err error) {
	if c.GateMode == GateRandom {
		return discovery.NewRandomGate(c.Discovery, nil), discovery.NewRandomGate(c.Cleanup, nil), nil
	}
	dg, err := discovery.NewRateGate(c.Discovery, c.PollInterval, clock)
	if err != nil {
		return nil, nil, fmt.Errorf("discovery gate: %w", err)
	}
	cg, err := discovery.NewRateGate(c.Cleanup, c.PollInterval, clock)
	if err != nil {
		return nil, nil, fmt.Errorf("cleanup gate: %w", err)
	}
	return dg, cg, nil
}

// Recent returns the de-duplication set, or nil when disabled
func (c Config) Recent() *discovery.RecentSet {
	if !c.Dedup.Enabled {
		return nil
	}
	return discovery.NewRecentSet(c.Dedup.Window, c.Dedup.Capacity)
}

// SlogLevel parses LogLevel
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return level, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
