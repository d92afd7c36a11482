package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/steward/internal/discovery"
	"github.com/steveyegge/steward/internal/storage"
	"github.com/steveyegge/steward/internal/types"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, time.Minute, cfg.PollInterval)
	assert.Equal(t, 2, cfg.MaxExecutionsNormal)
	assert.Equal(t, 1, cfg.MaxExecutionsWarning)
	assert.Equal(t, 10, cfg.ErrorNotifyEvery)
	assert.Equal(t, 0.05, cfg.Discovery.Normal)
	assert.Equal(t, 0.02, cfg.Discovery.Warning)
	assert.Equal(t, storage.BackendSQLite, cfg.Storage.Backend)
}

func TestLoadMissingDefaultPathUsesDefaults(t *testing.T) {
	old := DefaultPath
	DefaultPath = filepath.Join(t.TempDir(), "absent.yaml")
	t.Cleanup(func() { DefaultPath = old })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().PollInterval, cfg.PollInterval)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
poll_interval: 30s
gate_mode: random
max_executions_normal: 3
auto_execute:
  max_risk: LOW
  min_priority: 70
approval:
  min_cost: 1.25
budget:
  max_tokens_per_window: 5000
  breakpoints:
    warning: 70
    reduce: 85
    pause: 97
discovery_probabilities:
  normal: 0.5
storage:
  backend: sqlite
  path: /tmp/steward-test.db
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, GateRandom, cfg.GateMode)
	assert.Equal(t, 3, cfg.MaxExecutionsNormal)
	assert.Equal(t, 1, cfg.MaxExecutionsWarning, "unset fields keep defaults")
	assert.Equal(t, types.RiskLow, cfg.AutoExecute.MaxRisk)
	assert.Equal(t, 70, cfg.AutoExecute.MinPriority)
	assert.Equal(t, 0.50, cfg.AutoExecute.MaxCostPerTask)
	assert.Equal(t, 1.25, cfg.Approval.MinCost)
	assert.Equal(t, types.RiskHigh, cfg.Approval.MinRisk)
	assert.Equal(t, int64(5000), cfg.Budget.MaxTokensPerWindow)
	assert.Equal(t, 97.0, cfg.Budget.Breakpoints.Pause)
	assert.Equal(t, 0.5, cfg.Discovery.Normal)
	assert.Equal(t, 0.02, cfg.Discovery.Warning)
	assert.Equal(t, "/tmp/steward-test.db", cfg.Storage.Path)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", level.String())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "poll_interval: 30s\nerror_notify_every: 5\n")
	t.Setenv("STEWARD_POLL_INTERVAL", "2m")
	t.Setenv("STEWARD_GATE_MODE", "random")
	t.Setenv("STEWARD_AUDIT_RETENTION_DAYS", "14")
	t.Setenv("STEWARD_BUDGET_MAX_TOKENS", "777")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.PollInterval)
	assert.Equal(t, 5, cfg.ErrorNotifyEvery)
	assert.Equal(t, GateRandom, cfg.GateMode)
	assert.Equal(t, 14, cfg.AuditRetention.RetentionDays)
	assert.Equal(t, int64(777), cfg.Budget.MaxTokensPerWindow)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "bad yaml", body: "poll_interval: [oops"},
		{name: "zero poll interval", body: "poll_interval: 0s"},
		{name: "bad gate mode", body: "gate_mode: sometimes"},
		{name: "probability above one", body: "cleanup_probabilities:\n  normal: 1.5"},
		{name: "bad storage backend", body: "storage:\n  backend: mongo"},
		{name: "bad risk", body: "approval:\n  min_risk: EXTREME"},
		{name: "bad log level", body: "log_level: chatty"},
		{name: "bad env int", body: "", env: map[string]string{"STEWARD_ERROR_NOTIFY_EVERY": "ten"}},
		{name: "bad env duration", body: "", env: map[string]string{"STEWARD_POLL_INTERVAL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestAgentConfig(t *testing.T) {
	cfg := Default()
	cfg.PollInterval = 5 * time.Second
	cfg.AuditRetention.RetentionDays = 7

	loop := cfg.Agent()
	assert.Equal(t, 5*time.Second, loop.PollInterval)
	assert.Equal(t, cfg.StatePath, loop.StatePath)
	assert.Equal(t, 7*24*time.Hour, loop.Retention.MaxAge)
	require.NoError(t, loop.Validate())
}

func TestGates(t *testing.T) {
	cfg := Default()
	dg, cg, err := cfg.Gates(nil)
	require.NoError(t, err)
	assert.IsType(t, &discovery.RateGate{}, dg)
	assert.IsType(t, &discovery.RateGate{}, cg)

	cfg.GateMode = GateRandom
	dg, _, err = cfg.Gates(nil)
	require.NoError(t, err)
	assert.IsType(t, &discovery.RandomGate{}, dg)
}

func TestRecent(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg.Recent())
	cfg.Dedup.Enabled = false
	assert.Nil(t, cfg.Recent())
}

func TestAuditRetentionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AuditRetentionConfig)
		wantErr bool
	}{
		{"defaults", func(*AuditRetentionConfig) {}, false},
		{"unlimited global", func(c *AuditRetentionConfig) { c.GlobalLimitEvents = 0 }, false},
		{"zero days", func(c *AuditRetentionConfig) { c.RetentionDays = 0 }, true},
		{"critical shorter than regular", func(c *AuditRetentionConfig) { c.RetentionCriticalDays = 10 }, true},
		{"tiny global limit", func(c *AuditRetentionConfig) { c.GlobalLimitEvents = 50 }, true},
		{"negative global limit", func(c *AuditRetentionConfig) { c.GlobalLimitEvents = -1 }, true},
		{"batch too small", func(c *AuditRetentionConfig) { c.CleanupBatchSize = 10 }, true},
		{"batch too large", func(c *AuditRetentionConfig) { c.CleanupBatchSize = 20000 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAuditRetentionConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuditRetentionPolicy(t *testing.T) {
	policy := DefaultAuditRetentionConfig().Policy()
	require.NoError(t, policy.Validate())
	assert.Equal(t, 30*24*time.Hour, policy.MaxAge)
	assert.Equal(t, 90*24*time.Hour, policy.CriticalMaxAge)
	assert.Equal(t, 100000, policy.GlobalLimit)
	assert.Equal(t, 1000, policy.BatchSize)
}
