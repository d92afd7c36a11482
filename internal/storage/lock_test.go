package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	lockPath, err := AcquireLock(dir, "test")
	require.NoError(t, err)

	lock, err := ReadLock(lockPath)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), lock.PID)
	assert.Equal(t, "test", lock.Version)

	// Our own process is alive, so a second acquire fails
	_, err = AcquireLock(dir, "test")
	assert.Error(t, err)

	require.NoError(t, ReleaseLock(lockPath))
	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))

	// Releasing twice is harmless
	assert.NoError(t, ReleaseLock(lockPath))
	assert.NoError(t, ReleaseLock(""))
}

func TestAcquireLockTakesOverStaleLock(t *testing.T) {
	dir := t.TempDir()
	hostname, err := os.Hostname()
	require.NoError(t, err)

	// PIDs are bounded well below this on every supported platform
	data, err := json.Marshal(AgentLock{PID: 1 << 30, Hostname: hostname, StartedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFileName), data, 0644))

	lockPath, err := AcquireLock(dir, "test")
	require.NoError(t, err)
	lock, err := ReadLock(lockPath)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), lock.PID)
}
