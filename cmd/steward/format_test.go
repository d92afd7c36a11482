package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/steward/internal/types"
)

func TestFormatTokens(t *testing.T) {
	tests := []struct {
		tokens int64
		want   string
	}{
		{0, "0"},
		{999, "999"},
		{1500, "1.5K"},
		{2_500_000, "2.50M"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTokens(tt.tokens))
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "5m", formatDuration(5*time.Minute))
	assert.Equal(t, "2h30m", formatDuration(150*time.Minute))
	assert.Equal(t, "1d2h", formatDuration(26*time.Hour))
	assert.Equal(t, "never", formatTime(nil))
}

func TestRenderProgressBarClamps(t *testing.T) {
	for _, pct := range []float64{-10, 0, 55, 100, 250} {
		bar := renderProgressBar(pct, 20, types.LevelWarning)
		assert.True(t, strings.HasPrefix(bar, "["))
		assert.True(t, strings.HasSuffix(bar, "]"))
		assert.Equal(t, 20, strings.Count(bar, "█")+strings.Count(bar, "░"))
	}
}

func TestPayloadCommand(t *testing.T) {
	assert.Nil(t, payloadCommand(nil))
	assert.Equal(t, []string{"make", "docs"}, payloadCommand(map[string]interface{}{"command": []string{"make", "docs"}}))
	assert.Equal(t, []string{"go", "test"}, payloadCommand(map[string]interface{}{"command": []interface{}{"go", "test"}}))
	assert.Nil(t, payloadCommand(map[string]interface{}{"command": []interface{}{"go", 1}}))
	assert.Nil(t, payloadCommand(map[string]interface{}{"command": "make docs"}))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", shortID("abc"))
	assert.Equal(t, "12345678", shortID("1234567890"))
}
