package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/steveyegge/steward/internal/types"
)

// formatTokens formats token counts with K/M suffixes
func formatTokens(tokens int64) string {
	if tokens < 1000 {
		return fmt.Sprintf("%d", tokens)
	} else if tokens < 1_000_000 {
		return fmt.Sprintf("%.1fK", float64(tokens)/1000)
	}
	return fmt.Sprintf("%.2fM", float64(tokens)/1_000_000)
}

// levelColor picks the display color for a throttle level
func levelColor(level types.ThrottleLevel) *color.Color {
	switch level {
	case types.LevelNormal:
		return color.New(color.FgGreen)
	case types.LevelWarning:
		return color.New(color.FgYellow)
	case types.LevelReduce:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

// renderProgressBar renders a text-based progress bar colored by level
func renderProgressBar(percent float64, width int, level types.ThrottleLevel) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	filled := int(percent / 100.0 * float64(width))
	barColor := levelColor(level)
	empty := color.New(color.FgHiBlack)

	var bar strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			bar.WriteString(barColor.Sprint("█"))
		} else {
			bar.WriteString(empty.Sprint("░"))
		}
	}
	return fmt.Sprintf("[%s]", bar.String())
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}

// formatTime formats an optional timestamp relative to now
func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s ago", formatDuration(time.Since(*t)))
}

// shortID returns the first 8 characters of an id
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
