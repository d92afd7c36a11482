package types

import (
	"fmt"
	"strings"
	"time"
)

// ThrottleLevel is the admission posture derived from budget usage.
// Levels are ordered: a higher value is a more restrictive posture.
type ThrottleLevel int

const (
	// LevelNormal allows all work (usage below the warning breakpoint)
	LevelNormal ThrottleLevel = iota
	// LevelWarning allows all work but discovery runs less often
	LevelWarning
	// LevelReduce runs essential work only
	LevelReduce
	// LevelPause runs user-initiated work only
	LevelPause
)

// String returns the canonical upper-case name of the level
func (l ThrottleLevel) String() string {
	switch l {
	case LevelNormal:
		return "NORMAL"
	case LevelWarning:
		return "WARNING"
	case LevelReduce:
		return "REDUCE"
	case LevelPause:
		return "PAUSE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(l))
	}
}

// IsValid checks if the level value is valid
func (l ThrottleLevel) IsValid() bool {
	return l >= LevelNormal && l <= LevelPause
}

// MarshalText implements encoding.TextMarshaler
func (l ThrottleLevel) MarshalText() ([]byte, error) {
	if !l.IsValid() {
		return nil, fmt.Errorf("invalid throttle level: %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *ThrottleLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseThrottleLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseThrottleLevel parses a level name (case-insensitive)
func ParseThrottleLevel(s string) (ThrottleLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NORMAL":
		return LevelNormal, nil
	case "WARNING":
		return LevelWarning, nil
	case "REDUCE":
		return LevelReduce, nil
	case "PAUSE":
		return LevelPause, nil
	}
	return LevelNormal, fmt.Errorf("invalid throttle level: %q", s)
}

// PriorityClass determines how aggressively throttling applies to a request
type PriorityClass int

const (
	// ClassUser is work a human asked for; it bypasses throttling
	ClassUser PriorityClass = iota
	// ClassStandard is regular work; denied only when paused
	ClassStandard
	// ClassBackground is opportunistic work; throttled first
	ClassBackground
)

// String returns the canonical upper-case name of the class
func (c PriorityClass) String() string {
	switch c {
	case ClassUser:
		return "USER"
	case ClassStandard:
		return "STANDARD"
	case ClassBackground:
		return "BACKGROUND"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(c))
	}
}

// IsValid checks if the class value is valid
func (c PriorityClass) IsValid() bool {
	return c >= ClassUser && c <= ClassBackground
}

// MarshalText implements encoding.TextMarshaler
func (c PriorityClass) MarshalText() ([]byte, error) {
	if !c.IsValid() {
		return nil, fmt.Errorf("invalid priority class: %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *PriorityClass) UnmarshalText(text []byte) error {
	parsed, err := ParsePriorityClass(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParsePriorityClass parses a class name (case-insensitive)
func ParsePriorityClass(s string) (PriorityClass, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "USER":
		return ClassUser, nil
	case "STANDARD":
		return ClassStandard, nil
	case "BACKGROUND":
		return ClassBackground, nil
	}
	return ClassStandard, fmt.Errorf("invalid priority class: %q", s)
}

// BudgetSnapshot is the budget state read once per cycle
type BudgetSnapshot struct {
	Level           ThrottleLevel `json:"level"`
	UsagePercent    float64       `json:"usage_percent"`
	TokensUsed      int64         `json:"tokens_used"`
	TokensRemaining int64         `json:"tokens_remaining"`
	Recommendation  string        `json:"recommendation"`
}

// Admission is the answer to a "can this work proceed" question.
// A denial is a normal outcome, not an error.
type Admission struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// RunState is the persisted counters of the poll loop.
// The JSON shape is read back on the next boot.
type RunState struct {
	Running        bool       `json:"running"`
	StartedAt      *time.Time `json:"startedAt"`
	TasksProcessed int64      `json:"tasksProcessed"`
	LastActivity   *time.Time `json:"lastActivity"`
	Errors         int64      `json:"errors"`
}
