package events

import (
	"fmt"
	"time"
)

// RetentionPolicy bounds how long and how many audit events are kept.
// Error and critical events may be kept longer than the rest.
type RetentionPolicy struct {
	MaxAge         time.Duration
	CriticalMaxAge time.Duration
	GlobalLimit    int // 0 = unlimited
	BatchSize      int
}

// CleanupResult reports what a retention pass deleted
type CleanupResult struct {
	ByAge   int `json:"by_age"`
	ByLimit int `json:"by_limit"`
}

// Total is the number of deleted events
func (r CleanupResult) Total() int {
	return r.ByAge + r.ByLimit
}

// Validate checks the policy before a store runs it
func (p RetentionPolicy) Validate() error {
	if p.MaxAge <= 0 {
		return fmt.Errorf("max age must be positive (got %s)", p.MaxAge)
	}
	if p.CriticalMaxAge < p.MaxAge {
		return fmt.Errorf("critical max age (%s) must be >= max age (%s)", p.CriticalMaxAge, p.MaxAge)
	}
	if p.GlobalLimit < 0 {
		return fmt.Errorf("global limit cannot be negative (got %d)", p.GlobalLimit)
	}
	if p.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1 (got %d)", p.BatchSize)
	}
	return nil
}

// CriticalSeverities are kept for CriticalMaxAge and are the last to go when
// the global limit is enforced.
var CriticalSeverities = []Severity{SeverityError, SeverityCritical}

// RegularSeverities are kept for MaxAge
var RegularSeverities = []Severity{SeverityInfo, SeverityWarning}
