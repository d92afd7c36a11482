package types

import (
	"fmt"
	"strings"
	"time"
)

// Risk classifies how dangerous an action is if it goes wrong.
// RiskUnspecified means the discovery source did not provide one.
type Risk int

const (
	RiskUnspecified Risk = iota
	RiskLow
	RiskMedium
	RiskHigh
)

// String returns the canonical upper-case name of the risk
func (r Risk) String() string {
	switch r {
	case RiskUnspecified:
		return ""
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(r))
	}
}

// MarshalText implements encoding.TextMarshaler
func (r Risk) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (r *Risk) UnmarshalText(text []byte) error {
	parsed, err := ParseRisk(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRisk parses a risk name (case-insensitive). Empty input is RiskUnspecified.
func ParseRisk(s string) (Risk, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return RiskUnspecified, nil
	case "LOW":
		return RiskLow, nil
	case "MEDIUM":
		return RiskMedium, nil
	case "HIGH":
		return RiskHigh, nil
	}
	return RiskUnspecified, fmt.Errorf("invalid risk: %q", s)
}

// InitiativeStatus tracks an initiative through a single cycle
type InitiativeStatus string

const (
	InitiativeDiscovered InitiativeStatus = "discovered"
	InitiativeQueued     InitiativeStatus = "queued"
	InitiativeInProgress InitiativeStatus = "in_progress"
	InitiativeCompleted  InitiativeStatus = "completed"
	InitiativeFailed     InitiativeStatus = "failed"
)

// IsValid checks if the status value is valid
func (s InitiativeStatus) IsValid() bool {
	switch s {
	case InitiativeDiscovered, InitiativeQueued, InitiativeInProgress, InitiativeCompleted, InitiativeFailed:
		return true
	}
	return false
}

// Initiative is a discovered, schedulable unit of autonomous work.
// Each scan produces fresh values; the loop owns status transitions.
type Initiative struct {
	ID               string           `json:"id" yaml:"id"`
	Title            string           `json:"title" yaml:"title"`
	Description      string           `json:"description,omitempty" yaml:"description"`
	Category         string           `json:"category" yaml:"category"`
	Priority         int              `json:"priority" yaml:"priority"`
	Autonomous       bool             `json:"autonomous" yaml:"autonomous"`
	ForUser          bool             `json:"for_user" yaml:"for_user"`
	EstimatedTokens  int64            `json:"estimated_tokens" yaml:"estimated_tokens"`
	EstimatedCostUSD float64          `json:"estimated_cost_usd" yaml:"estimated_cost_usd"`
	FilesAffected    int              `json:"files_affected" yaml:"files_affected"`
	TouchesSecurity  bool             `json:"touches_security" yaml:"touches_security"`
	Risk             Risk             `json:"risk,omitempty" yaml:"risk"`
	Status           InitiativeStatus `json:"status" yaml:"-"`
}

// Validate checks if the initiative has valid field values
func (i *Initiative) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if i.Priority < 0 || i.Priority > 100 {
		return fmt.Errorf("priority must be between 0 and 100 (got %d)", i.Priority)
	}
	if i.EstimatedTokens < 0 {
		return fmt.Errorf("estimated_tokens cannot be negative")
	}
	if i.EstimatedCostUSD < 0 {
		return fmt.Errorf("estimated_cost_usd cannot be negative")
	}
	if i.FilesAffected < 0 {
		return fmt.Errorf("files_affected cannot be negative")
	}
	if i.Status != "" && !i.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	return nil
}

// ApprovalRequest is an item held for human sign-off.
// It is created by escalation and resolved by an external actor only.
type ApprovalRequest struct {
	ID               string                 `json:"id"`
	SourceID         string                 `json:"source_id"`
	Type             string                 `json:"type"`
	Title            string                 `json:"title"`
	Description      string                 `json:"description,omitempty"`
	Risk             Risk                   `json:"risk"`
	EstimatedCostUSD float64                `json:"estimated_cost_usd"`
	EstimatedTokens  int64                  `json:"estimated_tokens"`
	Reversible       bool                   `json:"reversible"`
	Reason           string                 `json:"reason"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

// AutoExecuteThreshold bounds what may run without a human
type AutoExecuteThreshold struct {
	MaxCostPerTask   float64 `json:"max_cost_per_task" yaml:"max_cost_per_task"`     // 0 = unlimited
	MaxRisk          Risk    `json:"max_risk" yaml:"max_risk"`                       // unspecified = unlimited
	MaxFilesAffected int     `json:"max_files_affected" yaml:"max_files_affected"`   // 0 = unlimited
	MinPriority      int     `json:"min_priority" yaml:"min_priority"`
}

// ApprovalThreshold decides when human sign-off is required
type ApprovalThreshold struct {
	MinCost          float64 `json:"min_cost" yaml:"min_cost"`                     // 0 = clause disabled
	MinRisk          Risk    `json:"min_risk" yaml:"min_risk"`                     // unspecified = clause disabled
	MinFilesAffected int     `json:"min_files_affected" yaml:"min_files_affected"` // 0 = clause disabled
	TouchesSecurity  bool    `json:"touches_security" yaml:"touches_security"`
}

// Task is an item on the primary work queue
type Task struct {
	ID              string                 `json:"id"`
	Title           string                 `json:"title"`
	Class           PriorityClass          `json:"class"`
	EstimatedTokens int64                  `json:"estimated_tokens"`
	Payload         map[string]interface{} `json:"payload,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}
