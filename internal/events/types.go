package events

import (
	"context"
	"time"
)

// Action identifies what an audit event records
type Action string

const (
	// ActionThrottleLevelChanged indicates the throttle level differs from the previous cycle
	ActionThrottleLevelChanged Action = "throttle_level_changed"
	// ActionInitiativesExecuted summarizes a batch that executed at least one initiative
	ActionInitiativesExecuted Action = "initiatives_executed"
	// ActionInitiativesForUser lists initiatives meant for a human (title and category only)
	ActionInitiativesForUser Action = "initiatives_for_user"
	// ActionApprovalQueued indicates an initiative was escalated for sign-off
	ActionApprovalQueued Action = "approval_queued"
	// ActionCycleError indicates a poll cycle failed
	ActionCycleError Action = "cycle_error"
	// ActionSchedulerFailures indicates one or more scheduled handlers failed
	ActionSchedulerFailures Action = "scheduler_failures"
	// ActionAuditCleanupCompleted indicates a retention cleanup pass finished
	ActionAuditCleanupCompleted Action = "audit_cleanup_completed"
	// ActionAgentStarted and ActionAgentStopped bracket a run of the poll loop
	ActionAgentStarted Action = "agent_started"
	ActionAgentStopped Action = "agent_stopped"
)

// Severity represents the severity level of an event.
type Severity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo Severity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning Severity = "warning"
	// SeverityError indicates error events
	SeverityError Severity = "error"
	// SeverityCritical indicates critical events requiring immediate attention
	SeverityCritical Severity = "critical"
)

// TrustLevel records how much human oversight produced the action
type TrustLevel string

const (
	// TrustAutonomous marks actions the agent took on its own
	TrustAutonomous TrustLevel = "autonomous"
	// TrustSystem marks bookkeeping by the agent core itself
	TrustSystem TrustLevel = "system"
	// TrustUser marks actions requested by a human
	TrustUser TrustLevel = "user"
)

// AuditEvent is one entry in the audit trail
type AuditEvent struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Action is what happened
	Action Action `json:"action"`
	// Agent is the component that acted
	Agent string `json:"agent"`
	// TrustLevel is how much oversight applied
	TrustLevel TrustLevel `json:"trust_level"`
	// Severity is the severity level of this event
	Severity Severity `json:"severity"`
	// Details contains structured data (must be JSON-serializable)
	Details map[string]interface{} `json:"details"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives audit events. Record is fire-and-forget: it never returns
// an error and callers do not wait for acknowledgement.
type Sink interface {
	Record(ctx context.Context, action Action, agent string, trust TrustLevel, details map[string]interface{})
}

// Store persists audit events
type Store interface {
	StoreAuditEvent(ctx context.Context, event *AuditEvent) error
}

// SeverityFor returns the default severity of an action
func SeverityFor(action Action) Severity {
	switch action {
	case ActionCycleError:
		return SeverityError
	case ActionSchedulerFailures, ActionApprovalQueued, ActionThrottleLevelChanged:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
