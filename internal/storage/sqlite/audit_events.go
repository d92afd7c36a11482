package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/steward/internal/events"
)

// StoreAuditEvent stores a new audit event
func (s *SQLiteStorage) StoreAuditEvent(ctx context.Context, event *events.AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal event details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, action, agent, trust_level, severity, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		string(event.Action),
		event.Agent,
		string(event.TrustLevel),
		string(event.Severity),
		string(details),
		event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the newest events first, up to limit (0 = all)
func (s *SQLiteStorage) ListAuditEvents(ctx context.Context, limit int) ([]events.AuditEvent, error) {
	query := `
		SELECT id, action, agent, trust_level, severity, details, timestamp
		FROM audit_events
		ORDER BY timestamp DESC, rowid DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var out []events.AuditEvent
	for rows.Next() {
		var (
			e        events.AuditEvent
			action   string
			trust    string
			severity string
			details  string
		)
		if err := rows.Scan(&e.ID, &action, &e.Agent, &trust, &severity, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Action = events.Action(action)
		e.TrustLevel = events.TrustLevel(trust)
		e.Severity = events.Severity(severity)
		if details != "" && details != "null" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, fmt.Errorf("event %s: failed to unmarshal details: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CleanupAuditEvents deletes events older than the policy's ages, then
// enforces the global cap by deleting the oldest non-critical events first.
// Deletions are batched (policy.BatchSize rows per statement).
func (s *SQLiteStorage) CleanupAuditEvents(ctx context.Context, policy events.RetentionPolicy) (events.CleanupResult, error) {
	var result events.CleanupResult
	if err := policy.Validate(); err != nil {
		return result, err
	}

	now := time.Now()
	deleted, err := s.deleteOlderThan(ctx, now.Add(-policy.MaxAge), events.RegularSeverities, policy.BatchSize)
	result.ByAge += deleted
	if err != nil {
		return result, fmt.Errorf("failed to delete old regular events: %w", err)
	}
	deleted, err = s.deleteOlderThan(ctx, now.Add(-policy.CriticalMaxAge), events.CriticalSeverities, policy.BatchSize)
	result.ByAge += deleted
	if err != nil {
		return result, fmt.Errorf("failed to delete old critical events: %w", err)
	}

	if policy.GlobalLimit == 0 {
		return result, nil
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&total); err != nil {
		return result, fmt.Errorf("failed to count audit events: %w", err)
	}
	excess := total - policy.GlobalLimit
	for _, severities := range [][]events.Severity{events.RegularSeverities, events.CriticalSeverities} {
		if excess <= 0 {
			break
		}
		deleted, err := s.deleteOldest(ctx, severities, excess, policy.BatchSize)
		result.ByLimit += deleted
		excess -= deleted
		if err != nil {
			return result, fmt.Errorf("failed to enforce global limit: %w", err)
		}
	}
	return result, nil
}

func severityArgs(severities []events.Severity) (string, []interface{}) {
	placeholders := make([]string, len(severities))
	args := make([]interface{}, len(severities))
	for i, sev := range severities {
		placeholders[i] = "?"
		args[i] = string(sev)
	}
	return strings.Join(placeholders, ", "), args
}

func (s *SQLiteStorage) deleteOlderThan(ctx context.Context, cutoff time.Time, severities []events.Severity, batchSize int) (int, error) {
	in, sevArgs := severityArgs(severities)
	query := fmt.Sprintf(`
		DELETE FROM audit_events
		WHERE id IN (
			SELECT id FROM audit_events
			WHERE timestamp < ? AND severity IN (%s)
			ORDER BY timestamp ASC
			LIMIT ?
		)
	`, in)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		args := append([]interface{}{cutoff.UTC()}, sevArgs...)
		args = append(args, batchSize)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += int(n)
		if n < int64(batchSize) {
			return total, nil
		}
	}
}

func (s *SQLiteStorage) deleteOldest(ctx context.Context, severities []events.Severity, count, batchSize int) (int, error) {
	in, sevArgs := severityArgs(severities)
	query := fmt.Sprintf(`
		DELETE FROM audit_events
		WHERE id IN (
			SELECT id FROM audit_events
			WHERE severity IN (%s)
			ORDER BY timestamp ASC, rowid ASC
			LIMIT ?
		)
	`, in)

	total := 0
	for total < count {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch := min(batchSize, count-total)
		args := append(append([]interface{}{}, sevArgs...), batch)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += int(n)
		if n < int64(batch) {
			break
		}
	}
	return total, nil
}
