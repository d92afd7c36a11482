package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/steward/internal/events"
)

// StoreAuditEvent stores a new audit event
func (p *PostgresStorage) StoreAuditEvent(ctx context.Context, event *events.AuditEvent) error {
	details, err := marshalJSON(event.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal event details: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO audit_events (id, action, agent, trust_level, severity, details, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		event.ID,
		string(event.Action),
		event.Agent,
		string(event.TrustLevel),
		string(event.Severity),
		details,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to store audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the newest events first, up to limit (0 = all)
func (p *PostgresStorage) ListAuditEvents(ctx context.Context, limit int) ([]events.AuditEvent, error) {
	query := `
		SELECT id, action, agent, trust_level, severity, details, timestamp
		FROM audit_events
		ORDER BY timestamp DESC, seq DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
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
			details  []byte
		)
		if err := rows.Scan(&e.ID, &action, &e.Agent, &trust, &severity, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Action = events.Action(action)
		e.TrustLevel = events.TrustLevel(trust)
		e.Severity = events.Severity(severity)
		if e.Details, err = unmarshalJSON(details); err != nil {
			return nil, fmt.Errorf("event %s: failed to unmarshal details: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CleanupAuditEvents deletes events older than the policy's ages, then
// enforces the global cap by deleting the oldest non-critical events first.
func (p *PostgresStorage) CleanupAuditEvents(ctx context.Context, policy events.RetentionPolicy) (events.CleanupResult, error) {
	var result events.CleanupResult
	if err := policy.Validate(); err != nil {
		return result, err
	}

	now := time.Now()
	deleted, err := p.deleteBatches(ctx, now.Add(-policy.MaxAge), events.RegularSeverities, -1, policy.BatchSize)
	result.ByAge += deleted
	if err != nil {
		return result, fmt.Errorf("failed to delete old regular events: %w", err)
	}
	deleted, err = p.deleteBatches(ctx, now.Add(-policy.CriticalMaxAge), events.CriticalSeverities, -1, policy.BatchSize)
	result.ByAge += deleted
	if err != nil {
		return result, fmt.Errorf("failed to delete old critical events: %w", err)
	}

	if policy.GlobalLimit == 0 {
		return result, nil
	}

	var total int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&total); err != nil {
		return result, fmt.Errorf("failed to count audit events: %w", err)
	}
	excess := total - policy.GlobalLimit
	for _, severities := range [][]events.Severity{events.RegularSeverities, events.CriticalSeverities} {
		if excess <= 0 {
			break
		}
		// Far-future cutoff: only the count bounds this pass
		deleted, err := p.deleteBatches(ctx, now.Add(24*time.Hour), severities, excess, policy.BatchSize)
		result.ByLimit += deleted
		excess -= deleted
		if err != nil {
			return result, fmt.Errorf("failed to enforce global limit: %w", err)
		}
	}
	return result, nil
}

// deleteBatches deletes the oldest matching events before cutoff, at most
// limit rows (limit < 0 = no bound), batchSize rows per statement.
func (p *PostgresStorage) deleteBatches(ctx context.Context, cutoff time.Time, severities []events.Severity, limit, batchSize int) (int, error) {
	sevs := make([]string, len(severities))
	for i, s := range severities {
		sevs[i] = string(s)
	}

	total := 0
	for limit < 0 || total < limit {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch := batchSize
		if limit >= 0 {
			batch = min(batch, limit-total)
		}
		tag, err := p.pool.Exec(ctx, `
			DELETE FROM audit_events
			WHERE id IN (
				SELECT id FROM audit_events
				WHERE timestamp < $1 AND severity = ANY($2)
				ORDER BY timestamp ASC, seq ASC
				LIMIT $3
			)
		`, cutoff, sevs, batch)
		if err != nil {
			return total, err
		}
		n := int(tag.RowsAffected())
		total += n
		if n < batch {
			break
		}
	}
	return total, nil
}
