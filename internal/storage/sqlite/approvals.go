package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/steveyegge/steward/internal/types"
)

// AddApproval appends an approval request. Rows are never updated by the agent.
func (s *SQLiteStorage) AddApproval(ctx context.Context, req types.ApprovalRequest) error {
	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal approval metadata: %w", err)
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO approval_requests (
			id, source_id, type, title, description, risk,
			estimated_cost_usd, estimated_tokens, reversible, reason, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		req.ID,
		req.SourceID,
		req.Type,
		req.Title,
		req.Description,
		req.Risk.String(),
		req.EstimatedCostUSD,
		req.EstimatedTokens,
		req.Reversible,
		req.Reason,
		string(metadata),
		req.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval request: %w", err)
	}
	return nil
}

// ListApprovals returns the newest requests first, up to limit (0 = all)
func (s *SQLiteStorage) ListApprovals(ctx context.Context, limit int) ([]types.ApprovalRequest, error) {
	query := `
		SELECT id, source_id, type, title, description, risk,
		       estimated_cost_usd, estimated_tokens, reversible, reason, metadata, created_at
		FROM approval_requests
		ORDER BY created_at DESC, rowid DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval requests: %w", err)
	}
	defer rows.Close()

	var out []types.ApprovalRequest
	for rows.Next() {
		var (
			req      types.ApprovalRequest
			risk     string
			metadata string
		)
		if err := rows.Scan(
			&req.ID, &req.SourceID, &req.Type, &req.Title, &req.Description, &risk,
			&req.EstimatedCostUSD, &req.EstimatedTokens, &req.Reversible, &req.Reason, &metadata, &req.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}
		if req.Risk, err = types.ParseRisk(risk); err != nil {
			return nil, fmt.Errorf("approval %s: %w", req.ID, err)
		}
		if metadata != "" && metadata != "null" {
			if err := json.Unmarshal([]byte(metadata), &req.Metadata); err != nil {
				return nil, fmt.Errorf("approval %s: failed to unmarshal metadata: %w", req.ID, err)
			}
		}
		out = append(out, req)
	}
	return out, rows.Err()
}
