package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/steveyegge/steward/internal/approval"
)

// DefaultApprovalLimit is used when an approvals command carries no limit
const DefaultApprovalLimit = 50

// Routes wires commands to the running process
type Routes struct {
	// Status returns the value reported for "status"
	Status func() interface{}
	// Approvals backs "approvals"; nil reports the command as unsupported
	Approvals approval.Lister
	// Stop requests shutdown. It must not block on the control server itself.
	Stop func()
}

// Handler returns a Handler dispatching on Command.Type
func (r Routes) Handler() Handler {
	return func(ctx context.Context, cmd Command) (interface{}, error) {
		switch cmd.Type {
		case CommandStatus:
			if r.Status == nil {
				return nil, errors.New("status is not available")
			}
			return r.Status(), nil

		case CommandStop:
			if r.Stop == nil {
				return nil, errors.New("stop is not available")
			}
			r.Stop()
			return map[string]string{"state": "stopping"}, nil

		case CommandApprovals:
			if r.Approvals == nil {
				return nil, errors.New("approval listing is not available")
			}
			limit := cmd.Limit
			if limit <= 0 {
				limit = DefaultApprovalLimit
			}
			return r.Approvals.ListApprovals(ctx, limit)
		}
		return nil, fmt.Errorf("unknown command %q", cmd.Type)
	}
}
