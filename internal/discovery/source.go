package discovery

import (
	"context"
	"errors"

	"github.com/steveyegge/steward/internal/types"
)

// ErrUnknownInitiative is returned by Execute for ids the source never reported
var ErrUnknownInitiative = errors.New("unknown initiative")

// WorkSource is a pluggable supplier of initiatives.
type WorkSource interface {
	// Scan returns fresh initiatives. The result may be empty and carries no
	// ordering guarantee beyond discovery order.
	Scan(ctx context.Context) ([]types.Initiative, error)

	// Execute runs the initiative with the given id. An error means the
	// initiative failed; it never affects other initiatives.
	Execute(ctx context.Context, id string) error
}
