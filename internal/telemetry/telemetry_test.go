package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{}, "steward", "test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	// Globals are usable no-ops
	assert.NotNil(t, Meter("steward/test"))
	_, span := Tracer("steward/test").Start(context.Background(), "noop")
	span.End()
}
