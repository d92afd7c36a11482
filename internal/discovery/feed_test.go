package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_LatestByValue(t *testing.T) {
	ctx := context.Background()
	f := NewFeed(4, nil)

	_, ok := f.Latest()
	assert.False(t, ok)

	require.NoError(t, f.Start(ctx))

	report := ScanReport{Discovered: 3, ForUser: []ForUserItem{{Title: "Review PR", Category: "code"}}}
	assert.True(t, f.Publish(report))

	// the publisher's slice is not shared with readers
	report.ForUser[0].Title = "mutated"

	require.Eventually(t, func() bool {
		_, ok := f.Latest()
		return ok
	}, time.Second, 5*time.Millisecond)

	got, _ := f.Latest()
	assert.Equal(t, 3, got.Discovered)
	assert.Equal(t, "Review PR", got.ForUser[0].Title)

	got.ForUser[0].Title = "changed by reader"
	again, _ := f.Latest()
	assert.Equal(t, "Review PR", again.ForUser[0].Title)

	require.NoError(t, f.Stop(ctx))
}

func TestFeed_StopDrainsPending(t *testing.T) {
	ctx := context.Background()
	f := NewFeed(1, nil)

	// nothing consumes before Start, so the newest report replaces the pending one
	assert.True(t, f.Publish(ScanReport{Executed: 1}))
	assert.True(t, f.Publish(ScanReport{Executed: 2}))
	assert.Equal(t, int64(1), f.Dropped())

	require.NoError(t, f.Start(ctx))
	require.NoError(t, f.Stop(ctx))

	got, ok := f.Latest()
	require.True(t, ok)
	assert.Equal(t, 2, got.Executed)
}

func TestFeed_StartStopIdempotent(t *testing.T) {
	ctx := context.Background()
	f := NewFeed(1, nil)

	require.NoError(t, f.Stop(ctx))
	require.NoError(t, f.Start(ctx))
	require.NoError(t, f.Start(ctx))
	require.NoError(t, f.Stop(ctx))
	require.NoError(t, f.Stop(ctx))
}
