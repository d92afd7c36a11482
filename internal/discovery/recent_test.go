package discovery

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecentSet_SeenWithinWindow(t *testing.T) {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	s := NewRecentSet(time.Hour, 8)

	assert.False(t, s.Seen("a", now))
	s.Mark("a", now)
	assert.True(t, s.Seen("a", now.Add(59*time.Minute)))
	assert.False(t, s.Seen("a", now.Add(time.Hour)), "expired at the window edge")
	assert.Equal(t, 0, s.Len())
}

func TestRecentSet_RemarkRefreshes(t *testing.T) {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	s := NewRecentSet(time.Hour, 8)

	s.Mark("a", now)
	s.Mark("b", now.Add(10*time.Minute))
	s.Mark("a", now.Add(30*time.Minute))

	later := now.Add(75 * time.Minute)
	assert.True(t, s.Seen("a", later), "refreshed entry survives")
	assert.False(t, s.Seen("b", later))
	assert.Equal(t, 1, s.Len())
}

func TestRecentSet_CapacityEvictsOldest(t *testing.T) {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	s := NewRecentSet(24*time.Hour, 3)

	for i := 0; i < 5; i++ {
		s.Mark(fmt.Sprintf("id-%d", i), now.Add(time.Duration(i)*time.Minute))
	}

	at := now.Add(10 * time.Minute)
	assert.False(t, s.Seen("id-0", at))
	assert.False(t, s.Seen("id-1", at))
	assert.True(t, s.Seen("id-2", at))
	assert.True(t, s.Seen("id-4", at))
	assert.Equal(t, 3, s.Len())
}

func TestRecentSet_RemarkWhenFull(t *testing.T) {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	s := NewRecentSet(24*time.Hour, 2)

	s.Mark("a", now)
	s.Mark("b", now)
	s.Mark("a", now.Add(time.Minute))
	s.Mark("c", now.Add(2*time.Minute))

	at := now.Add(3 * time.Minute)
	assert.True(t, s.Seen("a", at))
	assert.True(t, s.Seen("c", at))
	assert.False(t, s.Seen("b", at))
}

func TestRecentSet_RemarkMiddleWhenFullKeepsLiveEntries(t *testing.T) {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	s := NewRecentSet(24*time.Hour, 3)

	s.Mark("a", now)
	s.Mark("b", now.Add(time.Minute))
	s.Mark("c", now.Add(2*time.Minute))
	s.Mark("b", now.Add(3*time.Minute))

	at := now.Add(4 * time.Minute)
	for _, id := range []string{"a", "b", "c"} {
		assert.True(t, s.Seen(id, at), id)
	}
	assert.Equal(t, 3, s.Len())

	// Eviction order follows the latest mark: a, c, b
	s.Mark("d", at)
	assert.False(t, s.Seen("a", at))
	for _, id := range []string{"c", "b", "d"} {
		assert.True(t, s.Seen(id, at), id)
	}

	s.Mark("e", at)
	assert.False(t, s.Seen("c", at))
	assert.True(t, s.Seen("b", at))
}

func TestRecentSet_Defaults(t *testing.T) {
	s := NewRecentSet(0, 0)
	assert.Equal(t, DefaultRecentWindow, s.window)
	assert.Len(t, s.ring, DefaultRecentCapacity)

	s.Mark("", time.Now())
	assert.Equal(t, 0, s.Len())
}
