package discovery

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/steward/internal/types"
)

func TestProbabilities(t *testing.T) {
	p := DefaultDiscoveryProbabilities()
	assert.Equal(t, 0.05, p.For(types.LevelNormal))
	assert.Equal(t, 0.02, p.For(types.LevelWarning))
	assert.Zero(t, p.For(types.LevelReduce))
	assert.Zero(t, p.For(types.LevelPause))

	assert.NoError(t, p.Validate())
	assert.Error(t, Probabilities{Normal: 1.5}.Validate())
	assert.Error(t, Probabilities{Warning: -0.1}.Validate())
}

func TestRandomGate_Deterministic(t *testing.T) {
	probs := Probabilities{Normal: 0.5, Warning: 0.25}

	run := func() []bool {
		g := NewRandomGate(probs, rand.New(rand.NewPCG(7, 11)))
		out := make([]bool, 50)
		for i := range out {
			out[i] = g.Allow(types.LevelNormal)
		}
		return out
	}

	assert.Equal(t, run(), run(), "same seed gives same decisions")
}

func TestRandomGate_Frequency(t *testing.T) {
	g := NewRandomGate(DefaultDiscoveryProbabilities(), rand.New(rand.NewPCG(1, 2)))

	allowed := 0
	const cycles = 20000
	for i := 0; i < cycles; i++ {
		if g.Allow(types.LevelNormal) {
			allowed++
		}
	}
	assert.InDelta(t, 0.05, float64(allowed)/cycles, 0.01)
}

func TestRandomGate_NeverAtReduceOrPause(t *testing.T) {
	g := NewRandomGate(Probabilities{Normal: 1, Warning: 1}, rand.New(rand.NewPCG(3, 4)))
	for i := 0; i < 100; i++ {
		assert.False(t, g.Allow(types.LevelReduce))
		assert.False(t, g.Allow(types.LevelPause))
	}
	assert.True(t, g.Allow(types.LevelNormal))
}

func TestRateGate_LongRunFrequency(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	g, err := NewRateGate(Probabilities{Normal: 0.25, Warning: 0.125}, time.Second, clock)
	require.NoError(t, err)

	normal := 0
	for i := 0; i < 100; i++ {
		if g.Allow(types.LevelNormal) {
			normal++
		}
		now = now.Add(time.Second)
	}
	// one token every 4 cycles, plus the initial burst token
	assert.InDelta(t, 25, normal, 1)

	warning := 0
	for i := 0; i < 160; i++ {
		if g.Allow(types.LevelWarning) {
			warning++
		}
		now = now.Add(time.Second)
	}
	assert.InDelta(t, 20, warning, 1)
}

func TestRateGate_NoBurstAcrossCycles(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g, err := NewRateGate(Probabilities{Normal: 0.5}, time.Second, func() time.Time { return now })
	require.NoError(t, err)

	assert.True(t, g.Allow(types.LevelNormal))
	assert.False(t, g.Allow(types.LevelNormal), "same instant has no second token")

	now = now.Add(time.Hour)
	assert.True(t, g.Allow(types.LevelNormal))
	assert.False(t, g.Allow(types.LevelNormal), "idle time never banks more than one token")
}

func TestRateGate_DisabledLevels(t *testing.T) {
	g, err := NewRateGate(Probabilities{Normal: 0.5}, time.Second, nil)
	require.NoError(t, err)

	assert.False(t, g.Allow(types.LevelWarning), "zero probability never allows")
	assert.False(t, g.Allow(types.LevelReduce))
	assert.False(t, g.Allow(types.LevelPause))
}

func TestNewRateGate_Validation(t *testing.T) {
	_, err := NewRateGate(DefaultDiscoveryProbabilities(), 0, nil)
	assert.Error(t, err)

	_, err = NewRateGate(Probabilities{Normal: 2}, time.Second, nil)
	assert.Error(t, err)
}
