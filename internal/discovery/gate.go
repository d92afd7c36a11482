package discovery

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/steveyegge/steward/internal/types"
)

// Gate decides, once per cycle, whether an optional step runs at the given level
type Gate interface {
	Allow(level types.ThrottleLevel) bool
}

// Probabilities are per-cycle run probabilities. Only NORMAL and WARNING
// carry one; REDUCE and PAUSE never run optional steps.
type Probabilities struct {
	Normal  float64 `json:"normal" yaml:"normal"`
	Warning float64 `json:"warning" yaml:"warning"`
}

// DefaultDiscoveryProbabilities returns 0.05 at NORMAL and 0.02 at WARNING
func DefaultDiscoveryProbabilities() Probabilities {
	return Probabilities{Normal: 0.05, Warning: 0.02}
}

// DefaultCleanupProbabilities returns 0.01 at both levels
func DefaultCleanupProbabilities() Probabilities {
	return Probabilities{Normal: 0.01, Warning: 0.01}
}

// For returns the probability for a level
func (p Probabilities) For(level types.ThrottleLevel) float64 {
	switch level {
	case types.LevelNormal:
		return p.Normal
	case types.LevelWarning:
		return p.Warning
	default:
		return 0
	}
}

// Validate checks that probabilities are within [0, 1]
func (p Probabilities) Validate() error {
	for name, v := range map[string]float64{"normal": p.Normal, "warning": p.Warning} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s probability must be between 0 and 1, got %.3f", name, v)
		}
	}
	return nil
}

// RandomGate flips a coin per cycle with the level's probability.
// The random source is injected so tests can fix it.
type RandomGate struct {
	probs Probabilities

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomGate creates a coin-flip gate. A nil rng uses a time-seeded source.
func NewRandomGate(probs Probabilities, rng *rand.Rand) *RandomGate {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &RandomGate{probs: probs, rng: rng}
}

// Allow reports whether the step runs this cycle
func (g *RandomGate) Allow(level types.ThrottleLevel) bool {
	p := g.probs.For(level)
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64() < p
}

// RateGate is a deterministic token bucket per level. With a poll interval
// of I, a probability p becomes a refill rate of p/I tokens per second with a
// burst of one, which matches the coin flip's long-run frequency.
type RateGate struct {
	clock    func() time.Time
	limiters map[types.ThrottleLevel]*rate.Limiter
}

// NewRateGate creates a token-bucket gate. A nil clock uses time.Now.
func NewRateGate(probs Probabilities, pollInterval time.Duration, clock func() time.Time) (*RateGate, error) {
	if pollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %v", pollInterval)
	}
	if err := probs.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = time.Now
	}

	g := &RateGate{
		clock:    clock,
		limiters: make(map[types.ThrottleLevel]*rate.Limiter),
	}
	for _, level := range []types.ThrottleLevel{types.LevelNormal, types.LevelWarning} {
		p := probs.For(level)
		if p <= 0 {
			continue
		}
		perSecond := p / pollInterval.Seconds()
		g.limiters[level] = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return g, nil
}

// Allow reports whether a token is available for the level right now
func (g *RateGate) Allow(level types.ThrottleLevel) bool {
	lim, ok := g.limiters[level]
	if !ok {
		return false
	}
	return lim.AllowN(g.clock(), 1)
}

// GateFunc adapts a function to the Gate interface
type GateFunc func(level types.ThrottleLevel) bool

// Allow calls f(level)
func (f GateFunc) Allow(level types.ThrottleLevel) bool { return f(level) }
