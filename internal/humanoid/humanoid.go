// internal/humanoid/humanoid.go
package humanoid

import (
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"go.uber.org/zap"
)

// Standard Perlin noise parameters.
const (
	perlinAlpha = 2.0
	perlinBeta  = 2.0
	perlinN     = int32(3)
)

// Humanoid replays synthesized human behavior against an Executor.
type Humanoid struct {
	// mu guards rng, currentPos and the noise generators.
	mu         sync.Mutex
	executor   Executor
	logger     *zap.Logger
	profile    Profile
	rng        *rand.Rand
	noiseX     *perlin.Perlin
	noiseY     *perlin.Perlin
	currentPos Vector2D
}

// New creates a Humanoid bound to executor. A nil rng is replaced with a
// time-seeded source; the Perlin generators are seeded from rng so a seeded
// Humanoid is fully deterministic.
func New(executor Executor, profile Profile, rng *rand.Rand, logger *zap.Logger) *Humanoid {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := rng.Int63()
	return &Humanoid{
		executor: executor,
		logger:   logger.Named("humanoid"),
		profile:  profile,
		rng:      rng,
		noiseX:   perlin.NewPerlin(perlinAlpha, perlinBeta, perlinN, seed),
		noiseY:   perlin.NewPerlin(perlinAlpha, perlinBeta, perlinN, seed+1),
	}
}

// Profile returns the behavior profile driving this Humanoid.
func (h *Humanoid) Profile() Profile {
	return h.profile
}

// Position returns the last pointer position dispatched.
func (h *Humanoid) Position() Vector2D {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentPos
}
