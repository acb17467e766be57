// internal/humanoid/behavior.go
package humanoid

import (
	"math"
	"math/rand"
	"time"

	"github.com/xkilldash9x/mimic/internal/config"
)

// personaJitter bounds how far a session's means drift from the configured base.
const personaJitter = 0.2

// Profile holds the per-session timing and error distributions. It is sampled
// once when a session is prepared and never changes afterwards.
type Profile struct {
	KeyIntervalMean   time.Duration `json:"keyIntervalMean"`
	KeyIntervalStdDev time.Duration `json:"keyIntervalStdDev"`
	KeyIntervalFloor  time.Duration `json:"keyIntervalFloor"`
	PointerStepMean   time.Duration `json:"pointerStepMean"`
	PointerStepStdDev time.Duration `json:"pointerStepStdDev"`
	PointerStepFloor  time.Duration `json:"pointerStepFloor"`
	ErrorRate         float64       `json:"errorRate"`
	PerlinAmplitude   float64       `json:"perlinAmplitude"`
}

// NewProfile samples a Profile from the configured base parameters. Means are
// jittered by up to 20% so that sessions do not share an identical rhythm, and
// the error rate is drawn uniformly from [ErrorRateMin, ErrorRateMax].
func NewProfile(rng *rand.Rand, cfg config.BehaviorConfig) Profile {
	jitter := func(v float64) float64 {
		return v * (1 + (rng.Float64()*2-1)*personaJitter)
	}
	errorRate := cfg.ErrorRateMin
	if span := cfg.ErrorRateMax - cfg.ErrorRateMin; span > 0 {
		errorRate += rng.Float64() * span
	}

	return Profile{
		KeyIntervalMean:   millis(jitter(cfg.KeyIntervalMeanMs)),
		KeyIntervalStdDev: millis(cfg.KeyIntervalStdDevMs),
		KeyIntervalFloor:  millis(cfg.KeyIntervalFloorMs),
		PointerStepMean:   millis(jitter(cfg.PointerStepMeanMs)),
		PointerStepStdDev: millis(cfg.PointerStepStdDevMs),
		PointerStepFloor:  millis(cfg.PointerStepFloorMs),
		ErrorRate:         errorRate,
		PerlinAmplitude:   cfg.PerlinAmplitude,
	}
}

// KeyDelay samples the pause after a correct keystroke.
func (p Profile) KeyDelay(rng *rand.Rand) time.Duration {
	return gaussianDelay(rng, p.KeyIntervalMean, p.KeyIntervalStdDev, p.KeyIntervalFloor)
}

// StepDelay samples the pause between two pointer waypoints.
func (p Profile) StepDelay(rng *rand.Rand) time.Duration {
	return gaussianDelay(rng, p.PointerStepMean, p.PointerStepStdDev, p.PointerStepFloor)
}

// gaussianDelay returns max(floor, N(mean, stddev)).
func gaussianDelay(rng *rand.Rand, mean, stddev, floor time.Duration) time.Duration {
	d := time.Duration(float64(mean) + rng.NormFloat64()*float64(stddev))
	if d < floor {
		return floor
	}
	return d
}

// uniformDuration returns a duration drawn uniformly from [lo, hi].
func uniformDuration(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rng.Int63n(int64(hi-lo)+1))
}

func millis(ms float64) time.Duration {
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}
