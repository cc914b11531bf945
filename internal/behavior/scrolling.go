// internal/behavior/scrolling.go
package behavior

import (
	"math"
	"time"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
)

// noiseStride is how far the Perlin track advances per scroll step. Small
// enough that consecutive steps stay correlated, the way a hand on a wheel
// drifts rather than jumps.
const noiseStride = 0.37

// ScrollPlan produces a downward scroll schedule of the given number of
// steps. Step sizes follow a Gaussian around the profile mean modulated by a
// continuous Perlin track, pauses between steps carry 1/f jitter, and at
// most one step per plan regresses upward as if re-reading something passed.
func (s *Simulator) ScrollPlan(steps int) []schemas.ScrollStep {
	if steps <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	plan := make([]schemas.ScrollStep, 0, steps)
	regressed := false

	for i := 0; i < steps; i++ {
		delta := s.scrollDeltaLocked()

		// A regression scrolls back a fraction of the previous step, once
		// per plan and never on the first step.
		if !regressed && i > 0 && s.rng.Float64() < s.profile.RegressionRate {
			prev := float64(plan[i-1].DeltaY)
			delta = -int(math.Max(40.0, prev*(0.2+s.rng.Float64()*0.3)))
			regressed = true
		}

		plan = append(plan, schemas.ScrollStep{
			DeltaY: delta,
			Pause:  s.scrollPauseLocked(),
		})
	}
	return plan
}

// scrollDeltaLocked draws one downward step. Callers must hold mu.
func (s *Simulator) scrollDeltaLocked() int {
	mean := s.profile.ScrollStepMeanPx
	base := s.rng.NormFloat64()*s.cfg.ScrollStepStdDevPx + mean

	// Perlin noise in roughly [-1,1] sways the step by up to a quarter.
	s.noiseTime += noiseStride
	sway := s.noise.Noise1D(s.noiseTime)
	base *= 1.0 + 0.25*sway

	base = clamp(base, 60.0, mean*1.8)
	return int(base)
}

// scrollPauseLocked draws the pause after a step: uniform within the
// configured band, nudged by pink noise and stretched by fatigue. Callers
// must hold mu.
func (s *Simulator) scrollPauseLocked() time.Duration {
	lo := s.cfg.ScrollPauseMinMs
	hi := s.cfg.ScrollPauseMaxMs
	if hi < lo {
		lo, hi = hi, lo
	}

	ms := lo + s.rng.Float64()*(hi-lo)
	ms *= 1.0 + 0.15*s.pauses.Next()
	ms *= s.slowdownLocked()

	return time.Duration(clamp(ms, lo*0.5, hi*s.cfg.SlowdownAtFullFatigue)) * time.Millisecond
}
