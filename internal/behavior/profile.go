// internal/behavior/profile.go
package behavior

import (
	"math"
	"math/rand"

	"github.com/xkilldash9x/prospect-cli/internal/config"
)

// SessionProfile holds the fixed tendencies of one simulated operator. Two
// sessions built from identical configuration still differ because each
// samples its own profile once at construction.
type SessionProfile struct {
	KeyDelayMeanMs   float64
	KeyDelayStdDevMs float64
	KeyDelayMinMs    float64
	TypoRate         float64
	WordsPerMinute   float64
	ScrollStepMeanPx float64
	RegressionRate   float64
}

// sampleProfile draws per-session values around the configured means. Rates
// above 1.0 mean "always" and pass through unsampled so tests can force rare
// branches.
func sampleProfile(cfg config.BehaviorConfig, rng *rand.Rand) SessionProfile {
	jitter := cfg.ProfileJitter

	p := SessionProfile{
		KeyDelayMeanMs:   sampleAround(rng, cfg.KeyDelayMeanMs, jitter),
		KeyDelayStdDevMs: cfg.KeyDelayStdDevMs,
		KeyDelayMinMs:    cfg.KeyDelayMinMs,
		TypoRate:         cfg.TypoRate,
		WordsPerMinute:   sampleAround(rng, cfg.WordsPerMinute, jitter),
		ScrollStepMeanPx: sampleAround(rng, cfg.ScrollStepMeanPx, jitter),
		RegressionRate:   cfg.RegressionRate,
	}

	if cfg.TypoRate <= 1.0 {
		p.TypoRate = clamp(sampleAround(rng, cfg.TypoRate, jitter), 0.0, 1.0)
	}
	if cfg.RegressionRate <= 1.0 {
		p.RegressionRate = clamp(sampleAround(rng, cfg.RegressionRate, jitter), 0.0, 1.0)
	}

	// Hard floors so a badly drawn profile stays physically plausible.
	p.KeyDelayMeanMs = math.Max(p.KeyDelayMinMs, p.KeyDelayMeanMs)
	p.WordsPerMinute = math.Max(60.0, p.WordsPerMinute)
	p.ScrollStepMeanPx = math.Max(120.0, p.ScrollStepMeanPx)

	return p
}

// sampleAround draws a Gaussian value around mean with a relative standard
// deviation, clamped to two deviations so one sample cannot define an
// implausible operator. A nil rng returns the mean.
func sampleAround(rng *rand.Rand, mean, relStdDev float64) float64 {
	if rng == nil || relStdDev <= 0 {
		return mean
	}
	v := mean + rng.NormFloat64()*relStdDev*math.Abs(mean)
	lo := mean - 2*relStdDev*math.Abs(mean)
	hi := mean + 2*relStdDev*math.Abs(mean)
	return clamp(v, lo, hi)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
