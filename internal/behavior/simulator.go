// internal/behavior/simulator.go
package behavior

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"github.com/xkilldash9x/prospect-cli/internal/config"
	"go.uber.org/zap"
)

// Simulator produces human-paced timing plans for the browser driver. It is
// stateful: a fixed per-session profile is sampled at construction and a
// fatigue level accumulates as the session performs work, so identical calls
// later in a session come out slower than early ones.
type Simulator struct {
	// mu protects all mutable state below. Any method that reads or writes
	// simulator state (rng, fatigue, noiseTime) must acquire this lock.
	mu        sync.Mutex
	cfg       config.BehaviorConfig
	profile   SessionProfile
	logger    *zap.Logger
	fatigue   float64
	rng       *rand.Rand
	noise     *perlin.Perlin
	pauses    *PinkNoiseGenerator
	noiseTime float64

	// sleepFn is swapped out by tests to observe requested durations.
	sleepFn func(context.Context, time.Duration) error
}

// New creates a Simulator whose profile is sampled from the configured
// population parameters using an entropy-seeded source.
func New(cfg config.BehaviorConfig, logger *zap.Logger) *Simulator {
	return newSimulator(cfg, logger, time.Now().UnixNano())
}

/// NewSeeded creates a fully deterministic Simulator for tests: the same seed
// yields the same profile, the same plans, and the same noise track.
func NewSeeded(cfg config.BehaviorConfig, logger *zap.Logger, seed int64) *Simulator {
	return newSimulator(cfg, logger, seed)
}

func newSimulator(cfg config.BehaviorConfig, logger *zap.Logger, seed int64) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	rng := rand.New(rand.NewSource(seed))

	s := &Simulator{
		cfg:     cfg,
		logger:  logger,
		rng:     rng,
		profile: sampleProfile(cfg, rng),
		// Standard Perlin noise parameters.
		noise:   perlin.NewPerlin(2.0, 2.0, 3, seed),
		pauses:  NewPinkNoiseGenerator(rng, 12),
		sleepFn: sleep,
	}

	s.logger.Debug("Behavior profile sampled",
		zap.Float64("key_delay_mean_ms", s.profile.KeyDelayMeanMs),
		zap.Float64("typo_rate", s.profile.TypoRate),
		zap.Float64("words_per_minute", s.profile.WordsPerMinute),
	)
	return s
}

// Profile returns the fixed per-session tendencies.
func (s *Simulator) Profile() SessionProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Fatigue reports the current fatigue level in [0,1].
func (s *Simulator) Fatigue() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatigue
}

// RecordAction raises fatigue after a completed unit of work.
func (s *Simulator) RecordAction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fatigue = math.Min(1.0, s.fatigue+s.cfg.FatigueGrowth)
}

// Chance draws once against the session RNG and reports true with
// probability p. Rates at or above 1.0 always hit, which tests use to force
// the branch.
func (s *Simulator) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < p
}

// Delay sleeps for a uniformly random duration within [min, max]. Fatigue
// skews the draw toward the upper end of the band but never outside it, and
// idle time spent here recovers a little fatigue. The wait aborts promptly
// when ctx is cancelled.
func (s *Simulator) Delay(ctx context.Context, min, max time.Duration) error {
	if max < min {
		min, max = max, min
	}

	s.mu.Lock()
	span := float64(max - min)
	lo := float64(min) + span*s.fatigue*0.3
	d := time.Duration(lo + s.rng.Float64()*(float64(max)-lo))
	sleepFn := s.sleepFn
	s.mu.Unlock()

	if err := sleepFn(ctx, d); err != nil {
		return err
	}
	s.recover(d)
	return nil
}

// ReadingTime estimates how long a person would spend on the given text:
// word count over the profile's reading speed, scattered by the configured
// jitter and stretched by fatigue. Callers cap the result themselves.
func (s *Simulator) ReadingTime(text string) time.Duration {
	words := countWords(text)
	if words == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	baseMs := float64(words) / s.profile.WordsPerMinute * 60000.0
	// Multiplier lands in [1-jitter, 1+jitter].
	mult := 1.0 + (s.rng.Float64()*2.0-1.0)*s.cfg.ReadingJitter
	baseMs *= mult * s.slowdownLocked()

	return time.Duration(baseMs) * time.Millisecond
}

// slowdownLocked returns the pacing stretch for the current fatigue level,
// 1.0 when rested up to SlowdownAtFullFatigue when exhausted. Callers must
// hold mu.
func (s *Simulator) slowdownLocked() float64 {
	return 1.0 + s.fatigue*(s.cfg.SlowdownAtFullFatigue-1.0)
}

// recover lowers fatigue in proportion to idle time.
func (s *Simulator) recover(idle time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fatigue = math.Max(0.0, s.fatigue-0.01*idle.Seconds())
}

// sleep waits for d or until the context is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func countWords(text string) int {
	words := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			inWord = false
			continue
		}
		if !inWord {
			words++
			inWord = true
		}
	}
	return words
}
