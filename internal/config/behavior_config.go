// File: internal/config/behavior_config.go
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// BehaviorConfig holds the population-level parameters for the timing
// simulator. A session samples its own fixed profile around these values, so
// two sessions with identical config still pace differently.
//
// Rates are probabilities in [0,1]. Values above 1.0 are accepted and treated
// as "always", which the simulator tests rely on to force rare branches.
type BehaviorConfig struct {
	// Typing cadence.
	KeyDelayMeanMs    float64 `mapstructure:"key_delay_mean_ms" yaml:"key_delay_mean_ms"`
	KeyDelayStdDevMs  float64 `mapstructure:"key_delay_std_dev_ms" yaml:"key_delay_std_dev_ms"`
	KeyDelayMinMs     float64 `mapstructure:"key_delay_min_ms" yaml:"key_delay_min_ms"`
	UppercaseFactor   float64 `mapstructure:"uppercase_factor" yaml:"uppercase_factor"`
	PunctuationFactor float64 `mapstructure:"punctuation_factor" yaml:"punctuation_factor"`
	DigramFactor      float64 `mapstructure:"digram_factor" yaml:"digram_factor"`
	TrigramFactor     float64 `mapstructure:"trigram_factor" yaml:"trigram_factor"`

	// Typo injection.
	TypoRate         float64 `mapstructure:"typo_rate" yaml:"typo_rate"`
	TypoNoticeMinMs  float64 `mapstructure:"typo_notice_min_ms" yaml:"typo_notice_min_ms"`
	TypoNoticeMaxMs  float64 `mapstructure:"typo_notice_max_ms" yaml:"typo_notice_max_ms"`
	TypoCorrectMinMs float64 `mapstructure:"typo_correct_min_ms" yaml:"typo_correct_min_ms"`
	TypoCorrectMaxMs float64 `mapstructure:"typo_correct_max_ms" yaml:"typo_correct_max_ms"`

	// Reading pace.
	WordsPerMinute float64 `mapstructure:"words_per_minute" yaml:"words_per_minute"`
	ReadingJitter  float64 `mapstructure:"reading_jitter" yaml:"reading_jitter"`

	// Scrolling.
	ScrollStepMeanPx   float64 `mapstructure:"scroll_step_mean_px" yaml:"scroll_step_mean_px"`
	ScrollStepStdDevPx float64 `mapstructure:"scroll_step_std_dev_px" yaml:"scroll_step_std_dev_px"`
	RegressionRate     float64 `mapstructure:"regression_rate" yaml:"regression_rate"`
	ScrollPauseMinMs   float64 `mapstructure:"scroll_pause_min_ms" yaml:"scroll_pause_min_ms"`
	ScrollPauseMaxMs   float64 `mapstructure:"scroll_pause_max_ms" yaml:"scroll_pause_max_ms"`

	// Fatigue accumulates per completed action and stretches subsequent
	// delays by up to SlowdownAtFullFatigue.
	FatigueGrowth         float64 `mapstructure:"fatigue_growth" yaml:"fatigue_growth"`
	SlowdownAtFullFatigue float64 `mapstructure:"slowdown_at_full_fatigue" yaml:"slowdown_at_full_fatigue"`

	// ProfileJitter controls how far a session profile may drift from the
	// configured means (relative standard deviation).
	ProfileJitter float64 `mapstructure:"profile_jitter" yaml:"profile_jitter"`
}

func setBehaviorDefaults(v *viper.Viper) {
	v.SetDefault("behavior.key_delay_mean_ms", 70.0)
	v.SetDefault("behavior.key_delay_std_dev_ms", 28.0)
	v.SetDefault("behavior.key_delay_min_ms", 35.0)
	v.SetDefault("behavior.uppercase_factor", 1.5)
	v.SetDefault("behavior.punctuation_factor", 1.6)
	v.SetDefault("behavior.digram_factor", 0.7)
	v.SetDefault("behavior.trigram_factor", 0.55)

	v.SetDefault("behavior.typo_rate", 0.05)
	v.SetDefault("behavior.typo_notice_min_ms", 150.0)
	v.SetDefault("behavior.typo_notice_max_ms", 450.0)
	v.SetDefault("behavior.typo_correct_min_ms", 120.0)
	v.SetDefault("behavior.typo_correct_max_ms", 350.0)

	v.SetDefault("behavior.words_per_minute", 230.0)
	v.SetDefault("behavior.reading_jitter", 0.5)

	v.SetDefault("behavior.scroll_step_mean_px", 640.0)
	v.SetDefault("behavior.scroll_step_std_dev_px", 160.0)
	v.SetDefault("behavior.regression_rate", 0.12)
	v.SetDefault("behavior.scroll_pause_min_ms", 280.0)
	v.SetDefault("behavior.scroll_pause_max_ms", 900.0)

	v.SetDefault("behavior.fatigue_growth", 0.04)
	v.SetDefault("behavior.slowdown_at_full_fatigue", 1.35)

	v.SetDefault("behavior.profile_jitter", 0.15)
}

// Validate rejects parameter combinations the simulator cannot work with.
func (b BehaviorConfig) Validate() error {
	if b.KeyDelayMeanMs <= 0 || b.KeyDelayMinMs <= 0 {
		return fmt.Errorf("key delay mean and minimum must be positive")
	}
	if b.KeyDelayStdDevMs < 0 {
		return fmt.Errorf("key delay standard deviation must not be negative")
	}
	if b.WordsPerMinute <= 0 {
		return fmt.Errorf("words_per_minute must be positive")
	}
	if b.ReadingJitter < 0 || b.ReadingJitter > 1 {
		return fmt.Errorf("reading_jitter must be within [0,1]")
	}
	if b.TypoRate < 0 || b.RegressionRate < 0 {
		return fmt.Errorf("rates must not be negative")
	}
	if b.TypoNoticeMaxMs < b.TypoNoticeMinMs || b.TypoCorrectMaxMs < b.TypoCorrectMinMs {
		return fmt.Errorf("typo pause bands invalid")
	}
	if b.ScrollPauseMaxMs < b.ScrollPauseMinMs {
		return fmt.Errorf("scroll pause band invalid")
	}
	if b.SlowdownAtFullFatigue < 1.0 {
		return fmt.Errorf("slowdown_at_full_fatigue must be at least 1.0")
	}
	return nil
}
