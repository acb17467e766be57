// File: internal/config/behavior_config.go
// This file holds the defaults and validation for BehaviorConfig, the tunable
// distribution parameters behind synthesized typing, pointer motion and the
// pacing inserted before each automated action.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// setBehaviorDefaults centralizes the behavior defaults so SetDefaults stays readable.
func setBehaviorDefaults(v *viper.Viper) {
	v.SetDefault("behavior.key_interval_mean_ms", 150.0)
	v.SetDefault("behavior.key_interval_stddev_ms", 50.0)
	v.SetDefault("behavior.key_interval_floor_ms", 50.0)
	v.SetDefault("behavior.pointer_step_mean_ms", 15.0)
	v.SetDefault("behavior.pointer_step_stddev_ms", 5.0)
	v.SetDefault("behavior.pointer_step_floor_ms", 10.0)
	v.SetDefault("behavior.error_rate_min", 0.01)
	v.SetDefault("behavior.error_rate_max", 0.05)
	v.SetDefault("behavior.perlin_amplitude", 1.5)
	v.SetDefault("behavior.min_action_gap", "1s")
	v.SetDefault("behavior.action_pause_min", "1s")
	v.SetDefault("behavior.action_pause_max", "3s")
	v.SetDefault("behavior.scroll_after_action", true)
}

// Validate checks the BehaviorConfig settings.
func (b *BehaviorConfig) Validate() error {
	if b.KeyIntervalMeanMs <= 0 || b.PointerStepMeanMs <= 0 {
		return fmt.Errorf("key and pointer interval means must be positive")
	}
	if b.KeyIntervalStdDevMs < 0 || b.PointerStepStdDevMs < 0 {
		return fmt.Errorf("standard deviations must not be negative")
	}
	if b.ErrorRateMin < 0 || b.ErrorRateMax > 1 || b.ErrorRateMin > b.ErrorRateMax {
		return fmt.Errorf("error rate bounds must satisfy 0 <= min <= max <= 1")
	}
	if b.ActionPauseMax < b.ActionPauseMin {
		return fmt.Errorf("action_pause_max must not be below action_pause_min")
	}
	return nil
}
