package leak

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when a config update carries a
// non-positive threshold, window, cooldown or sample count. Updates
// that fail validation leave the previous config untouched.
var ErrInvalidConfig = errors.New("invalid detector config")

// Config governs every threshold decision the detector makes. It is
// read on each detection attempt and may be updated at runtime.
type Config struct {
	LeakThresholdMB     float64 `json:"leak_threshold_mb" mapstructure:"leak_threshold_mb"`
	TimeWindowSec       int     `json:"time_window_sec" mapstructure:"time_window_sec"`
	GrowthRateThreshold float64 `json:"growth_rate_threshold" mapstructure:"growth_rate_threshold"`
	AlertCooldownSec    int     `json:"alert_cooldown_sec" mapstructure:"alert_cooldown_sec"`
	MinSamples          int     `json:"min_samples" mapstructure:"min_samples"`
}

// DefaultConfig returns the thresholds the monitor starts with: alert
// on 10 MB of growth at 1 MB/min or faster over a 5 minute window, with
// at least 10 samples of evidence and a 5 minute cooldown between alerts.
func DefaultConfig() Config {
	return Config{
		LeakThresholdMB:     10,
		TimeWindowSec:       300,
		GrowthRateThreshold: 1.0,
		AlertCooldownSec:    300,
		MinSamples:          10,
	}
}

// Validate checks that every field is positive.
func (c Config) Validate() error {
	switch {
	case c.LeakThresholdMB <= 0:
		return fmt.Errorf("%w: leak_threshold_mb must be positive, got %v", ErrInvalidConfig, c.LeakThresholdMB)
	case c.TimeWindowSec <= 0:
		return fmt.Errorf("%w: time_window_sec must be positive, got %v", ErrInvalidConfig, c.TimeWindowSec)
	case c.GrowthRateThreshold <= 0:
		return fmt.Errorf("%w: growth_rate_threshold must be positive, got %v", ErrInvalidConfig, c.GrowthRateThreshold)
	case c.AlertCooldownSec <= 0:
		return fmt.Errorf("%w: alert_cooldown_sec must be positive, got %v", ErrInvalidConfig, c.AlertCooldownSec)
	case c.MinSamples <= 0:
		return fmt.Errorf("%w: min_samples must be positive, got %v", ErrInvalidConfig, c.MinSamples)
	}
	return nil
}

// ConfigUpdate is a partial config. Nil fields leave the current value
// unchanged.
type ConfigUpdate struct {
	LeakThresholdMB     *float64 `json:"leak_threshold_mb,omitempty"`
	TimeWindowSec       *int     `json:"time_window_sec,omitempty"`
	GrowthRateThreshold *float64 `json:"growth_rate_threshold,omitempty"`
	AlertCooldownSec    *int     `json:"alert_cooldown_sec,omitempty"`
	MinSamples          *int     `json:"min_samples,omitempty"`
}

// Merge applies the update on top of c and validates the result. On
// validation failure the original config is returned unchanged.
func (c Config) Merge(u ConfigUpdate) (Config, error) {
	next := c
	if u.LeakThresholdMB != nil {
		next.LeakThresholdMB = *u.LeakThresholdMB
	}
	if u.TimeWindowSec != nil {
		next.TimeWindowSec = *u.TimeWindowSec
	}
	if u.GrowthRateThreshold != nil {
		next.GrowthRateThreshold = *u.GrowthRateThreshold
	}
	if u.AlertCooldownSec != nil {
		next.AlertCooldownSec = *u.AlertCooldownSec
	}
	if u.MinSamples != nil {
		next.MinSamples = *u.MinSamples
	}
	if err := next.Validate(); err != nil {
		return c, err
	}
	return next, nil
}
