package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// defaultArrivalOffsetThresholdSeconds is applied when the field is left
// unset, per spec.md §6's documented default.
const defaultArrivalOffsetThresholdSeconds = 2.0e-6

// minEnabledArrivalOffsetThresholdSeconds is the smallest value the field
// may take once enabled (spec.md §7: "arrivalOffsetThreshold ≥ 2.0e-6 when
// enabled"); negative values disable the check instead of violating it.
const minEnabledArrivalOffsetThresholdSeconds = 2.0e-6

const defaultSinkBufferSize = 64

// Validate checks cfg for internal consistency and fills in defaults,
// mirroring References/orion-prototipe/internal/config/validator.go's
// required-field-then-default-fill structure.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.Waveform.GapToleranceSeconds < 0 {
		return fmt.Errorf("waveform.gap_tolerance_s must be >= 0")
	}

	if err := validateDetector(&cfg.Detector); err != nil {
		return fmt.Errorf("detector: %w", err)
	}

	if cfg.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}

	if cfg.Sink.BufferSize <= 0 {
		cfg.Sink.BufferSize = defaultSinkBufferSize
	}

	return nil
}

func validateDetector(d *DetectorConfig) error {
	if d.ResultThreshold < -1 || d.ResultThreshold > 1 {
		return fmt.Errorf("result_threshold %v out of range [-1, 1]", d.ResultThreshold)
	}
	if d.OnHoldSeconds < 0 {
		return fmt.Errorf("on_hold_s must be >= 0")
	}
	if d.MinArrivals != nil && *d.MinArrivals < 1 {
		return fmt.Errorf("min_arrivals must be >= 1 when set, got %d", *d.MinArrivals)
	}

	if d.ArrivalOffsetThresholdSeconds == nil {
		def := defaultArrivalOffsetThresholdSeconds
		d.ArrivalOffsetThresholdSeconds = &def
		return nil
	}
	v := *d.ArrivalOffsetThresholdSeconds
	if v >= 0 && v < minEnabledArrivalOffsetThresholdSeconds {
		return fmt.Errorf("arrival_offset_threshold_s must be >= %v when enabled, or negative to disable, got %v",
			minEnabledArrivalOffsetThresholdSeconds, v)
	}
	return nil
}
