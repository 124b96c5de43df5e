// Package config loads and validates the YAML configuration a
// cmd/scdetectd daemon is started from, mirroring the Load/Validate split
// in References/orion-prototipe/internal/config: Load reads and parses
// the file, Validate checks internal consistency and fills in defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tremorstack/seisdetect/internal/linker"
	"github.com/tremorstack/seisdetect/internal/waveform"
)

// Config is the complete detector service configuration.
type Config struct {
	InstanceID string         `yaml:"instance_id"`
	Waveform   WaveformConfig `yaml:"waveform"`
	Detector   DetectorConfig `yaml:"detector"`
	Catalog    CatalogConfig  `yaml:"catalog"`
	Sink       SinkConfig     `yaml:"sink"`
}

// WaveformConfig controls the per-channel gap handling spec.md §4.1
// names as detector-scope configuration.
type WaveformConfig struct {
	GapToleranceSeconds float64 `yaml:"gap_tolerance_s"`
	GapInterpolation    bool    `yaml:"gap_interpolation"`
}

// GapConfig converts the validated YAML fields into the type
// internal/waveform.NewStreamState expects.
func (c WaveformConfig) GapConfig() waveform.GapConfig {
	return waveform.GapConfig{
		Tolerance:   time.Duration(c.GapToleranceSeconds * float64(time.Second)),
		Interpolate: c.GapInterpolation,
	}
}

// DetectorConfig carries the detector-scope linker parameters spec.md §6
// names. ArrivalOffsetThresholdSeconds and MinArrivals are pointers so
// "unset" (apply the 2.0e-6 s default offset threshold; require all
// processors) is distinguishable from an explicit small or zero value. A
// negative ArrivalOffsetThresholdSeconds disables the offset check.
type DetectorConfig struct {
	ArrivalOffsetThresholdSeconds *float64 `yaml:"arrival_offset_threshold_s"`
	ResultThreshold               float64  `yaml:"result_threshold"`
	MinArrivals                   *int     `yaml:"min_arrivals"`
	OnHoldSeconds                 float64  `yaml:"on_hold_s"`
}

// LinkerParams converts the validated YAML fields into linker.Params.
func (c DetectorConfig) LinkerParams() linker.Params {
	params := linker.Params{
		ResultThreshold: c.ResultThreshold,
		MinArrivals:     c.MinArrivals,
		OnHold:          time.Duration(c.OnHoldSeconds * float64(time.Second)),
	}
	if c.ArrivalOffsetThresholdSeconds != nil && *c.ArrivalOffsetThresholdSeconds >= 0 {
		d := time.Duration(*c.ArrivalOffsetThresholdSeconds * float64(time.Second))
		params.ArrivalOffsetThreshold = &d
	}
	return params
}

// CatalogConfig names the template catalog file the detector builds from.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// SinkConfig controls the buffered result channel's capacity.
type SinkConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// Load reads path, parses it as YAML and validates the result, filling in
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return &cfg, nil
}
