// Package waveform also defines the WaveformProvider external collaborator
// contract (spec.md §6) and its processing pipeline, plus a caching
// decorator grounded on the original scdetect implementation's
// Cached/FileSystemCache/InMemoryCache trio.
package waveform

import (
	"context"
	"fmt"
	"time"

	"github.com/tremorstack/seisdetect/internal/errkind"
	"github.com/tremorstack/seisdetect/internal/fingerprint"
	"github.com/tremorstack/seisdetect/internal/sample"
	"github.com/tremorstack/seisdetect/internal/streamid"
	"gonum.org/v1/gonum/floats"
)

// ProcessingConfig controls how a raw trace is prepared before it is
// handed to a template processor: demean, resample, filter, trim, in that
// fixed order (original scdetect's WaveformHandlerIface::Process order).
type ProcessingConfig struct {
	FilterString        string
	FilterMarginSeconds float64
	TargetFrequency     float64
	Demean              bool
}

// Key returns a deterministic fingerprint of the config, used by
// CachedProvider to key its cache.
func (c ProcessingConfig) Key() string {
	return fingerprint.ProcessingConfigKey(c.FilterString, c.FilterMarginSeconds, c.TargetFrequency, c.Demean)
}

// Trace is a prepared waveform ready for correlation.
type Trace struct {
	StreamID streamid.ID
	Frame    sample.Frame
}

// Provider is the external collaborator that retrieves, caches, filters,
// resamples, demeans and trims waveform data for a requested window.
// Implementations must be safe for concurrent reads (spec.md §5).
type Provider interface {
	Get(ctx context.Context, id streamid.ID, tw sample.Window, cfg ProcessingConfig) (*Trace, error)
}

// Filterer applies a named filter string to a slice of samples at a given
// sampling frequency. It is injected so the pipeline does not hard-code a
// particular DSP backend; the built-in Prepare pipeline accepts nil to
// skip filtering entirely (used in unit tests where FilterString is empty).
type Filterer interface {
	Apply(values []float64, filterString string, frequency float64) error
}

// Resampler changes a trace's sampling rate. Like Filterer, it is injected
// so Prepare stays backend-agnostic.
type Resampler interface {
	Resample(f sample.Frame, targetFrequency float64) (sample.Frame, error)
}

// Prepare runs the fixed demean -> resample -> filter -> trim pipeline
// against frame, per the original scdetect WaveformHandlerIface::Process
// order (the distilled spec only lists the four operations; the order is
// recovered from original_source).
func Prepare(frame sample.Frame, cfg ProcessingConfig, resampler Resampler, filterer Filterer, trim *sample.Window) (sample.Frame, error) {
	out := frame
	out.Values = append([]float64(nil), frame.Values...)

	if cfg.Demean {
		Demean(out.Values)
	}

	if cfg.TargetFrequency > 0 && cfg.TargetFrequency != out.Frequency {
		if resampler == nil {
			return sample.Frame{}, errkind.New(errkind.ProcessingFailure, "waveform: resample requested but no resampler configured")
		}
		resampled, err := resampler.Resample(out, cfg.TargetFrequency)
		if err != nil {
			return sample.Frame{}, errkind.Wrap(errkind.ProcessingFailure, fmt.Errorf("resample: %w", err))
		}
		out = resampled
	}

	if cfg.FilterString != "" {
		if filterer == nil {
			return sample.Frame{}, errkind.New(errkind.ProcessingFailure, "waveform: filter requested but no filterer configured")
		}
		if err := filterer.Apply(out.Values, cfg.FilterString, out.Frequency); err != nil {
			return sample.Frame{}, errkind.Wrap(errkind.ProcessingFailure, fmt.Errorf("filter %q: %w", cfg.FilterString, err))
		}
	}

	if trim != nil {
		trimmed, ok := Trim(out, *trim)
		if !ok {
			return sample.Frame{}, errkind.New(errkind.ProcessingFailure,
				fmt.Sprintf("waveform: not enough data to trim to window [%v, %v]", trim.Start, trim.End))
		}
		out = trimmed
	}

	return out, nil
}

// Demean subtracts the arithmetic mean from values in place.
func Demean(values []float64) {
	if len(values) == 0 {
		return
	}
	mean := floats.Sum(values) / float64(len(values))
	for i := range values {
		values[i] -= mean
	}
}

// Trim slices frame down to exactly the samples covering tw. It returns
// ok=false if frame does not have enough data at either end, mirroring
// waveform::Trim in the original scdetect implementation.
func Trim(frame sample.Frame, tw sample.Window) (sample.Frame, bool) {
	offset := int(frame.Frequency * tw.Start.Sub(frame.Start).Seconds())
	count := int(tw.Length().Seconds() * frame.Frequency)

	if offset < 0 {
		return sample.Frame{}, false
	}
	if offset+count > len(frame.Values) {
		return sample.Frame{}, false
	}

	return sample.Frame{
		Start:     frame.Start.Add(frame.Period() * time.Duration(offset)),
		Frequency: frame.Frequency,
		Values:    append([]float64(nil), frame.Values[offset:offset+count]...),
	}, true
}
