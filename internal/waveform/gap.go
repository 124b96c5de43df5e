package waveform

import (
	"log/slog"
	"math"
	"time"

	"github.com/tremorstack/seisdetect/internal/sample"
	"gonum.org/v1/gonum/floats"
)

// GapConfig controls gap tolerance and interpolation for a single channel's
// StreamState, per spec.md §4.1.
type GapConfig struct {
	// Tolerance is the largest gap that will be bridged rather than reset.
	Tolerance time.Duration
	// Interpolate enables linear interpolation of the missing samples when
	// the gap is within Tolerance.
	Interpolate bool
}

// Outcome describes how StreamState.Feed classified an incoming frame.
type Outcome int

const (
	// OutcomeInit means this was the channel's first frame.
	OutcomeInit Outcome = iota
	// OutcomeContiguous means the frame picked up exactly where the last
	// one ended (within half a sample period).
	OutcomeContiguous
	// OutcomeInterpolated means a gap within tolerance was bridged; the
	// missing samples are synthesized only when GapConfig.Interpolate is
	// set.
	OutcomeInterpolated
	// OutcomeReset means the gap (or a frequency change) exceeded
	// tolerance and the channel's state was discarded.
	OutcomeReset
	// OutcomeDropped means the frame was malformed and ignored outright.
	OutcomeDropped
)

// StreamState is the per-channel gap-tolerant ring buffer described in
// spec.md §4.1. A Detector owns one per channel, in front of every
// processor subscribed to that channel, and it must never be shared across
// goroutines.
type StreamState struct {
	config GapConfig
	logger *slog.Logger
	label  string

	initialized bool
	lastEnd     time.Time
	frequency   float64
	// lastValue is the most recently ingested real (non-interpolated)
	// sample, used as the left endpoint when bridging the next gap.
	lastValue float64

	// pending accumulates samples (real and interpolated) produced by the
	// most recent Feed call, for the caller to push through its filter
	// chain. It is reset on every call.
	pending      []float64
	pendingStart time.Time
}

// NewStreamState builds a StreamState for a single channel, identified by
// label purely for log context.
func NewStreamState(config GapConfig, logger *slog.Logger, label string) *StreamState {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamState{config: config, logger: logger, label: label}
}

// Reset discards all buffered state, as if no frame had ever been fed.
func (s *StreamState) Reset() {
	s.initialized = false
	s.lastEnd = time.Time{}
	s.frequency = 0
	s.lastValue = 0
	s.pending = nil
	s.pendingStart = time.Time{}
}

// Feed classifies and ingests one incoming frame. Pending() returns the
// samples (contiguous real samples, optionally preceded by interpolated
// fill) that the caller should push into its correlation window as a
// result of this call.
func (s *StreamState) Feed(f sample.Frame) Outcome {
	s.pending = nil

	if f.Frequency <= 0 || len(f.Values) == 0 {
		s.logger.Warn("waveform: dropping malformed record", "stream", s.label)
		return OutcomeDropped
	}

	if !s.initialized {
		s.initialized = true
		s.frequency = f.Frequency
		s.lastEnd = f.End()
		s.lastValue = f.Values[len(f.Values)-1]
		s.pendingStart = f.Start
		s.pending = append(s.pending, f.Values...)
		return OutcomeInit
	}

	if f.Frequency != s.frequency {
		s.logger.Warn("waveform: sampling frequency changed, resetting stream state",
			"stream", s.label, "old_hz", s.frequency, "new_hz", f.Frequency)
		s.frequency = f.Frequency
		s.lastEnd = f.End()
		s.lastValue = f.Values[len(f.Values)-1]
		s.pendingStart = f.Start
		s.pending = append(s.pending, f.Values...)
		return OutcomeReset
	}

	period := time.Duration(float64(time.Second) / s.frequency)
	gap := f.Start.Sub(s.lastEnd)

	switch {
	case gap <= period/2:
		s.pendingStart = s.lastEnd
		s.lastEnd = f.End()
		s.lastValue = f.Values[len(f.Values)-1]
		s.pending = append(s.pending, f.Values...)
		return OutcomeContiguous

	case gap <= s.config.Tolerance:
		s.pendingStart = s.lastEnd
		if s.config.Interpolate && len(f.Values) > 0 {
			missing := int(math.Round(gap.Seconds()*s.frequency)) - 1
			if missing > 0 {
				filled := interpolate(s.lastValue, f.Values[0], missing)
				s.pending = append(s.pending, filled...)
			}
		}
		s.lastEnd = f.End()
		s.lastValue = f.Values[len(f.Values)-1]
		s.pending = append(s.pending, f.Values...)
		return OutcomeInterpolated

	default:
		s.logger.Warn("waveform: gap exceeds tolerance, resetting stream state",
			"stream", s.label, "gap", gap, "tolerance", s.config.Tolerance)
		s.lastEnd = f.End()
		s.lastValue = f.Values[len(f.Values)-1]
		s.pendingStart = f.Start
		s.pending = append(s.pending, f.Values...)
		return OutcomeReset
	}
}

// Pending returns the samples produced by the most recent Feed call.
func (s *StreamState) Pending() []float64 { return s.pending }

// PendingStart returns the start time of the samples Pending returns:
// f.Start itself after Init/Reset, or the gap's left edge (the prior
// lastEnd) when Pending is prefixed with bridged or contiguous real
// samples, so the caller can reassemble a well-formed sample.Frame.
func (s *StreamState) PendingStart() time.Time { return s.pendingStart }

// Frequency returns the channel's current sampling frequency, valid once
// Initialized reports true.
func (s *StreamState) Frequency() float64 { return s.frequency }

// Initialized reports whether the channel has received at least one frame
// since construction or the last Reset.
func (s *StreamState) Initialized() bool { return s.initialized }

// interpolate synthesizes `missing` samples linearly spaced between left
// and right (exclusive of both endpoints), per spec.md §4.1's formula:
// output count == round(gap*freq) == missing+1 samples are produced in
// total by the gap (missing interpolated plus the one real sample that
// follows), so callers must pass missing = round(gap*freq) - 1.
func interpolate(left, right float64, missing int) []float64 {
	// floats.Span lays out `missing+2` evenly spaced points between left
	// and right inclusive; the interior missing points are what we want.
	span := make([]float64, missing+2)
	floats.Span(span, left, right)
	return span[1 : len(span)-1]
}
