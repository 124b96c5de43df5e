// Package template defines the immutable reference waveform a processor
// searches for, the arrivals it carries, and the match results a processor
// emits against it.
package template

import (
	"fmt"
	"time"

	"github.com/tremorstack/seisdetect/internal/sample"
	"github.com/tremorstack/seisdetect/internal/streamid"
)

// Template is an immutable reference waveform bound to the origin it was
// extracted from. Once built it is shared-read-only across goroutines.
type Template struct {
	ID        string
	OriginID  string
	StreamID  streamid.ID
	Phase     string
	Pick      time.Time
	Start     time.Time
	Frequency float64
	Samples   []float64
}

// SampleCount returns the template's fixed correlation window length L.
func (t Template) SampleCount() int { return len(t.Samples) }

// End returns the time one sample period past the template's last sample.
func (t Template) End() time.Time {
	return t.Start.Add(time.Duration(float64(len(t.Samples)) / t.Frequency * float64(time.Second)))
}

// PickOffset returns the offset of the reference pick from the template's
// start, used to recompute an arrival's pick time from a match result.
func (t Template) PickOffset() time.Duration {
	return t.Pick.Sub(t.Start)
}

// Validate checks that the template is internally consistent and that its
// reference pick actually falls within its own waveform window — the
// "IsValidArrival" gate from the original scdetect DetectorBuilder.
func (t Template) Validate() error {
	if t.Frequency <= 0 {
		return fmt.Errorf("template %s: frequency must be > 0", t.ID)
	}
	if len(t.Samples) == 0 {
		return fmt.Errorf("template %s: samples must be non-empty", t.ID)
	}
	if !t.StreamID.IsValid() {
		return fmt.Errorf("template %s: invalid stream id %q", t.ID, t.StreamID.String())
	}
	start, end := t.Start, t.End()
	if t.Pick.Before(start) || t.Pick.After(end) {
		return fmt.Errorf("template %s: reference pick %v outside waveform window [%v, %v]",
			t.ID, t.Pick, start, end)
	}
	return nil
}

// Arrival is the expected timing of a phase at a station, relative to a
// reference origin.
type Arrival struct {
	Pick       time.Time
	StreamID   streamid.ID
	Phase      string
	LowerBound time.Duration
	UpperBound time.Duration
}

// RecomputePick derives an arrival's pick time from a template match result
// per the formula in the data model: matchWindowStart + lag + templatePickOffset.
func RecomputePick(windowStart time.Time, lag time.Duration, pickOffset time.Duration) time.Time {
	return windowStart.Add(lag).Add(pickOffset)
}

// MatchResult is emitted by a template processor when the normalized
// cross-correlation coefficient crosses the configured threshold.
type MatchResult struct {
	Window              sample.Window
	Coefficient         float64
	Lag                 time.Duration
	TemplateFingerprint uint64
}
