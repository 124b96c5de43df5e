// Package sample defines the sample-frame and time-window primitives shared
// by the waveform, template and cross-correlation layers.
package sample

import (
	"fmt"
	"math"
	"time"
)

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Length returns End-Start.
func (w Window) Length() time.Duration { return w.End.Sub(w.Start) }

// Contains reports whether t falls in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Frame is an ordered, contiguous run of samples starting at Start and
// sampled at Frequency Hz.
type Frame struct {
	Start     time.Time
	Frequency float64
	Values    []float64
}

// End returns the time one sample period past the last sample, i.e. the
// exclusive end of the frame's window.
func (f Frame) End() time.Time {
	return f.Start.Add(time.Duration(float64(len(f.Values)) / f.Frequency * float64(time.Second)))
}

// Window returns the frame's covering time window.
func (f Frame) Window() Window {
	return Window{Start: f.Start, End: f.End()}
}

// Validate checks the invariants from the data model: a positive sampling
// frequency and a sample count consistent with the frame's declared span.
// expectedEnd is the caller's intended end time; Validate tolerates
// sub-sample rounding error introduced by float64 time math.
func (f Frame) Validate(expectedEnd time.Time) error {
	if f.Frequency <= 0 {
		return fmt.Errorf("sample: frequency must be > 0, got %v", f.Frequency)
	}
	want := int(math.Round(expectedEnd.Sub(f.Start).Seconds() * f.Frequency))
	if len(f.Values) != want {
		return fmt.Errorf("sample: expected %d samples for span %v at %.6f Hz, got %d",
			want, expectedEnd.Sub(f.Start), f.Frequency, len(f.Values))
	}
	return nil
}

// Period returns the nominal sample period, 1/Frequency.
func (f Frame) Period() time.Duration {
	if f.Frequency <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / f.Frequency)
}
