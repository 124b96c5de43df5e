package waveform_test

import (
	"testing"
	"time"

	"github.com/tremorstack/seisdetect/internal/sample"
	"github.com/tremorstack/seisdetect/internal/waveform"
)

func frameAt(start time.Time, freq float64, n int, value func(i int) float64) sample.Frame {
	values := make([]float64, n)
	for i := range values {
		values[i] = value(i)
	}
	return sample.Frame{Start: start, Frequency: freq, Values: values}
}

func TestStreamStateContiguous(t *testing.T) {
	start := time.Unix(0, 0)
	s := waveform.NewStreamState(waveform.GapConfig{Tolerance: time.Second, Interpolate: true}, nil, "test")

	f1 := frameAt(start, 100, 100, func(i int) float64 { return float64(i) })
	if got := s.Feed(f1); got != waveform.OutcomeInit {
		t.Fatalf("first Feed outcome = %v, want OutcomeInit", got)
	}

	f2 := frameAt(f1.End(), 100, 100, func(i int) float64 { return float64(i) })
	if got := s.Feed(f2); got != waveform.OutcomeContiguous {
		t.Fatalf("second Feed outcome = %v, want OutcomeContiguous", got)
	}
	if len(s.Pending()) != 100 {
		t.Fatalf("Pending() len = %d, want 100 (no interpolation on contiguous feed)", len(s.Pending()))
	}
}

func TestStreamStatePendingStartTracksGapLeftEdge(t *testing.T) {
	start := time.Unix(0, 0)
	s := waveform.NewStreamState(waveform.GapConfig{Tolerance: time.Second, Interpolate: true}, nil, "test")

	f1 := frameAt(start, 100, 100, func(i int) float64 { return 1.0 })
	s.Feed(f1)
	if got := s.PendingStart(); !got.Equal(f1.Start) {
		t.Fatalf("PendingStart() after init = %v, want %v", got, f1.Start)
	}

	gapStart := f1.End().Add(500 * time.Millisecond)
	f2 := frameAt(gapStart, 100, 50, func(i int) float64 { return 2.0 })
	s.Feed(f2)
	if got := s.PendingStart(); !got.Equal(f1.End()) {
		t.Fatalf("PendingStart() after interpolated gap = %v, want %v (the gap's left edge)", got, f1.End())
	}
	if s.Frequency() != 100 {
		t.Fatalf("Frequency() = %v, want 100", s.Frequency())
	}
}

func TestStreamStateInterpolatesWithinTolerance(t *testing.T) {
	start := time.Unix(0, 0)
	s := waveform.NewStreamState(waveform.GapConfig{Tolerance: time.Second, Interpolate: true}, nil, "test")

	f1 := frameAt(start, 100, 100, func(i int) float64 { return 1.0 })
	s.Feed(f1)

	// 0.5s gap at 100Hz => round(0.5*100) - 1 = 49 interpolated samples.
	gapStart := f1.End().Add(500 * time.Millisecond)
	f2 := frameAt(gapStart, 100, 50, func(i int) float64 { return 2.0 })

	outcome := s.Feed(f2)
	if outcome != waveform.OutcomeInterpolated {
		t.Fatalf("Feed outcome = %v, want OutcomeInterpolated", outcome)
	}

	pending := s.Pending()
	wantLen := 49 + 50
	if len(pending) != wantLen {
		t.Fatalf("Pending() len = %d, want %d", len(pending), wantLen)
	}

	// Interpolated samples should move monotonically from 1.0 toward 2.0.
	for i := 1; i < 49; i++ {
		if pending[i] < pending[i-1] {
			t.Fatalf("interpolated samples not monotonic at index %d", i)
		}
	}
}

func TestStreamStateResetsBeyondTolerance(t *testing.T) {
	start := time.Unix(0, 0)
	s := waveform.NewStreamState(waveform.GapConfig{Tolerance: time.Second, Interpolate: true}, nil, "test")

	f1 := frameAt(start, 100, 100, func(i int) float64 { return 1.0 })
	s.Feed(f1)

	gapStart := f1.End().Add(2 * time.Second)
	f2 := frameAt(gapStart, 100, 50, func(i int) float64 { return 2.0 })

	outcome := s.Feed(f2)
	if outcome != waveform.OutcomeReset {
		t.Fatalf("Feed outcome = %v, want OutcomeReset", outcome)
	}
	if len(s.Pending()) != 50 {
		t.Fatalf("Pending() len = %d, want 50 (no interpolation after reset)", len(s.Pending()))
	}
}

func TestStreamStateDropsMalformedRecord(t *testing.T) {
	s := waveform.NewStreamState(waveform.GapConfig{Tolerance: time.Second}, nil, "test")
	f := sample.Frame{Start: time.Unix(0, 0), Frequency: 0, Values: nil}
	if got := s.Feed(f); got != waveform.OutcomeDropped {
		t.Fatalf("Feed outcome = %v, want OutcomeDropped", got)
	}
	if s.Initialized() {
		t.Fatal("Initialized() = true after dropped record, want false")
	}
}

func TestStreamStateFrequencyChangeResets(t *testing.T) {
	start := time.Unix(0, 0)
	s := waveform.NewStreamState(waveform.GapConfig{Tolerance: time.Second}, nil, "test")

	f1 := frameAt(start, 100, 100, func(i int) float64 { return 1.0 })
	s.Feed(f1)

	f2 := frameAt(f1.End(), 50, 50, func(i int) float64 { return 2.0 })
	if got := s.Feed(f2); got != waveform.OutcomeReset {
		t.Fatalf("Feed outcome = %v, want OutcomeReset on frequency change", got)
	}
}
