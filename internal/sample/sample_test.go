package sample_test

import (
	"testing"
	"time"

	"github.com/tremorstack/seisdetect/internal/sample"
)

func TestFrameEndAndWindow(t *testing.T) {
	start := time.Date(2020, 10, 25, 19, 30, 5, 0, time.UTC)
	f := sample.Frame{Start: start, Frequency: 100, Values: make([]float64, 300)}

	wantEnd := start.Add(3 * time.Second)
	if got := f.End(); !got.Equal(wantEnd) {
		t.Fatalf("End() = %v, want %v", got, wantEnd)
	}

	w := f.Window()
	if w.Length() != 3*time.Second {
		t.Fatalf("Window().Length() = %v, want 3s", w.Length())
	}
}

func TestFrameValidate(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	f := sample.Frame{Start: start, Frequency: 100, Values: make([]float64, 300)}
	if err := f.Validate(start.Add(3 * time.Second)); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	if err := f.Validate(start.Add(4 * time.Second)); err == nil {
		t.Fatal("Validate() = nil, want error for mismatched sample count")
	}

	bad := sample.Frame{Start: start, Frequency: 0, Values: nil}
	if err := bad.Validate(start); err == nil {
		t.Fatal("Validate() = nil, want error for non-positive frequency")
	}
}

func TestWindowContains(t *testing.T) {
	w := sample.Window{
		Start: time.Unix(0, 0),
		End:   time.Unix(10, 0),
	}
	if !w.Contains(time.Unix(5, 0)) {
		t.Fatal("expected midpoint to be contained")
	}
	if w.Contains(time.Unix(10, 0)) {
		t.Fatal("End should be exclusive")
	}
	if !w.Contains(time.Unix(0, 0)) {
		t.Fatal("Start should be inclusive")
	}
}
