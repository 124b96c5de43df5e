package xcorr_test

import (
	"math"
	"testing"
	"time"

	"github.com/tremorstack/seisdetect/internal/sample"
	"github.com/tremorstack/seisdetect/internal/streamid"
	"github.com/tremorstack/seisdetect/internal/template"
	"github.com/tremorstack/seisdetect/internal/xcorr"
)

func sineWave(n int, freq, sampleHz float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / sampleHz)
	}
	return out
}

func mustTemplate(t *testing.T, samples []float64, start time.Time, hz float64) template.Template {
	t.Helper()
	tmpl := template.Template{
		ID:        "tmpl-1",
		OriginID:  "origin-1",
		StreamID:  streamid.ID{Network: "GE", Station: "WLF", Channel: "BHZ"},
		Phase:     "P",
		Start:     start,
		Pick:      start,
		Frequency: hz,
		Samples:   samples,
	}
	return tmpl
}

func TestProcessorExactMatchYieldsFitOne(t *testing.T) {
	start := time.Unix(1_600_000_000, 0)
	hz := 100.0
	samples := sineWave(300, 3, hz)
	tmpl := mustTemplate(t, samples, start, hz)

	proc, err := xcorr.NewProcessor("proc-1", tmpl, 0.99, nil)
	if err != nil {
		t.Fatalf("NewProcessor() = %v, want nil", err)
	}

	frame := sample.Frame{Start: start, Frequency: hz, Values: samples}
	result, err := proc.Feed(frame)
	if err != nil {
		t.Fatalf("Feed() error = %v, want nil", err)
	}
	if result != nil {
		t.Fatalf("Feed() result = %v, want nil — the span is still open at the last sample of the record", result)
	}

	flushed := proc.Flush()
	if flushed == nil {
		t.Fatal("Flush() = nil, want the still-open span's peak")
	}
	if math.Abs(flushed.Coefficient-1.0) > 1e-6 {
		t.Fatalf("Coefficient = %v, want ~1.0", flushed.Coefficient)
	}
	if flushed.Lag != 0 {
		t.Fatalf("Lag = %v, want 0 for a single-window exact match", flushed.Lag)
	}
}

func TestProcessorWarmupBeforeFull(t *testing.T) {
	start := time.Unix(1_600_000_000, 0)
	hz := 100.0
	samples := sineWave(300, 3, hz)
	tmpl := mustTemplate(t, samples, start, hz)

	proc, err := xcorr.NewProcessor("proc-1", tmpl, 0.9, nil)
	if err != nil {
		t.Fatalf("NewProcessor() = %v, want nil", err)
	}

	short := sample.Frame{Start: start, Frequency: hz, Values: samples[:150]}
	result, err := proc.Feed(short)
	if err != nil {
		t.Fatalf("Feed() error = %v, want nil", err)
	}
	if result != nil {
		t.Fatalf("Feed() result = %v, want nil during warmup", result)
	}
	if proc.HasEnoughData() {
		t.Fatal("HasEnoughData() = true, want false during warmup")
	}
}

func TestProcessorThresholdAtOneOnlyExactMatch(t *testing.T) {
	start := time.Unix(1_600_000_000, 0)
	hz := 100.0
	samples := sineWave(300, 3, hz)
	tmpl := mustTemplate(t, samples, start, hz)

	proc, err := xcorr.NewProcessor("proc-1", tmpl, 1.0, nil)
	if err != nil {
		t.Fatalf("NewProcessor() = %v, want nil", err)
	}

	noisy := append([]float64(nil), samples...)
	noisy[0] += 0.5
	frame := sample.Frame{Start: start, Frequency: hz, Values: noisy}
	result, err := proc.Feed(frame)
	if err != nil {
		t.Fatalf("Feed() error = %v, want nil", err)
	}
	if result != nil {
		t.Fatalf("Feed() result = %v, want nil when perturbed window cannot reach coefficient 1.0", result)
	}
}

func TestProcessorResetsOnNonFiniteSample(t *testing.T) {
	start := time.Unix(1_600_000_000, 0)
	hz := 100.0
	samples := sineWave(300, 3, hz)
	tmpl := mustTemplate(t, samples, start, hz)

	proc, err := xcorr.NewProcessor("proc-1", tmpl, 0.9, nil)
	if err != nil {
		t.Fatalf("NewProcessor() = %v, want nil", err)
	}

	frame := sample.Frame{Start: start, Frequency: hz, Values: samples}
	if _, err := proc.Feed(frame); err != nil {
		t.Fatalf("Feed() error = %v, want nil", err)
	}
	if !proc.HasEnoughData() {
		t.Fatal("HasEnoughData() = false after a full window, want true")
	}

	broken := sample.Frame{Start: frame.End(), Frequency: hz, Values: []float64{math.NaN()}}
	if _, err := proc.Feed(broken); err != nil {
		t.Fatalf("Feed() error = %v, want nil", err)
	}
	if proc.HasEnoughData() {
		t.Fatal("HasEnoughData() = true after a non-finite sample, want false (reset to warmup)")
	}
}

func TestProcessorEmitsPeakOfSpanNotFirstCrossing(t *testing.T) {
	start := time.Unix(1_600_000_000, 0)
	hz := 100.0
	samples := sineWave(300, 3, hz)
	tmpl := mustTemplate(t, samples, start, hz)

	proc, err := xcorr.NewProcessor("proc-1", tmpl, 0.5, nil)
	if err != nil {
		t.Fatalf("NewProcessor() = %v, want nil", err)
	}

	// Feed ten quiet samples, the template itself, then a flat segment. The
	// span opens on a partially aligned window a few samples before the
	// exact match; as the window slides on into the flat
	// tail, the coefficient collapses toward zero and the span closes with
	// the exact match, not its first crossing, as its peak.
	lead := make([]float64, 10)
	flat := make([]float64, 300)
	values := append(append(append([]float64(nil), lead...), samples...), flat...)
	frame := sample.Frame{Start: start, Frequency: hz, Values: values}

	result, err := proc.Feed(frame)
	if err != nil {
		t.Fatalf("Feed() error = %v, want nil", err)
	}
	if result == nil {
		t.Fatal("Feed() result = nil, want the span's peak once it closes")
	}
	if math.Abs(result.Coefficient) < 0.99 {
		t.Fatalf("Coefficient = %v, want the near-exact match to win the span, not a drifted window", result.Coefficient)
	}
}

func TestProcessorFlushClosesOpenSpan(t *testing.T) {
	start := time.Unix(1_600_000_000, 0)
	hz := 100.0
	samples := sineWave(300, 3, hz)
	tmpl := mustTemplate(t, samples, start, hz)

	proc, err := xcorr.NewProcessor("proc-1", tmpl, 0.5, nil)
	if err != nil {
		t.Fatalf("NewProcessor() = %v, want nil", err)
	}

	frame := sample.Frame{Start: start, Frequency: hz, Values: samples}
	if result, err := proc.Feed(frame); err != nil || result != nil {
		t.Fatalf("Feed() = (%v, %v), want (nil, nil) — span should still be open at end of record", result, err)
	}

	flushed := proc.Flush()
	if flushed == nil {
		t.Fatal("Flush() = nil, want the still-open span's peak")
	}
}
