// Package xcorr implements the per-(template, channel) streaming normalized
// cross-correlation processor described in spec.md §4.2: a sliding window
// of template-length samples, running Σx/Σx² accumulators resynchronized
// periodically from a snapshot, and a peak-pick emission policy over
// contiguous above-threshold spans.
package xcorr

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/tremorstack/seisdetect/internal/fingerprint"
	"github.com/tremorstack/seisdetect/internal/sample"
	"github.com/tremorstack/seisdetect/internal/template"
	"gonum.org/v1/gonum/stat"
)

// State is the processor's lifecycle stage.
type State int

const (
	// Uninitialized means Feed has never been called.
	Uninitialized State = iota
	// Warmup means fewer than L samples have been buffered since the last
	// reset.
	Warmup
	// Armed means the sliding window is full and every advance yields a
	// correlation coefficient.
	Armed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Warmup:
		return "warmup"
	case Armed:
		return "armed"
	default:
		return "unknown"
	}
}

// Processor is the streaming normalized cross-correlation state machine
// for one (template, channel) pair. It is not safe for concurrent use; a
// Detector owns one Processor per template-channel and feeds it from a
// single goroutine (spec.md §5).
type Processor struct {
	id        string
	tmpl      template.Template
	logger    *slog.Logger
	threshold float64

	// resyncEvery bounds drift in the running sums, per DeriveResyncPeriod.
	resyncEvery int

	// Precomputed template terms. templateCentered[i] = t_i - mean(t); the
	// identity Σ(t_i - t̄) == 0 lets the numerator be computed as a single
	// dot product against the raw (uncentered) window samples.
	templateCentered []float64
	templateDenom    float64

	state State

	// ring is a fixed-length circular buffer of the last L samples; ringPos
	// is the index of the oldest sample (also the next write position).
	ring    []float64
	ringPos int
	filled  int

	sumX, sumX2   float64
	sinceSnapshot int

	// windowStart is the timestamp of the oldest sample currently buffered,
	// i.e. the nominal start of the current candidate window.
	windowStart time.Time
	period      time.Duration

	// span tracks a contiguous run of samples with |coefficient| >=
	// threshold, so only its local maximum is ever emitted.
	inSpan     bool
	spanStart  time.Time
	bestResult template.MatchResult
}

// NewProcessor builds a Processor for tmpl, identified by id (assigned by
// the owning Detector; typically templateID+streamID). threshold is the
// normalized cross-correlation magnitude a window must reach to be
// considered part of a match span (spec.md's xcorrThreshold, range
// [-1, 1]).
func NewProcessor(id string, tmpl template.Template, threshold float64, logger *slog.Logger) (*Processor, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, fmt.Errorf("xcorr: invalid template: %w", err)
	}
	if threshold < -1 || threshold > 1 {
		return nil, fmt.Errorf("xcorr: threshold %v out of range [-1, 1]", threshold)
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := tmpl.SampleCount()
	mean, variance := stat.MeanVariance(tmpl.Samples, nil)
	centered := make([]float64, l)
	for i, v := range tmpl.Samples {
		centered[i] = v - mean
	}
	denomSq := variance * float64(l-1)
	denom := math.Sqrt(denomSq)

	return &Processor{
		id:               id,
		tmpl:             tmpl,
		logger:           logger,
		threshold:        threshold,
		resyncEvery:      DeriveResyncPeriod(1e-9),
		templateCentered: centered,
		templateDenom:    denom,
		state:            Uninitialized,
		ring:             make([]float64, l),
		period:           time.Duration(float64(time.Second) / tmpl.Frequency),
	}, nil
}

// ID returns the processor's owner-assigned identifier.
func (p *Processor) ID() string { return p.id }

// TemplateStartTime returns the template's own waveform start time.
func (p *Processor) TemplateStartTime() time.Time { return p.tmpl.Start }

// TemplateEndTime returns the template's own waveform end time.
func (p *Processor) TemplateEndTime() time.Time { return p.tmpl.End() }

// HasEnoughData reports whether the sliding window is full, i.e. Armed.
func (p *Processor) HasEnoughData() bool { return p.state == Armed }

// State returns the processor's current lifecycle stage.
func (p *Processor) State() State { return p.state }

// Reset discards all buffered samples, accumulators and in-progress span
// state, returning the processor to Warmup (spec.md: "any gap beyond
// tolerance transitions back to Warmup discarding accumulators").
func (p *Processor) Reset() {
	p.state = Warmup
	p.ringPos = 0
	p.filled = 0
	p.sumX = 0
	p.sumX2 = 0
	p.sinceSnapshot = 0
	p.windowStart = time.Time{}
	p.inSpan = false
	p.bestResult = template.MatchResult{}
	for i := range p.ring {
		p.ring[i] = 0
	}
}

// Feed advances the sliding window by every sample in f and returns at
// most one MatchResult, per the processor contract (spec.md §4.2): if
// several spans close during this call, the single best (highest
// magnitude) of their peaks is emitted and the rest are discarded; if a
// span is still open at the end of the record, nothing is emitted and the
// span carries into the next Feed call.
func (p *Processor) Feed(f sample.Frame) (*template.MatchResult, error) {
	if f.Frequency <= 0 || len(f.Values) == 0 {
		return nil, fmt.Errorf("xcorr: malformed record for processor %s", p.id)
	}

	var best *template.MatchResult
	t := f.Start
	for _, x := range f.Values {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			p.logger.Warn("xcorr: non-finite sample, resetting processor", "proc", p.id)
			p.Reset()
			t = t.Add(f.Period())
			continue
		}

		result := p.advance(x, t)
		if result != nil && (best == nil || math.Abs(result.Coefficient) > math.Abs(best.Coefficient)) {
			best = result
		}
		t = t.Add(f.Period())
	}

	return best, nil
}

// advance pushes one sample into the window at timestamp ts and evaluates
// the correlation coefficient if the window is full. It returns a
// MatchResult only when a contiguous above-threshold span closes on this
// sample.
func (p *Processor) advance(x float64, ts time.Time) *template.MatchResult {
	l := len(p.ring)

	if p.filled < l {
		p.state = Warmup
		p.ring[p.ringPos] = x
		p.ringPos = (p.ringPos + 1) % l
		p.sumX += x
		p.sumX2 += x * x
		p.filled++
		if p.filled == l {
			p.state = Armed
			p.windowStart = ts.Add(-p.period * time.Duration(l-1))
			return p.evaluate()
		}
		return nil
	}

	evicted := p.ring[p.ringPos]
	p.sumX += x - evicted
	p.sumX2 += x*x - evicted*evicted
	p.ring[p.ringPos] = x
	p.ringPos = (p.ringPos + 1) % l
	p.windowStart = p.windowStart.Add(p.period)

	p.sinceSnapshot++
	if p.sinceSnapshot >= p.resyncEvery {
		mean, variance := stat.MeanVariance(p.ring, nil)
		p.sumX = mean * float64(l)
		p.sumX2 = variance*float64(l-1) + mean*mean*float64(l)
		p.sinceSnapshot = 0
	}

	return p.evaluate()
}

// evaluate computes the normalized cross-correlation coefficient for the
// current window and folds it into the active span, returning a
// MatchResult only when a span closes on this sample.
func (p *Processor) evaluate() *template.MatchResult {
	l := len(p.ring)
	mean := p.sumX / float64(l)
	varianceSum := p.sumX2 - float64(l)*mean*mean

	if varianceSum <= 0 || p.templateDenom == 0 {
		return p.closeSpan()
	}

	numerator := p.numerator()
	denominator := math.Sqrt(varianceSum) * p.templateDenom
	coefficient := numerator / denominator

	if math.Abs(coefficient) < p.threshold {
		return p.closeSpan()
	}

	windowEnd := p.windowStart.Add(p.period * time.Duration(l))
	candidate := template.MatchResult{
		Window:              sample.Window{Start: p.windowStart, End: windowEnd},
		Coefficient:         coefficient,
		TemplateFingerprint: fingerprint.ArrivalCoefficient(p.id, p.tmpl.Phase, p.windowStart.UnixNano(), coefficient),
	}

	if !p.inSpan {
		p.inSpan = true
		p.spanStart = p.windowStart
		p.bestResult = candidate
		return nil
	}

	if math.Abs(coefficient) > math.Abs(p.bestResult.Coefficient) {
		p.bestResult = candidate
	}
	return nil
}

// numerator computes Σ x_i * (t_i - t̄) over the current window, relying
// on Σ(t_i - t̄) == 0 to avoid needing x̄ in the numerator.
func (p *Processor) numerator() float64 {
	l := len(p.ring)
	var sum float64
	j := 0
	for i := p.ringPos; i < l; i++ {
		sum += p.ring[i] * p.templateCentered[j]
		j++
	}
	for i := 0; i < p.ringPos; i++ {
		sum += p.ring[i] * p.templateCentered[j]
		j++
	}
	return sum
}

// closeSpan finalizes an in-progress span, if any, and returns its peak
// as a MatchResult whose Window starts at the span's first qualifying
// window and ends with the peak window, and whose Lag is the offset from
// that start to the peak window (spec.md: "Lag is the offset from the
// window's nominal start to the peak sample"), so Window.Start + Lag is
// the peak window's start.
func (p *Processor) closeSpan() *template.MatchResult {
	if !p.inSpan {
		return nil
	}
	p.inSpan = false
	result := p.bestResult
	result.Lag = result.Window.Start.Sub(p.spanStart)
	result.Window.Start = p.spanStart
	p.bestResult = template.MatchResult{}
	return &result
}

// Flush closes out any span still open at the end of a record or stream,
// per the deferred-emission design decision recorded in DESIGN.md: a span
// still open when threshold is crossed at the very last sample of a Feed
// call is not emitted until the next Feed call extends or closes it, or
// until Flush is called explicitly (e.g. on Terminate).
func (p *Processor) Flush() *template.MatchResult {
	return p.closeSpan()
}
