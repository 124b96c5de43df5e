// Package detector implements the façade described in spec.md §4.5: it
// owns one xcorr.Processor per template-channel, one waveform.StreamState
// per channel for gap handling, a single linker.Linker, and the
// shared-immutable reference origin. It routes incoming records through
// their channel's gap check to the processors subscribed to that stream
// id, and assembles Detections from whatever the linker emits.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tremorstack/seisdetect/internal/amplitude"
	"github.com/tremorstack/seisdetect/internal/errkind"
	"github.com/tremorstack/seisdetect/internal/linker"
	"github.com/tremorstack/seisdetect/internal/sample"
	"github.com/tremorstack/seisdetect/internal/streamid"
	"github.com/tremorstack/seisdetect/internal/template"
	"github.com/tremorstack/seisdetect/internal/waveform"
	"github.com/tremorstack/seisdetect/internal/xcorr"
)

// Status is the detector's own lifecycle stage.
type Status int

const (
	WaitingForData Status = iota
	Running
	Terminated
)

// Origin is the shared-immutable reference origin a Detector searches
// for, used to populate a Detection's location fields directly.
type Origin struct {
	Time  time.Time
	Lat   float64
	Lon   float64
	Depth float64
}

// TemplateResult pairs a processor's match result with the arrival it was
// registered under, for inclusion in a Detection.
type TemplateResult struct {
	MatchResult template.MatchResult
	Arrival     template.Arrival
}

// Detection is the detector's output, assembled from a fully- or
// partially-associated linker Event.
type Detection struct {
	Fit                float64
	OriginTime         time.Time
	Lat, Lon, Depth    float64
	Magnitude          *float64
	StationsAssociated int
	StationsUsed       int
	ChannelsAssociated int
	ChannelsUsed       int
	Results            map[string]TemplateResult
	Arrivals           []template.Arrival
	Amplitudes         []amplitude.Measurement
}

// Record is one stream's incoming sample frame, the unit the detector
// routes to processors.
type Record struct {
	StreamID streamid.ID
	Frame    sample.Frame
}

// Source is the pull-based external collaborator a daemon reads Records
// from before feeding them to a Detector (spec.md §6's record.Source).
type Source interface {
	Next(ctx context.Context) (*Record, bool, error)
}

// Sink is the non-blocking result channel a Detector pushes Detections
// into; see internal/sink for a concrete implementation.
type Sink interface {
	Offer(d Detection) error
}

// Detector owns N template processors, one linker and the reference
// origin. It is not safe for concurrent use; all Feed/Reset/Terminate
// calls on one instance must be serialized by the caller (spec.md §5).
type Detector struct {
	id     string
	origin Origin
	logger *slog.Logger
	sink   Sink

	processors   map[string]*xcorr.Processor
	arrivals     map[string]template.Arrival
	routing      map[string][]string // streamID.String() -> procIDs
	streamStates map[string]*waveform.StreamState

	link            *linker.Linker
	includeArrivals bool
	debugRecorder   func(procID string, ts time.Time, coefficient float64)
	estimator       amplitude.Estimator

	current *Detection
	status  Status
}

// ID returns the detector's configured identifier.
func (d *Detector) ID() string { return d.id }

// Status returns the detector's current lifecycle stage.
func (d *Detector) Status() Status { return d.status }

// Current returns the most recently assembled Detection, or nil if none
// has been emitted yet.
func (d *Detector) Current() *Detection { return d.current }

// HasEnoughData reports whether every owned processor has a full
// correlation window buffered.
func (d *Detector) HasEnoughData() bool {
	for _, p := range d.processors {
		if !p.HasEnoughData() {
			return false
		}
	}
	return true
}

// Feed routes rec to every processor subscribed to its stream id, feeds
// any resulting match into the linker, and pushes any Detection the
// linker's emission causes to the configured Sink.
func (d *Detector) Feed(rec Record) error {
	if d.status == Terminated {
		return errkind.New(errkind.InvalidStream, "detector: feed after terminate")
	}
	d.status = Running

	streamKey := rec.StreamID.String()
	procIDs := d.routing[streamKey]
	if len(procIDs) == 0 {
		return nil
	}

	frame, ok := d.gapCheck(streamKey, rec.Frame)
	if !ok {
		return nil
	}

	for _, procID := range procIDs {
		proc := d.processors[procID]
		result, err := proc.Feed(frame)
		if err != nil {
			d.logger.Warn("detector: processor feed failed", "proc", procID, "err", err)
			if s := d.streamStates[streamKey]; s != nil {
				s.Reset()
			}
			continue
		}
		if result == nil {
			continue
		}
		if d.debugRecorder != nil {
			d.debugRecorder(procID, result.Window.Start, result.Coefficient)
		}

		emitted, err := d.link.Feed(procID, *result)
		if err != nil {
			return fmt.Errorf("detector: linker feed: %w", err)
		}
		d.emit(emitted)
	}
	return nil
}

// gapCheck runs rec.Frame through the channel's StreamState (spec.md
// §4.1) and returns the contiguous, gap-handled frame a processor should
// actually see. ok is false for a malformed record or one that produced
// no samples (a pure gap-bridging call with nothing new to emit yet).
func (d *Detector) gapCheck(streamKey string, frame sample.Frame) (sample.Frame, bool) {
	state := d.streamStates[streamKey]
	if state == nil {
		return frame, true
	}

	outcome := state.Feed(frame)
	if outcome == waveform.OutcomeDropped {
		return sample.Frame{}, false
	}
	if outcome == waveform.OutcomeReset {
		// The new samples do not continue what the processors hold, so
		// their windows restart in Warmup rather than straddle the gap.
		for _, procID := range d.routing[streamKey] {
			d.processors[procID].Reset()
		}
	}

	pending := state.Pending()
	if len(pending) == 0 {
		return sample.Frame{}, false
	}

	return sample.Frame{
		Start:     state.PendingStart(),
		Frequency: state.Frequency(),
		Values:    pending,
	}, true
}

func (d *Detector) emit(events []*linker.Event) {
	for _, ev := range events {
		det := d.buildDetection(ev)
		d.current = &det
		if d.sink != nil {
			if err := d.sink.Offer(det); err != nil {
				d.logger.Warn("detector: sink offer failed", "err", err)
			}
		}
	}
}

func (d *Detector) buildDetection(ev *linker.Event) Detection {
	results := ev.Results()

	stationsAssociated := countStations(d.arrivals)
	usedArrivals := make(map[string]template.Arrival, len(results))
	for procID := range results {
		usedArrivals[procID] = d.arrivals[procID]
	}
	stationsUsed := countStations(usedArrivals)

	det := Detection{
		Fit:                ev.Fit(),
		OriginTime:         d.origin.Time,
		Lat:                d.origin.Lat,
		Lon:                d.origin.Lon,
		Depth:              d.origin.Depth,
		StationsAssociated: stationsAssociated,
		StationsUsed:       stationsUsed,
		ChannelsAssociated: len(d.processors),
		ChannelsUsed:       len(results),
		Results:            make(map[string]TemplateResult, len(results)),
	}

	for procID, mr := range results {
		det.Results[procID] = TemplateResult{MatchResult: mr, Arrival: d.arrivals[procID]}
	}

	if d.includeArrivals {
		det.Arrivals = make([]template.Arrival, 0, len(results))
		for procID := range results {
			det.Arrivals = append(det.Arrivals, d.arrivals[procID])
		}
	}

	det.Amplitudes = d.estimateAmplitudes(det, results)

	return det
}

// estimateAmplitudes invokes the detector's configured amplitude
// Estimator over each associated stream's matched window, per spec.md
// §1's "detector optionally invoking the amplitude estimator before
// handoff." A failed estimate is logged and treated as no measurements —
// amplitude is supplementary, never a reason to withhold a Detection
// (spec.md §1 Non-goals: no event location refinement or phase picking
// is gated on it either).
func (d *Detector) estimateAmplitudes(det Detection, results map[string]template.MatchResult) []amplitude.Measurement {
	streamWindows := make(map[string]sample.Window, len(results))
	windows := make([]sample.Window, 0, len(results))
	for procID, mr := range results {
		streamID := d.arrivals[procID].StreamID.String()
		streamWindows[streamID] = mr.Window
		windows = append(windows, mr.Window)
	}

	measurements, err := d.estimator.Estimate(context.Background(), amplitude.DetectionContext{
		OriginTime:    det.OriginTime,
		StreamWindows: streamWindows,
	}, windows)
	if err != nil {
		d.logger.Warn("detector: amplitude estimation failed", "err", err)
		return nil
	}
	return measurements
}

// Reset discards every processor's and the linker's buffered state,
// returning the detector to WaitingForData.
func (d *Detector) Reset() {
	for _, p := range d.processors {
		p.Reset()
	}
	for _, s := range d.streamStates {
		s.Reset()
	}
	d.link.Reset()
	d.status = WaitingForData
}

// Terminate closes any match span still open in a processor and feeds its
// peak to the linker, then flushes the linker's queue, pushing any
// resulting Detections to the sink, and transitions the detector to
// Terminated.
func (d *Detector) Terminate() {
	for procID, proc := range d.processors {
		result := proc.Flush()
		if result == nil {
			continue
		}
		if d.debugRecorder != nil {
			d.debugRecorder(procID, result.Window.Start, result.Coefficient)
		}
		flushed, err := d.link.Feed(procID, *result)
		if err != nil {
			d.logger.Warn("detector: linker feed on terminate failed", "proc", procID, "err", err)
			continue
		}
		d.emit(flushed)
	}
	emitted := d.link.Terminate()
	d.emit(emitted)
	d.status = Terminated
}

func countStations(arrivals map[string]template.Arrival) int {
	seen := map[string]bool{}
	for _, a := range arrivals {
		seen[a.StreamID.Station] = true
	}
	return len(seen)
}
