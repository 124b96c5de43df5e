// Package linker implements the windowed multi-channel association stage
// described in spec.md §4.4: it fuses per-channel template match results
// into Events under a pick-offset-tolerance constraint, and emits a
// Detection's worth of arrivals once an event is fully associated or its
// on-hold window expires.
package linker

import (
	"fmt"
	"time"

	"github.com/tremorstack/seisdetect/internal/errkind"
	"github.com/tremorstack/seisdetect/internal/fingerprint"
	"github.com/tremorstack/seisdetect/internal/pot"
	"github.com/tremorstack/seisdetect/internal/streamid"
	"github.com/tremorstack/seisdetect/internal/template"
)

// TemplateProcessor is the minimal view of a template processor the linker
// needs: its own waveform start time, used to recompute an arrival's pick
// time from a match result's window and lag.
type TemplateProcessor interface {
	TemplateStartTime() time.Time
}

// Status is the linker's own lifecycle stage, independent of any one
// Event's status.
type Status int

const (
	// WaitingForData is the initial and post-Reset status.
	WaitingForData Status = iota
	// Running accepts feed/process calls normally.
	Running
	// Terminated rejects all further feed calls.
	Terminated
)

// Params configures acceptance and emission policy.
type Params struct {
	// ArrivalOffsetThreshold bounds how far a candidate event's pairwise
	// pick offsets may differ from the reference POT before the merge is
	// rejected. Nil disables the check entirely (spec.md: no in-band
	// sentinel for "disabled").
	ArrivalOffsetThreshold *time.Duration
	// ResultThreshold is the minimum fit (mean coefficient) an event must
	// reach to be emitted.
	ResultThreshold float64
	// MinArrivals is the minimum arrival count an event that is not fully
	// associated must reach, once its on-hold deadline has passed or on
	// Terminate, to be emitted rather than dropped. Nil means
	// "all registered processors" (spec.md boundary: "minArrivals
	// unspecified defaults to |processors| (strict all)").
	MinArrivals *int
	// OnHold is how long a newly created event waits for further merges
	// before it is swept (emitted or dropped).
	OnHold time.Duration
}

func (p Params) minArrivals(registered int) int {
	if p.MinArrivals == nil {
		return registered
	}
	return *p.MinArrivals
}

// Event is a candidate multi-channel association still accumulating
// arrivals, or ready to be emitted/dropped once swept.
type Event struct {
	id        string
	arrivals  map[string]template.MatchResult
	pickTimes map[string]time.Time
	fit       float64
	refProcID string
	deadline  time.Time
	createdAt time.Time
	seq       uint64
}

// ID returns the event's fingerprint-independent identifier, assigned at
// creation.
func (e *Event) ID() string { return e.id }

// ProcIDs returns the processor ids currently associated with the event.
func (e *Event) ProcIDs() []string {
	ids := make([]string, 0, len(e.arrivals))
	for id := range e.arrivals {
		ids = append(ids, id)
	}
	return ids
}

// Fit returns the event's current mean coefficient.
func (e *Event) Fit() float64 { return e.fit }

// RefProcID returns the processor id whose recomputed pick time is
// earliest among the event's arrivals.
func (e *Event) RefProcID() string { return e.refProcID }

// Results returns a copy of the event's procID -> MatchResult arrivals.
func (e *Event) Results() map[string]template.MatchResult {
	cp := make(map[string]template.MatchResult, len(e.arrivals))
	for k, v := range e.arrivals {
		cp[k] = v
	}
	return cp
}

type registration struct {
	proc    TemplateProcessor
	arrival template.Arrival
}

// Linker owns the processor registry, queued candidate events, and the
// cached reference Pick-Offset Table. It is not safe for concurrent use;
// the owning Detector is the synchronization boundary (spec.md §5).
type Linker struct {
	params Params

	processors map[string]registration
	queue      []*Event
	nextSeq    uint64

	refPOT      pot.Table
	refPOTValid bool

	status Status
	clock  func() time.Time
}

// New builds a Linker in WaitingForData status.
func New(params Params) *Linker {
	return &Linker{
		params:     params,
		processors: map[string]registration{},
		status:     WaitingForData,
		clock:      time.Now,
	}
}

// SetClock overrides the linker's wall-clock source, used by tests to
// drive on-hold deadline expiry deterministically without sleeping real
// time. Production callers never need this; the default is time.Now.
func (l *Linker) SetClock(clock func() time.Time) {
	l.clock = clock
}

// Add registers a processor under procID with its expected arrival,
// invalidating the cached reference POT. A duplicate procID replaces the
// prior binding (spec.md: "duplicate procId on add replaces the prior
// binding").
func (l *Linker) Add(procID string, proc TemplateProcessor, arrival template.Arrival) {
	l.processors[procID] = registration{proc: proc, arrival: arrival}
	l.refPOTValid = false
	if l.status == WaitingForData {
		l.status = Running
	}
}

// Remove unregisters procID, invalidating the cached reference POT.
func (l *Linker) Remove(procID string) {
	delete(l.processors, procID)
	l.refPOTValid = false
}

// Reset clears the queue, invalidates the reference POT, and returns the
// linker to WaitingForData.
func (l *Linker) Reset() {
	l.queue = nil
	l.refPOTValid = false
	l.status = WaitingForData
}

func (l *Linker) ensureRefPOT() {
	if l.refPOTValid {
		return
	}
	arrivals := make([]template.Arrival, 0, len(l.processors))
	for _, reg := range l.processors {
		arrivals = append(arrivals, reg.arrival)
	}
	l.refPOT = pot.New(arrivals)
	if err := l.refPOT.CheckInvariants(); err != nil {
		errkind.Panic(fmt.Sprintf("linker: reference POT built from registered arrivals violates its invariants: %v", err))
	}
	l.refPOTValid = true
}

// Feed ingests one processor's match result: it recomputes the arrival's
// pick time and hands it to process, returning any events the ingest
// causes to be emitted. Per spec.md §4.4, feed rejects status >=
// Terminated and unknown procIDs (silently, for the latter).
func (l *Linker) Feed(procID string, result template.MatchResult) ([]*Event, error) {
	if l.status == Terminated {
		return nil, errkind.New(errkind.InvalidStream, "linker: feed after terminate")
	}
	reg, ok := l.processors[procID]
	if !ok {
		return nil, nil // unregistered procIDs are silently dropped, per spec.md.
	}

	pickOffset := reg.arrival.Pick.Sub(reg.proc.TemplateStartTime())
	pick := template.RecomputePick(result.Window.Start, result.Lag, pickOffset)

	return l.process(procID, reg, result, pick), nil
}

// process implements spec.md §4.4's process(proc, tr): many-merge against
// every eligible queued event, then append a fresh single-result event,
// then sweep the queue for emission/expiry.
func (l *Linker) process(procID string, reg registration, tr template.MatchResult, pick time.Time) []*Event {
	l.ensureRefPOT()

	for _, e := range l.queue {
		l.tryMerge(e, procID, reg, tr, pick)
	}

	now := l.clock()
	l.queue = append(l.queue, &Event{
		id:        fingerprint.NewEventID(),
		arrivals:  map[string]template.MatchResult{procID: tr},
		pickTimes: map[string]time.Time{procID: pick},
		fit:       tr.Coefficient,
		refProcID: procID,
		deadline:  now.Add(l.params.OnHold),
		createdAt: pick,
		seq:       l.nextSeq,
	})
	l.nextSeq++

	return l.sweep(now)
}

// tryMerge attempts to fold (procID, tr, pick) into e, per the many-merge
// rule: eligible if e lacks this procID, or the new coefficient beats the
// one e already holds for it.
func (l *Linker) tryMerge(e *Event, procID string, reg registration, tr template.MatchResult, pick time.Time) {
	if existing, has := e.arrivals[procID]; has && tr.Coefficient <= existing.Coefficient {
		return
	}

	candidateArrivals := make(map[string]template.MatchResult, len(e.arrivals)+1)
	candidatePicks := make(map[string]time.Time, len(e.pickTimes)+1)
	for k, v := range e.arrivals {
		candidateArrivals[k] = v
	}
	for k, v := range e.pickTimes {
		candidatePicks[k] = v
	}
	candidateArrivals[procID] = tr
	candidatePicks[procID] = pick

	if l.params.ArrivalOffsetThreshold != nil {
		if !l.validateOffsets(candidatePicks) {
			return
		}
	}

	e.arrivals = candidateArrivals
	e.pickTimes = candidatePicks
	e.fit = meanCoefficient(candidateArrivals)
	e.refProcID = earliestPick(candidatePicks)
}

// validateOffsets builds the candidate POT from picks, disables reference
// rows/columns for processors not present in the candidate set, and
// checks it against the reference POT within ArrivalOffsetThreshold.
func (l *Linker) validateOffsets(picks map[string]time.Time) bool {
	present := make([]streamid.ID, 0, len(picks))
	arrivals := make([]template.Arrival, 0, len(picks))
	for procID, pick := range picks {
		reg, ok := l.processors[procID]
		if !ok {
			continue
		}
		present = append(present, reg.arrival.StreamID)
		arrivals = append(arrivals, template.Arrival{
			Pick:     pick,
			StreamID: reg.arrival.StreamID,
			Phase:    reg.arrival.Phase,
		})
	}
	candidate := pot.New(arrivals)

	// Build a disposable copy of the reference table so the disable mask
	// applied below never touches l.refPOT itself (spec.md §9: model POT
	// masking as an immutable matrix, recomputed per validation, rather
	// than mutating shared state during queue iteration).
	ref := pot.New(l.refPOT.Arrivals())
	allStreams := make([]streamid.ID, 0, len(l.processors))
	for _, reg := range l.processors {
		allStreams = append(allStreams, reg.arrival.StreamID)
	}
	notPresent := pot.StreamSet(allStreams)
	for _, id := range present {
		delete(notPresent, id.String())
	}
	ref.DisableStreams(notPresent)

	ok, _ := pot.Validate(ref, candidate, l.params.ArrivalOffsetThreshold.Seconds())
	return ok
}

// sweep emits or drops events whose lifecycle has resolved: fully
// associated events (arrivalCount == |processors|) emit immediately if
// fit clears resultThreshold; events past their on-hold deadline emit if
// they cleared minArrivals and resultThreshold, else are dropped. now is
// the wall-clock timestamp driving the deadline comparison, per
// original_source's linker.cpp (`Core::Time::GMT()` used for both the
// deadline and the expiry check) — callers pass l.clock() rather than a
// data-timeline value so on-hold windows expire with real elapsed time.
func (l *Linker) sweep(now time.Time) []*Event {
	var emitted []*Event
	kept := l.queue[:0]

	for _, e := range l.queue {
		fullyAssociated := len(e.arrivals) == len(l.processors)
		expired := !now.Before(e.deadline)

		switch {
		case fullyAssociated:
			if e.fit >= l.params.ResultThreshold {
				emitted = append(emitted, e)
			}
			continue // fully associated events leave the queue either way.

		case expired:
			if len(e.arrivals) >= l.params.minArrivals(len(l.processors)) && e.fit >= l.params.ResultThreshold {
				emitted = append(emitted, e)
			}
			continue

		default:
			kept = append(kept, e)
		}
	}

	l.queue = kept
	return emitted
}

// Terminate flushes the queue applying the minArrivals/resultThreshold
// rule to every remaining event regardless of deadline, and transitions
// the linker to Terminated.
func (l *Linker) Terminate() []*Event {
	var emitted []*Event
	for _, e := range l.queue {
		if len(e.arrivals) >= l.params.minArrivals(len(l.processors)) && e.fit >= l.params.ResultThreshold {
			emitted = append(emitted, e)
		}
	}
	l.queue = nil
	l.status = Terminated
	return emitted
}

// Status returns the linker's current lifecycle stage.
func (l *Linker) Status() Status { return l.status }

// QueueLen returns the number of events currently awaiting resolution,
// primarily for tests and diagnostics.
func (l *Linker) QueueLen() int { return len(l.queue) }

func meanCoefficient(arrivals map[string]template.MatchResult) float64 {
	if len(arrivals) == 0 {
		return 0
	}
	var sum float64
	for _, r := range arrivals {
		sum += r.Coefficient
	}
	return sum / float64(len(arrivals))
}

func earliestPick(picks map[string]time.Time) string {
	var best string
	var bestTime time.Time
	first := true
	for procID, t := range picks {
		if first || t.Before(bestTime) {
			best = procID
			bestTime = t
			first = false
		}
	}
	return best
}

// validateParams checks Params for internal consistency, used by
// NewValidated.
func validateParams(p Params) error {
	if p.ResultThreshold < -1 || p.ResultThreshold > 1 {
		return fmt.Errorf("linker: resultThreshold %v out of range [-1, 1]", p.ResultThreshold)
	}
	if p.OnHold < 0 {
		return fmt.Errorf("linker: onHold must be >= 0, got %v", p.OnHold)
	}
	if p.MinArrivals != nil && *p.MinArrivals < 1 {
		return fmt.Errorf("linker: minArrivals must be >= 1 when set, got %d", *p.MinArrivals)
	}
	return nil
}

// NewValidated builds a Linker after checking Params for internal
// consistency.
func NewValidated(params Params) (*Linker, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	return New(params), nil
}
