package detector

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tremorstack/seisdetect/internal/amplitude"
	"github.com/tremorstack/seisdetect/internal/linker"
	"github.com/tremorstack/seisdetect/internal/template"
	"github.com/tremorstack/seisdetect/internal/waveform"
	"github.com/tremorstack/seisdetect/internal/xcorr"
)

type builderEntry struct {
	procID         string
	tmpl           template.Template
	arrival        template.Arrival
	xcorrThreshold float64
}

// Builder validates every template/arrival pair before Build constructs
// the processors and linker, mirroring DetectorBuilder's
// validate-then-build pattern in the original scdetect implementation.
type Builder struct {
	id              string
	origin          Origin
	logger          *slog.Logger
	sink            Sink
	linkerParams    linker.Params
	gapConfig       waveform.GapConfig
	includeArrivals bool
	debugRecorder   func(procID string, ts time.Time, coefficient float64)
	estimator       amplitude.Estimator
	entries         []builderEntry
	seen            map[string]bool
	err             error
}

// NewBuilder starts a Builder for a detector with the given id and
// reference origin.
func NewBuilder(id string, origin Origin) *Builder {
	return &Builder{
		id:     id,
		origin: origin,
		seen:   map[string]bool{},
	}
}

// WithLogger sets the detector's (and its processors') logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithSink sets the Sink Detections are pushed to as the linker emits
// events. A nil sink (the default) means emitted Detections are only
// available via Detector.Current.
func (b *Builder) WithSink(s Sink) *Builder {
	b.sink = s
	return b
}

// WithLinkerParams sets the linker's acceptance/emission policy.
func (b *Builder) WithLinkerParams(p linker.Params) *Builder {
	b.linkerParams = p
	return b
}

// WithGapConfig sets the per-channel gap tolerance/interpolation policy
// (spec.md §4.1) applied to every incoming Record before it reaches a
// channel's processors. The default, if never called, is the zero value:
// no tolerance, no interpolation, any discontinuity resets the channel.
func (b *Builder) WithGapConfig(cfg waveform.GapConfig) *Builder {
	b.gapConfig = cfg
	return b
}

// WithArrivalsInResult enables copying the participating arrivals into
// every emitted Detection's Arrivals field.
func (b *Builder) WithArrivalsInResult(include bool) *Builder {
	b.includeArrivals = include
	return b
}

// WithDebugRecorder installs a hook invoked with every non-discarded
// match result a processor produces, before it reaches the linker. Not
// part of the detector's normative behavior (spec.md §4.5).
func (b *Builder) WithDebugRecorder(fn func(procID string, ts time.Time, coefficient float64)) *Builder {
	b.debugRecorder = fn
	return b
}

// WithAmplitudeEstimator sets the Estimator invoked for each emitted
// Detection. The default, if never called, is amplitude.NoopEstimator.
func (b *Builder) WithAmplitudeEstimator(e amplitude.Estimator) *Builder {
	b.estimator = e
	return b
}

// AddProcessor registers a template processor under procID for arrival,
// validating that the template and arrival are mutually consistent (the
// "IsValidArrival" gate recovered from the original DetectorBuilder)
// before queuing it for construction. Errors are deferred to Build.
func (b *Builder) AddProcessor(procID string, tmpl template.Template, arrival template.Arrival, xcorrThreshold float64) *Builder {
	if b.err != nil {
		return b
	}
	if b.seen[procID] {
		b.err = fmt.Errorf("detector: duplicate procID %q", procID)
		return b
	}
	if err := validateArrival(tmpl, arrival); err != nil {
		b.err = err
		return b
	}
	b.seen[procID] = true
	b.entries = append(b.entries, builderEntry{
		procID:         procID,
		tmpl:           tmpl,
		arrival:        arrival,
		xcorrThreshold: xcorrThreshold,
	})
	return b
}

func validateArrival(tmpl template.Template, arrival template.Arrival) error {
	if err := tmpl.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if tmpl.StreamID != arrival.StreamID {
		return fmt.Errorf("detector: template %s stream id %s does not match arrival stream id %s",
			tmpl.ID, tmpl.StreamID, arrival.StreamID)
	}
	if tmpl.Phase != arrival.Phase {
		return fmt.Errorf("detector: template %s phase %q does not match arrival phase %q",
			tmpl.ID, tmpl.Phase, arrival.Phase)
	}
	return nil
}

// Build constructs the detector's processors and linker, returning the
// first validation error encountered by AddProcessor, if any, or an error
// if no processors were ever added.
func (b *Builder) Build() (*Detector, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.entries) == 0 {
		return nil, fmt.Errorf("detector: %s: no processors registered", b.id)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	estimator := b.estimator
	if estimator == nil {
		estimator = amplitude.NoopEstimator{}
	}

	lnk := linker.New(b.linkerParams)
	processors := make(map[string]*xcorr.Processor, len(b.entries))
	arrivals := make(map[string]template.Arrival, len(b.entries))
	routing := make(map[string][]string, len(b.entries))

	for _, e := range b.entries {
		proc, err := xcorr.NewProcessor(e.procID, e.tmpl, e.xcorrThreshold, logger)
		if err != nil {
			return nil, fmt.Errorf("detector: %s: %w", b.id, err)
		}
		processors[e.procID] = proc
		arrivals[e.procID] = e.arrival
		lnk.Add(e.procID, proc, e.arrival)
		key := e.tmpl.StreamID.String()
		routing[key] = append(routing[key], e.procID)
	}

	streamStates := make(map[string]*waveform.StreamState, len(routing))
	for streamKey := range routing {
		streamStates[streamKey] = waveform.NewStreamState(b.gapConfig, logger, streamKey)
	}

	return &Detector{
		id:              b.id,
		origin:          b.origin,
		logger:          logger,
		sink:            b.sink,
		processors:      processors,
		arrivals:        arrivals,
		routing:         routing,
		streamStates:    streamStates,
		link:            lnk,
		includeArrivals: b.includeArrivals,
		debugRecorder:   b.debugRecorder,
		estimator:       estimator,
		status:          WaitingForData,
	}, nil
}
