// Package catalog loads the template + station metadata a Detector is
// built from out of a YAML file, mirroring the Load/Validate split in
// References/orion-prototipe/internal/config. Every template's arrival is
// gated by the "IsValidArrival" rule recovered from the original
// scdetect DetectorBuilder (supplemented feature #4 in SPEC_FULL.md):
// an arrival whose pick falls outside its own template's waveform window
// is rejected at load time, not silently accepted into the detector.
//
// Each template's embedded raw samples are run through a
// waveform.CachedProvider wrapping a local in-memory Provider before the
// template is built, so the catalog's demean step goes through the same
// Provider/Prepare pipeline a live WaveformProvider would use rather than
// a hand-rolled shortcut.
package catalog

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tremorstack/seisdetect/internal/detector"
	"github.com/tremorstack/seisdetect/internal/sample"
	"github.com/tremorstack/seisdetect/internal/streamid"
	"github.com/tremorstack/seisdetect/internal/template"
	"github.com/tremorstack/seisdetect/internal/waveform"
)

// document is the on-disk YAML shape.
type document struct {
	Origin    originDoc     `yaml:"origin"`
	Templates []templateDoc `yaml:"templates"`
}

type originDoc struct {
	ID    string    `yaml:"id"`
	Time  time.Time `yaml:"time"`
	Lat   float64   `yaml:"lat"`
	Lon   float64   `yaml:"lon"`
	Depth float64   `yaml:"depth"`
}

type templateDoc struct {
	ID        string    `yaml:"id"`
	Stream    string    `yaml:"stream"` // "NET.STA.LOC.CHA"
	Phase     string    `yaml:"phase"`
	Start     time.Time `yaml:"start"`
	Pick      time.Time `yaml:"pick"`
	Frequency float64   `yaml:"frequency"`
	Samples   []float64 `yaml:"samples"`
	Threshold float64    `yaml:"xcorr_threshold"`
	Arrival   arrivalDoc `yaml:"arrival"`
	// Demean requests that the raw samples above be demeaned through the
	// same waveform.Provider/Prepare pipeline a live WaveformProvider would
	// run, rather than assuming the catalog author already demeaned them.
	Demean bool `yaml:"demean"`
}

type arrivalDoc struct {
	Pick              time.Time `yaml:"pick"`
	LowerBoundSeconds float64   `yaml:"lower_bound_s"`
	UpperBoundSeconds float64   `yaml:"upper_bound_s"`
}

// Entry is one validated (template, arrival, threshold) triple ready to
// register with a detector.Builder.
type Entry struct {
	ProcID    string
	Template  template.Template
	Arrival   template.Arrival
	Threshold float64
}

// Catalog is the loaded, validated set of templates and the reference
// origin they search for.
type Catalog struct {
	Origin  detector.Origin
	Entries []Entry
}

// Load reads path, parses it as YAML, and validates every template and
// its arrival. A template whose arrival fails IsValidArrival-style gating
// fails the whole load — a partially-usable catalog is not returned.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}

	return build(doc)
}

// rawTemplateProvider implements waveform.Provider over one catalog
// template's embedded raw samples, standing in for a live waveform
// archive. build() wraps it in a waveform.CachedProvider so the catalog's
// own demeaning step is exercised through the same Provider/Prepare
// pipeline a running WaveformProvider would use, rather than hand-rolling
// a separate demean step.
type rawTemplateProvider struct {
	id    streamid.ID
	frame sample.Frame
}

func (p rawTemplateProvider) Get(_ context.Context, _ streamid.ID, _ sample.Window, _ waveform.ProcessingConfig) (*waveform.Trace, error) {
	return &waveform.Trace{StreamID: p.id, Frame: p.frame}, nil
}

func build(doc document) (*Catalog, error) {
	cat := &Catalog{
		Origin: detector.Origin{
			Time:  doc.Origin.Time,
			Lat:   doc.Origin.Lat,
			Lon:   doc.Origin.Lon,
			Depth: doc.Origin.Depth,
		},
		Entries: make([]Entry, 0, len(doc.Templates)),
	}

	seen := make(map[string]bool, len(doc.Templates))
	for _, td := range doc.Templates {
		if seen[td.ID] {
			return nil, fmt.Errorf("catalog: duplicate template id %q", td.ID)
		}
		seen[td.ID] = true

		streamID, ok := streamid.Parse(td.Stream)
		if !ok {
			return nil, fmt.Errorf("catalog: template %s: invalid stream id %q", td.ID, td.Stream)
		}

		rawFrame := sample.Frame{Start: td.Start, Frequency: td.Frequency, Values: td.Samples}
		provider := waveform.NewCachedProvider(rawTemplateProvider{id: streamID, frame: rawFrame}, waveform.CacheRaw, nil, nil)
		trace, err := provider.Get(context.Background(), streamID, rawFrame.Window(), waveform.ProcessingConfig{Demean: td.Demean})
		if err != nil {
			return nil, fmt.Errorf("catalog: template %s: prepare: %w", td.ID, err)
		}

		tmpl := template.Template{
			ID:        td.ID,
			OriginID:  doc.Origin.ID,
			StreamID:  streamID,
			Phase:     td.Phase,
			Pick:      td.Pick,
			Start:     trace.Frame.Start,
			Frequency: trace.Frame.Frequency,
			Samples:   trace.Frame.Values,
		}
		if err := tmpl.Validate(); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}

		arrival := template.Arrival{
			Pick:       td.Arrival.Pick,
			StreamID:   streamID,
			Phase:      td.Phase,
			LowerBound: durationFromSeconds(td.Arrival.LowerBoundSeconds),
			UpperBound: durationFromSeconds(td.Arrival.UpperBoundSeconds),
		}
		if err := validateArrival(tmpl, arrival); err != nil {
			return nil, err
		}

		cat.Entries = append(cat.Entries, Entry{
			ProcID:    td.ID,
			Template:  tmpl,
			Arrival:   arrival,
			Threshold: td.Threshold,
		})
	}

	return cat, nil
}

// validateArrival re-states detector.Builder's stream id and phase checks
// so a malformed catalog entry is rejected at load time rather than
// surfacing later as a Builder.Build error that is harder to trace back to
// a config line. It also rejects an arrival pick outside the template's
// waveform window, which detector.Builder does not check.
func validateArrival(tmpl template.Template, arrival template.Arrival) error {
	if tmpl.StreamID != arrival.StreamID {
		return fmt.Errorf("catalog: template %s stream id %s does not match arrival stream id %s",
			tmpl.ID, tmpl.StreamID, arrival.StreamID)
	}
	if tmpl.Phase != arrival.Phase {
		return fmt.Errorf("catalog: template %s phase %q does not match arrival phase %q",
			tmpl.ID, tmpl.Phase, arrival.Phase)
	}
	if arrival.Pick.Before(tmpl.Start) || arrival.Pick.After(tmpl.End()) {
		return fmt.Errorf("catalog: template %s: arrival pick %v outside waveform window [%v, %v]",
			tmpl.ID, arrival.Pick, tmpl.Start, tmpl.End())
	}
	return nil
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Register adds every catalog entry to b, returning b for chaining. The
// caller still owns linker/sink/estimator configuration and the final
// Build() call.
func (c *Catalog) Register(b *detector.Builder) *detector.Builder {
	for _, e := range c.Entries {
		b = b.AddProcessor(e.ProcID, e.Template, e.Arrival, e.Threshold)
	}
	return b
}
