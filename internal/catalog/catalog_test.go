package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tremorstack/seisdetect/internal/catalog"
)

func writeCatalog(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v, want nil", err)
	}
	return path
}

const validCatalog = `
origin:
  id: origin-1
  time: 2020-10-25T19:30:05Z
  lat: 1.5
  lon: 2.5
  depth: 10

templates:
  - id: tmpl-1
    stream: GE.WLF..BHZ
    phase: P
    start: 2020-10-25T19:30:05Z
    pick: 2020-10-25T19:30:05Z
    frequency: 100
    samples: [0, 1, 0, -1, 0, 1, 0, -1]
    xcorr_threshold: 0.8
    arrival:
      pick: 2020-10-25T19:30:05Z
      lower_bound_s: -0.5
      upper_bound_s: 0.5
`

func TestLoadValidCatalog(t *testing.T) {
	path := writeCatalog(t, validCatalog)

	cat, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if len(cat.Entries) != 1 {
		t.Fatalf("len(Entries) = %d, want 1", len(cat.Entries))
	}
	entry := cat.Entries[0]
	if entry.ProcID != "tmpl-1" {
		t.Fatalf("ProcID = %q, want tmpl-1", entry.ProcID)
	}
	if entry.Threshold != 0.8 {
		t.Fatalf("Threshold = %v, want 0.8", entry.Threshold)
	}
	if cat.Origin.Lat != 1.5 || cat.Origin.Lon != 2.5 || cat.Origin.Depth != 10 {
		t.Fatalf("Origin = %+v, want lat=1.5 lon=2.5 depth=10", cat.Origin)
	}
}

func TestLoadDemeansTemplateSamples(t *testing.T) {
	const demeanCatalog = `
origin:
  id: origin-1
  time: 2020-10-25T19:30:05Z

templates:
  - id: tmpl-1
    stream: GE.WLF..BHZ
    phase: P
    start: 2020-10-25T19:30:05Z
    pick: 2020-10-25T19:30:05Z
    frequency: 100
    samples: [1, 2, 3, 4, 5, 6, 7, 8]
    demean: true
    xcorr_threshold: 0.8
    arrival:
      pick: 2020-10-25T19:30:05Z
`
	path := writeCatalog(t, demeanCatalog)

	cat, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	samples := cat.Entries[0].Template.Samples
	if len(samples) != 8 {
		t.Fatalf("len(Samples) = %d, want 8", len(samples))
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	if sum > 1e-9 || sum < -1e-9 {
		t.Fatalf("demeaned sum = %v, want ~0", sum)
	}
}

func TestLoadRejectsArrivalOutsideWindow(t *testing.T) {
	const badCatalog = `
origin:
  id: origin-1
  time: 2020-10-25T19:30:05Z

templates:
  - id: tmpl-1
    stream: GE.WLF..BHZ
    phase: P
    start: 2020-10-25T19:30:05Z
    pick: 2020-10-25T19:30:05Z
    frequency: 100
    samples: [0, 1, 0, -1, 0, 1, 0, -1]
    xcorr_threshold: 0.8
    arrival:
      pick: 2020-10-25T19:40:05Z
`
	path := writeCatalog(t, badCatalog)

	if _, err := catalog.Load(path); err == nil {
		t.Fatal("Load() = nil error, want rejection of an arrival pick outside the template window")
	}
}

func TestLoadRejectsDuplicateTemplateID(t *testing.T) {
	const dupCatalog = validCatalog + `
  - id: tmpl-1
    stream: GE.WLF..BHZ
    phase: P
    start: 2020-10-25T19:30:05Z
    pick: 2020-10-25T19:30:05Z
    frequency: 100
    samples: [0, 1, 0, -1, 0, 1, 0, -1]
    xcorr_threshold: 0.8
    arrival:
      pick: 2020-10-25T19:30:05Z
`
	path := writeCatalog(t, dupCatalog)

	if _, err := catalog.Load(path); err == nil {
		t.Fatal("Load() = nil error, want rejection of a duplicate template id")
	}
}

func TestLoadRejectsMalformedStreamID(t *testing.T) {
	const badStream = `
origin:
  id: origin-1
  time: 2020-10-25T19:30:05Z

templates:
  - id: tmpl-1
    stream: not-a-stream-id
    phase: P
    start: 2020-10-25T19:30:05Z
    pick: 2020-10-25T19:30:05Z
    frequency: 100
    samples: [0, 1, 0, -1, 0, 1, 0, -1]
    arrival:
      pick: 2020-10-25T19:30:05Z
`
	path := writeCatalog(t, badStream)

	if _, err := catalog.Load(path); err == nil {
		t.Fatal("Load() = nil error, want rejection of a malformed stream id")
	}
}
