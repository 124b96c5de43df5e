// Package pot implements the Pick-Offset Table: a square matrix of
// pairwise absolute pick-time differences over an ordered set of arrivals,
// with per-row/column enable masks for selective comparison.
package pot

import (
	"fmt"
	"math"
	"time"

	"github.com/tremorstack/seisdetect/internal/streamid"
	"github.com/tremorstack/seisdetect/internal/template"
)

// Table is a square matrix of pairwise pick-time offsets, plus an enable
// mask. The matrix is never changed after New; the mask is changed in place
// by Enable, EnableStreams and DisableStreams, and Validate reads it. A
// Table copied by value shares its mask, so internal/linker rebuilds a
// fresh Table from the reference arrivals for every validation and masks
// that copy, leaving the cached reference untouched during queue iteration.
type Table struct {
	arrivals []template.Arrival
	matrix   [][]float64
	enabled  []bool
}

// New builds a Table from an ordered list of arrivals. All rows/columns
// start enabled.
func New(arrivals []template.Arrival) Table {
	n := len(arrivals)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			matrix[i][j] = math.Abs(arrivals[i].Pick.Sub(arrivals[j].Pick).Seconds())
		}
	}
	enabled := make([]bool, n)
	for i := range enabled {
		enabled[i] = true
	}
	cp := make([]template.Arrival, n)
	copy(cp, arrivals)
	return Table{arrivals: cp, matrix: matrix, enabled: enabled}
}

// Size returns the number of arrivals the table was built from.
func (t Table) Size() int { return len(t.arrivals) }

// Arrivals returns a copy of the arrivals backing the table, in table order.
func (t Table) Arrivals() []template.Arrival {
	cp := make([]template.Arrival, len(t.arrivals))
	copy(cp, t.arrivals)
	return cp
}

// At returns M[i][j], the absolute pick-time offset in seconds between
// arrivals i and j, regardless of enable state.
func (t Table) At(i, j int) float64 { return t.matrix[i][j] }

// Enable marks every arrival enabled.
func (t *Table) Enable() {
	for i := range t.enabled {
		t.enabled[i] = true
	}
}

// EnableStreams enables only the rows/columns whose stream id is in ids.
func (t *Table) EnableStreams(ids map[string]bool) {
	for i, a := range t.arrivals {
		t.enabled[i] = ids[a.StreamID.String()]
	}
}

// DisableStreams disables the rows/columns whose stream id is in ids,
// leaving all others untouched.
func (t *Table) DisableStreams(ids map[string]bool) {
	for i, a := range t.arrivals {
		if ids[a.StreamID.String()] {
			t.enabled[i] = false
		}
	}
}

// PickOffset returns the scalar pick offset: max(pick) - min(pick) across
// enabled arrivals. The second return is false if fewer than one arrival
// is enabled.
func (t Table) PickOffset() (time.Duration, bool) {
	var min, max time.Time
	found := false
	for i, a := range t.arrivals {
		if !t.enabled[i] {
			continue
		}
		if !found {
			min, max = a.Pick, a.Pick
			found = true
			continue
		}
		if a.Pick.Before(min) {
			min = a.Pick
		}
		if a.Pick.After(max) {
			max = a.Pick
		}
	}
	if !found {
		return 0, false
	}
	return max.Sub(min), true
}

// Validate compares this table against a reference table within tolerance,
// per spec.md §4.3: for every enabled pair (i, j) in reference, the absolute
// difference between reference[i][j] and candidate[i][j] must not exceed
// tolerance. Streams contributing any violation are collected into
// exceeded. Candidate rows/columns are matched to the reference by stream
// id; arrivals present only in the reference are ignored for this
// comparison (the candidate POT is necessarily a subset during linking).
func Validate(reference, candidate Table, tolerance float64) (ok bool, exceeded map[string]bool) {
	exceeded = map[string]bool{}

	// Index the reference arrivals by stream id for candidate-to-reference
	// alignment.
	refIndex := make(map[string]int, len(reference.arrivals))
	for i, a := range reference.arrivals {
		refIndex[a.StreamID.String()] = i
	}

	n := len(candidate.arrivals)
	for i := 0; i < n; i++ {
		if !candidate.enabled[i] {
			continue
		}
		ri, ok := refIndex[candidate.arrivals[i].StreamID.String()]
		if !ok || !reference.enabled[ri] {
			continue
		}
		for j := 0; j < n; j++ {
			if !candidate.enabled[j] || i == j {
				continue
			}
			rj, ok := refIndex[candidate.arrivals[j].StreamID.String()]
			if !ok || !reference.enabled[rj] {
				continue
			}
			diff := math.Abs(reference.matrix[ri][rj] - candidate.matrix[i][j])
			if diff > tolerance {
				exceeded[candidate.arrivals[i].StreamID.String()] = true
				exceeded[candidate.arrivals[j].StreamID.String()] = true
			}
		}
	}

	return len(exceeded) == 0, exceeded
}

// CheckInvariants verifies the symmetry and self-zero invariants required
// by the testable properties: M[i][j] == M[j][i], M[i][i] == 0. It returns
// an error describing the first violation found, primarily for use in
// tests and as a defensive check at construction boundaries.
func (t Table) CheckInvariants() error {
	n := len(t.matrix)
	for i := 0; i < n; i++ {
		if t.matrix[i][i] != 0 {
			return fmt.Errorf("pot: M[%d][%d] = %v, want 0", i, i, t.matrix[i][i])
		}
		for j := 0; j < n; j++ {
			if t.matrix[i][j] != t.matrix[j][i] {
				return fmt.Errorf("pot: M[%d][%d] = %v != M[%d][%d] = %v",
					i, j, t.matrix[i][j], j, i, t.matrix[j][i])
			}
		}
	}
	return nil
}

// streamSet builds the lookup set EnableStreams/DisableStreams expect from
// a slice of stream ids, a small convenience for callers in internal/linker.
func streamSet(ids []streamid.ID) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id.String()] = true
	}
	return set
}

// StreamSet is the exported form of streamSet, used by the linker to build
// disable sets from a set of registered processor arrivals.
func StreamSet(ids []streamid.ID) map[string]bool { return streamSet(ids) }
