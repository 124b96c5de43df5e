// Package fingerprint provides canonical, hash-combined identities for
// template results and processing configurations, plus UUID allocation for
// linker events and detections. It replaces pointer identity, which the
// design notes explicitly call out as unsafe to rely on (spec.md §9).
package fingerprint

import (
	"fmt"
	"hash/fnv"
	"math"

	"github.com/google/uuid"
)

// combiner accumulates a sequence of values into a single 64-bit digest,
// in the spirit of boost::hash_combine but built on the standard library's
// FNV-1a, since no hashing library appears anywhere in the example corpus.
type combiner struct {
	h uint64
}

func newCombiner() *combiner {
	f := fnv.New64a()
	return &combiner{h: f.Sum64()}
}

func (c *combiner) addString(s string) *combiner {
	f := fnv.New64a()
	f.Write([]byte(s))
	c.combine(f.Sum64())
	return c
}

func (c *combiner) addUint64(v uint64) *combiner {
	c.combine(v)
	return c
}

// combine folds v into the running hash the way boost::hash_combine does:
// v plus the golden-ratio constant plus left- and right-shifted copies of
// the running hash, XORed in, to avoid the cancellation a plain XOR would
// suffer from.
func (c *combiner) combine(v uint64) {
	c.h ^= v + 0x9e3779b97f4a7c15 + (c.h << 6) + (c.h >> 2)
}

func (c *combiner) sum() uint64 { return c.h }

// ArrivalCoefficient returns the canonical identity of a template match
// result: hash(streamID, phase, pickTimeUnixNanos, round(coefficient, 12)).
// Rounding the coefficient to 12 decimal places absorbs floating-point
// drift between re-derivations of the same match.
func ArrivalCoefficient(streamID, phase string, pickUnixNano int64, coefficient float64) uint64 {
	rounded := math.Round(coefficient*1e12) / 1e12
	c := newCombiner()
	c.addString(streamID)
	c.addString(phase)
	c.addUint64(uint64(pickUnixNano))
	c.addUint64(math.Float64bits(rounded))
	return c.sum()
}

// ProcessingConfigKey returns a deterministic cache key for a waveform
// processing configuration, mirroring Cached::MakeCacheKey in the original
// scdetect implementation.
func ProcessingConfigKey(filterString string, filterMargin, targetFrequency float64, demean bool) string {
	c := newCombiner()
	c.addString(filterString)
	c.addUint64(math.Float64bits(filterMargin))
	c.addUint64(math.Float64bits(targetFrequency))
	if demean {
		c.addUint64(1)
	} else {
		c.addUint64(0)
	}
	return fmt.Sprintf("%016x", c.sum())
}

// NewEventID allocates a fresh identifier for a linker event or detection.
func NewEventID() string {
	return uuid.NewString()
}
