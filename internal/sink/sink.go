// Package sink provides the non-blocking result channel the detector
// pushes Detections into. It is modeled directly on modules/framebus's
// drop-on-full Publish: "drop detections, never queue" — a slow or absent
// consumer must never stall the detector's feed path (spec.md §6:
// "Sink — Offer(Detection); never blocks").
package sink

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/tremorstack/seisdetect/internal/detector"
)

// ErrSinkClosed is returned by Offer after Close.
var ErrSinkClosed = errors.New("sink: offer on closed sink")

// Sink is the detector's result-draining contract. Offer must never block
// the caller.
type Sink interface {
	Offer(d detector.Detection) error
}

// Stats is a snapshot of a ChannelSink's delivery counters.
type Stats struct {
	Offered uint64
	Sent    uint64
	Dropped uint64
}

// ChannelSink is a Sink backed by a single buffered channel. Detections
// that arrive while the channel is full are dropped and counted rather
// than blocking the detector, mirroring framebus.Bus.Publish's drop
// policy but for a single consumer instead of a fan-out set.
type ChannelSink struct {
	ch chan detector.Detection

	mu     sync.RWMutex
	closed bool

	offered atomic.Uint64
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewChannelSink builds a ChannelSink with the given buffer capacity.
func NewChannelSink(capacity int) *ChannelSink {
	return &ChannelSink{ch: make(chan detector.Detection, capacity)}
}

// Offer attempts to enqueue d without blocking. If the buffer is full the
// detection is dropped and counted, not an error — only a closed sink
// returns an error, since Offer must never block the detector's feed path.
func (s *ChannelSink) Offer(d detector.Detection) error {
	s.offered.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSinkClosed
	}

	select {
	case s.ch <- d:
		s.sent.Add(1)
	default:
		s.dropped.Add(1)
	}
	return nil
}

// Detections returns the channel consumers should range over to drain
// emitted Detections.
func (s *ChannelSink) Detections() <-chan detector.Detection { return s.ch }

// Stats returns a snapshot of the sink's delivery counters.
func (s *ChannelSink) Stats() Stats {
	return Stats{
		Offered: s.offered.Load(),
		Sent:    s.sent.Load(),
		Dropped: s.dropped.Load(),
	}
}

// Close marks the sink closed; subsequent Offer calls return
// ErrSinkClosed instead of enqueuing. It does not close the underlying
// channel, so a consumer already ranging over Detections() drains
// whatever was buffered before observing no further sends.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
