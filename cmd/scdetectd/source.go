package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tremorstack/seisdetect/internal/detector"
	"github.com/tremorstack/seisdetect/internal/sample"
	"github.com/tremorstack/seisdetect/internal/streamid"
)

// fileRecord is the on-disk JSON-Lines shape one line of a record file
// decodes into.
type fileRecord struct {
	Stream    string    `json:"stream"`
	Start     time.Time `json:"start"`
	Frequency float64   `json:"frequency"`
	Values    []float64 `json:"values"`
}

// fileSource is a detector.Source that replays a JSON-Lines file of
// sample.Frames, one per line, at the pace the caller drives it — it has
// no FPS pacing of its own, unlike
// References/orion-prototipe/internal/stream/mock.go's synthetic ticker
// loop, because a replay source's job is to hand records to Next on
// demand, not to simulate real-time arrival.
type fileSource struct {
	f       *os.File
	scanner *bufio.Scanner
	line    int
}

// newFileSource opens path for a sequential JSON-Lines read.
func newFileSource(path string) (*fileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", path, err)
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &fileSource{f: f, scanner: sc}, nil
}

// Next decodes the next non-blank line into a detector.Record. It
// returns (nil, false, nil) at end of file, matching detector.Source's
// contract for normal exhaustion rather than an io.EOF error.
func (s *fileSource) Next(ctx context.Context) (*detector.Record, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, false, fmt.Errorf("source: line %d: %w", s.line, err)
			}
			return nil, false, nil
		}
		s.line++
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var fr fileRecord
		if err := json.Unmarshal(line, &fr); err != nil {
			return nil, false, fmt.Errorf("source: line %d: decode: %w", s.line, err)
		}

		id, ok := streamid.Parse(fr.Stream)
		if !ok {
			return nil, false, fmt.Errorf("source: line %d: invalid stream id %q", s.line, fr.Stream)
		}

		rec := &detector.Record{
			StreamID: id,
			Frame: sample.Frame{
				Start:     fr.Start,
				Frequency: fr.Frequency,
				Values:    fr.Values,
			},
		}
		return rec, true, nil
	}
}

// Close releases the underlying file handle.
func (s *fileSource) Close() error {
	return s.f.Close()
}

var _ io.Closer = (*fileSource)(nil)
