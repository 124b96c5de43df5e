// Package errkind classifies the detector's operational errors into the
// taxonomy named by the specification, so callers can decide whether a
// failure is a per-record hiccup or a fatal build-time problem.
package errkind

import (
	"errors"
	"fmt"
)

// Kind enumerates the error categories the detection pipeline raises.
type Kind int

const (
	// Unknown is the zero value; never returned by Wrap.
	Unknown Kind = iota
	// InvalidConfig indicates a build-time configuration problem.
	InvalidConfig
	// InvalidStream indicates a malformed stream identifier or record.
	InvalidStream
	// NoData indicates the waveform provider had nothing to return.
	NoData
	// ProviderFailure indicates the waveform provider itself failed.
	ProviderFailure
	// ProcessingFailure indicates filtering/resampling/demeaning failed.
	ProcessingFailure
	// InternalInvariant indicates a programmer error; callers should treat
	// this as unrecoverable for the owning detector.
	InternalInvariant
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case InvalidConfig:
		return "invalid_config"
	case InvalidStream:
		return "invalid_stream"
	case NoData:
		return "no_data"
	case ProviderFailure:
		return "provider_failure"
	case ProcessingFailure:
		return "processing_failure"
	case InternalInvariant:
		return "internal_invariant"
	default:
		return "unknown"
	}
}

// kindError pairs a Kind with the underlying cause.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

func (e *kindError) Unwrap() error { return e.err }

// Wrap annotates err with kind. Wrap(kind, nil) returns nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// New builds a Kind-tagged error directly from a message.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, err: errors.New(msg)}
}

// Of extracts the Kind carried by err, if any was attached via Wrap/New.
func Of(err error) (Kind, bool) {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind, true
	}
	return Unknown, false
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}

// Panic raises an InternalInvariant-tagged error for a condition the
// caller has established can never occur short of a programming mistake.
// Per spec.md §7, invariant violations abort rather than propagate as a
// normal error return.
func Panic(msg string) {
	panic(New(InternalInvariant, msg))
}
