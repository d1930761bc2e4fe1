package allocator

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a failure returned from the allocator package, so
// that callers (an HTTP handler, a CLI, a cluster-state publisher) can map
// it to the right external response without parsing error strings.
type ErrorKind int

const (
	// KindInvalidInput means the caller supplied a malformed or
	// internally-inconsistent ClusterState or event batch.
	KindInvalidInput ErrorKind = iota
	// KindInvariantViolation means the allocation core itself produced an
	// inconsistent result; this is always a programming error, never a
	// caller mistake.
	KindInvariantViolation
	// KindCommandRejected means a user-issued AllocationCommand could not
	// be legally applied to the current routing table.
	KindCommandRejected
	// KindUnavailable means the operation could not proceed because
	// required information (e.g. shard store data) is not yet available.
	KindUnavailable
	// KindThrottled means the operation was deferred by a decider rather
	// than rejected outright.
	KindThrottled
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindInvariantViolation:
		return "InvariantViolation"
	case KindCommandRejected:
		return "CommandRejected"
	case KindUnavailable:
		return "Unavailable"
	case KindThrottled:
		return "Throttled"
	default:
		return "Unknown"
	}
}

// AllocationError is the concrete error type returned by this package's
// exported entry points. The underlying cause, if any, is preserved via
// pkg/errors wrapping and is reachable with errors.Cause / errors.Unwrap.
type AllocationError struct {
	Kind ErrorKind
	err  error
}

func (e *AllocationError) Error() string { return e.err.Error() }
func (e *AllocationError) Cause() error  { return errors.Cause(e.err) }
func (e *AllocationError) Unwrap() error { return e.err }

func newError(kind ErrorKind, err error) *AllocationError {
	return &AllocationError{Kind: kind, err: err}
}

func errInvariant(format string, args ...interface{}) error {
	return newError(KindInvariantViolation, errors.New(fmt.Sprintf(format, args...)))
}

func errInvalidInput(format string, args ...interface{}) error {
	return newError(KindInvalidInput, errors.New(fmt.Sprintf(format, args...)))
}

func errCommandRejected(format string, args ...interface{}) error {
	return newError(KindCommandRejected, errors.New(fmt.Sprintf(format, args...)))
}

func errUnavailable(format string, args ...interface{}) error {
	return newError(KindUnavailable, errors.New(fmt.Sprintf(format, args...)))
}

// wrapf wraps err with additional context, preserving its Cause chain. It
// mirrors the teacher's idiom of errors.Wrapf at every layer boundary.
func wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}
