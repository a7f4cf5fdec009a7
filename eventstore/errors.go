package eventstore

import (
	"errors"
	"fmt"

	"github.com/arkflow-dev/reactor/ids"
)

// StoreError is the base error type for event store operations, embedded by
// every concrete error kind below. Modeled directly on the teacher's
// EventStoreError (pkg/dcb/errors.go).
type StoreError struct {
	Op  string // operation that failed, e.g. "append_events"
	Err error  // underlying error, if any
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *StoreError) Unwrap() error { return e.Err }

// ConcurrencyConflictError is returned by AppendEvents when the stream's
// current version differs from the expected version (spec §4.5, §7).
type ConcurrencyConflictError struct {
	StoreError
	Stream   ids.StreamID
	Expected ids.Version
	Actual   ids.Version
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s: stream %q: expected version %s, actual %s", e.Op, e.Stream, e.Expected, e.Actual)
}

// InvalidInputError reports a caller bug: an empty event batch, an empty
// StreamID, or otherwise malformed input. Not transient; surface it.
type InvalidInputError struct {
	StoreError
	Field string
	Value string
}

// StorageBackendError wraps a transient I/O failure from the underlying
// storage backend. Callers should retry with backoff (see the resilience
// package) and escalate after exhausting retries.
type StorageBackendError struct {
	StoreError
	Resource string
}

// IsConcurrencyConflict reports whether err is, or wraps, a
// ConcurrencyConflictError.
func IsConcurrencyConflict(err error) bool {
	var e *ConcurrencyConflictError
	return errors.As(err, &e)
}

// IsInvalidInput reports whether err is, or wraps, an InvalidInputError.
func IsInvalidInput(err error) bool {
	var e *InvalidInputError
	return errors.As(err, &e)
}

// IsStorageBackend reports whether err is, or wraps, a
// StorageBackendError.
func IsStorageBackend(err error) bool {
	var e *StorageBackendError
	return errors.As(err, &e)
}

// AsConcurrencyConflict extracts a ConcurrencyConflictError from err's
// chain.
func AsConcurrencyConflict(err error) (*ConcurrencyConflictError, bool) {
	var e *ConcurrencyConflictError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
