package scans

import (
	"errors"
	"fmt"
)

// ErrNotFound matches any *NotFoundError via errors.Is.
var ErrNotFound = errors.New("scan not found")

// NotFoundError means a referenced scan id is absent. It is a logic error and
// must not be swallowed.
type NotFoundError struct {
	ScanID ScanID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("scan not found: %s", e.ScanID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StorageError wraps a persistence failure (connection, disk, constraint).
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// EngineError wraps a failure of the external scanning engine during a phase.
type EngineError struct {
	Phase string
	Err   error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine: %s: %v", e.Phase, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// ErrNoAlertsPersisted is reported when the engine returned alerts but none
// of them could be stored.
var ErrNoAlertsPersisted = errors.New("no alert could be persisted")
