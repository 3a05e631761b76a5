package store

import (
	"errors"
	"fmt"

	apperrors "github.com/maruel/recipebook/internal/errors"
)

// ErrClosed is wrapped in the PersistenceError of a mutation issued after Close.
var ErrClosed = errors.New("store is closed")

// CorruptStateError is returned by Load when the persisted blob cannot be
// decoded.
type CorruptStateError struct {
	// Key is the blob key that failed to decode.
	Key string
	// QuarantineKey holds a copy of the undecodable blob. Empty if the copy
	// could not be written.
	QuarantineKey string
	Err           error
}

func (e *CorruptStateError) Error() string {
	if e.QuarantineKey != "" {
		return fmt.Sprintf("corrupt state under %q (copied to %q): %v", e.Key, e.QuarantineKey, e.Err)
	}
	return fmt.Sprintf("corrupt state under %q: %v", e.Key, e.Err)
}

func (e *CorruptStateError) Unwrap() error {
	return e.Err
}

// Code implements apperrors.Coded.
func (e *CorruptStateError) Code() apperrors.ErrorCode {
	return apperrors.ErrCorruptState
}

// PersistenceError reports a failed blob store operation.
type PersistenceError struct {
	// Op is one of "get", "set", "remove" or "encode".
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Code implements apperrors.Coded.
func (e *PersistenceError) Code() apperrors.ErrorCode {
	return apperrors.ErrStorageError
}
