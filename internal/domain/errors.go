package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a queue entry or ledger record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIllegalTransition is returned when a status change breaks the sync state machine.
	ErrIllegalTransition = errors.New("illegal sync status transition")

	// ErrNotCancellable is returned when cancelling an entry that is no longer pending.
	ErrNotCancellable = errors.New("only pending reports can be cancelled")

	// ErrLedgerConflict is returned when a local id is recorded against a second remote id.
	ErrLedgerConflict = errors.New("local id already committed under a different remote id")
)

// StorageError reports that local persistence is unavailable or corrupt.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RemoteCommitError reports a failed write to the remote store. It is transient:
// the queue entry stays in place for the next drain.
type RemoteCommitError struct {
	LocalID string
	Err     error
}

func (e *RemoteCommitError) Error() string {
	return fmt.Sprintf("remote commit %s: %v", e.LocalID, e.Err)
}

func (e *RemoteCommitError) Unwrap() error { return e.Err }

// RemoteReadError reports a failed bulk read of canonical reports.
type RemoteReadError struct {
	Err error
}

func (e *RemoteReadError) Error() string {
	return fmt.Sprintf("remote read: %v", e.Err)
}

func (e *RemoteReadError) Unwrap() error { return e.Err }

// FieldError describes one invalid submission field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError reports a malformed submission. It is raised before the
// report reaches the queue.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " (" + f.Rule + ")"
	}
	return "invalid report: " + strings.Join(parts, ", ")
}
