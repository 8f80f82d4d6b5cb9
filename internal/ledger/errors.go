package ledger

import (
	"errors"
	"fmt"

	"swap-ledger/internal/storage"
)

// ValidationError reports malformed input. It is returned before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match storage.ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return storage.ErrInvalidInput
}

// NotFoundError reports an unknown swap, user or group.
type NotFoundError struct {
	Kind string // "swap", "user", "group", "member"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Unwrap lets callers match storage.ErrNotFound.
func (e *NotFoundError) Unwrap() error {
	return storage.ErrNotFound
}

// ConflictError reports a write refused by existing state: a swap that is
// already final, or a group ID that is taken.
type ConflictError struct {
	ID     string
	Reason string
	Err    error // storage sentinel; nil means storage.ErrSwapFinalized
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %q: %s", e.ID, e.Reason)
}

// Unwrap lets callers match the storage sentinel behind the conflict.
func (e *ConflictError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return storage.ErrSwapFinalized
}

// PersistenceError wraps any other datastore failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// mapStoreError translates storage sentinels into the ledger taxonomy.
func mapStoreError(op, kind, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return &NotFoundError{Kind: kind, ID: id}
	case errors.Is(err, storage.ErrSwapFinalized):
		return &ConflictError{ID: id, Reason: "already finalized", Err: storage.ErrSwapFinalized}
	case errors.Is(err, storage.ErrDuplicateKey):
		return &ConflictError{ID: id, Reason: "already exists", Err: storage.ErrDuplicateKey}
	default:
		return &PersistenceError{Op: op, Err: err}
	}
}

// errorKind names the taxonomy class of err for metrics.
func errorKind(err error) string {
	var (
		ve *ValidationError
		ne *NotFoundError
		ce *ConflictError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &ne):
		return "not_found"
	case errors.As(err, &ce):
		return "conflict"
	default:
		return "persistence"
	}
}
