package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSwapFinalized is returned when a terminal swap is asked to take a
	// different terminal state or a different transaction hash.
	ErrSwapFinalized = errors.New("swap already finalized")

	// ErrOutOfRange is returned when a value does not fit its numeric column.
	ErrOutOfRange = errors.New("numeric value out of range")
)
