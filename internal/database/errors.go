package database

import "errors"

var (
	// ErrNotAvailable is the normal "no capacity / window taken" outcome
	// of a claim attempt. Callers branch on it, it is not a failure.
	ErrNotAvailable = errors.New("resource not available")

	ErrResourceNotFound    = errors.New("resource not found")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrAlreadyProcessed is returned when a second writer tries to move
	// a pending transaction that already reached a terminal status.
	ErrAlreadyProcessed = errors.New("transaction already processed")

	// ErrInvalidTransition is returned when a status update does not match
	// the expected current status (terminal or out-of-order move).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicate covers unique constraint violations surfaced as
	// conflicts: duplicate tax name, duplicate webhook event id.
	ErrDuplicate = errors.New("duplicate record")
)
