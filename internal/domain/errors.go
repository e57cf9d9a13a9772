package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when a record is not in the state an
	// operation requires. Stores return it from failed compare-and-swap
	// updates.
	ErrInvalidState = errors.New("invalid state")
	// ErrAuditInProgress is returned when a website already has a
	// non-terminal audit.
	ErrAuditInProgress = errors.New("audit already in progress")
	// ErrAlreadyRolledBack is returned when a Change is rolled back twice.
	ErrAlreadyRolledBack = errors.New("change already rolled back")
)
