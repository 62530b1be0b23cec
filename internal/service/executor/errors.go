package executor

import "errors"

var (
	// ErrProposalNotFound is returned when the proposal does not exist
	ErrProposalNotFound = errors.New("proposal not found")

	// ErrExecutionNotFound is returned when no execution matches the key
	ErrExecutionNotFound = errors.New("execution not found")
)
