package verifier

import "errors"

var (
	// ErrProposalNotFound is returned when the proposal does not exist
	ErrProposalNotFound = errors.New("proposal not found")

	// ErrLearningNotFound is returned when no verified learning exists
	ErrLearningNotFound = errors.New("learning not found")

	// ErrMethodNotFound is returned when the proposal's method row is gone
	ErrMethodNotFound = errors.New("optimization method not found")
)
