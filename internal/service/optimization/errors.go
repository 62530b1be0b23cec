package optimization

import "errors"

// Sentinel errors for the optimization boundary service.
var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrProposalNotFound = errors.New("proposal not found")
	ErrMethodNotFound   = errors.New("method not found")

	// ErrInvalidAction is returned for review actions other than
	// approve/reject; the API maps it to 422.
	ErrInvalidAction = errors.New("action must be 'approve' or 'reject'")
)
