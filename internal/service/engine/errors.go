package engine

import "errors"

var (
	// ErrCampaignNotFound is returned when the campaign does not exist
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrMethodNotFound is returned when no method row matches the name
	ErrMethodNotFound = errors.New("optimization method not found")
)
