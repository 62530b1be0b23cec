package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound  = errors.New("campaign not found")
	ErrNotActive = errors.New("campaign is not active")
)
