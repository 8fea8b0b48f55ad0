package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound     = errors.New("campaign not found")
	ErrValidation   = errors.New("invalid campaign")
	ErrInvalidState = errors.New("campaign is not in the required status")
	ErrConflict     = errors.New("operation conflicts with the campaign's current status")
)
