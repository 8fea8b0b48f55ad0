package tracker

import "errors"

// Sentinel errors for the tracker service layer.
var (
	ErrNotFound = errors.New("recipient not found")
)
