package repository

import "errors"

// Sentinel kinds for rating store errors.
var (
	ErrNotFound     = errors.New("rating not found")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	// ErrStore wraps every persistence failure. A run that sees it must stop.
	ErrStore = errors.New("rating store failure")
)
