package recalc

import "errors"

// Sentinel kinds for recalculation errors.
var (
	// ErrDateParse means the earliest contest date could not be read. Nothing
	// has been modified when it is returned.
	ErrDateParse = errors.New("unparsable earliest contest date")
	// ErrSource wraps failures reading contests.
	ErrSource = errors.New("contest source failure")
)
