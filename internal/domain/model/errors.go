package model

import "errors"

// Sentinel kinds for model parsing errors.
var (
	ErrInvalidScope  = errors.New("invalid rating scope")
	ErrInvalidPeriod = errors.New("invalid rating period")
)
