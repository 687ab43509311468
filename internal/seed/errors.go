package seed

import "errors"

// ErrInvalidConfig is returned for generator settings that cannot produce contests.
var ErrInvalidConfig = errors.New("invalid seed config")
