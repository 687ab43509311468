package leaderboard

import "errors"

// ErrInvalidQuery is returned for a negative min_games or limit.
var ErrInvalidQuery = errors.New("invalid leaderboard query")
