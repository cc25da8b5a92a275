package dedupe

import "errors"

// Sentinel kinds for guard errors.
var (
	ErrInFlight  = errors.New("avatar reveal already in flight")
	ErrSaturated = errors.New("too many reveals in flight")
)
