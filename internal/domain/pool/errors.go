package pool

import "errors"

// Sentinel kinds for layout errors.
var (
	ErrInvalidLayout = errors.New("invalid pool layout")
	ErrInvalidSeed   = errors.New("invalid seed")
)
