package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted       = errors.New("service not started")
	ErrRevealInProgress = errors.New("reveal already in progress for avatar")
	ErrBusy             = errors.New("too many reveals in flight")
	ErrNotOwner         = errors.New("address does not own avatar")
	ErrInvalidRange     = errors.New("invalid avatar range")
	ErrQueueFull        = errors.New("batch queue is full")
	ErrMetadataPending  = errors.New("revealed metadata not published yet")
)
