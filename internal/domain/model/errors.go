package model

import "errors"

// ErrStoreUnavailable marks transport or IO failures from the record store or
// the chain oracle. Callers may retry; the reveal path never does.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrNotFound is returned by record lookups when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyRevealed is returned when an avatar has already been assigned a slot.
var ErrAlreadyRevealed = errors.New("avatar already revealed")

// ErrSlotTaken is returned by a commit that would give a slot to a second
// revealed avatar.
var ErrSlotTaken = errors.New("slot already taken")
