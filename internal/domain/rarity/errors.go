package rarity

import "errors"

// Sentinel kinds for classification errors.
var (
	ErrInvalidReference   = errors.New("invalid soulbound reference")
	ErrInvalidRarityClass = errors.New("invalid rarity class")
)
