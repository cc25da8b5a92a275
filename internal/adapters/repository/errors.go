package repository

import (
	"errors"

	"github.com/okian/blindbox/internal/domain/model"
)

// Sentinel kinds for repository errors. The domain sentinels are re-exported
// so adapters and callers can match them without importing model.
var (
	ErrNotFound         = model.ErrNotFound
	ErrSlotTaken        = model.ErrSlotTaken
	ErrAlreadyRevealed  = model.ErrAlreadyRevealed
	ErrStoreUnavailable = model.ErrStoreUnavailable

	ErrInvalidRecord  = errors.New("revealed avatar record without a slot")
	ErrUnknownBackend = errors.New("unknown store backend")
)
