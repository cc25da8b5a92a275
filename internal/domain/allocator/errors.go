package allocator

import (
	"errors"
	"fmt"

	"github.com/okian/blindbox/internal/domain/model"
)

// Sentinel kinds for reveal and allocation errors.
var (
	ErrRevealNotOpen   = errors.New("reveal stage is not open")
	ErrAlreadyRevealed = model.ErrAlreadyRevealed
	ErrAllPoolsFull    = errors.New("no pool has a free slot")
	ErrSlotConflict    = errors.New("slot commit kept conflicting")

	errPoolExhausted = fmt.Errorf("%w: pool exhausted during walk", ErrAllPoolsFull)
)
