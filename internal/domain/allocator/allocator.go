// Package allocator assigns revealed avatars a unique slot inside the rarity
// pools of a pool.Layout.
//
// Common avatars derive an offset from the VRF seed and their token id, then
// take the first pool in declared order that still has room and walk forward
// (wrapping inside that pool) past occupied slots. Other classes use the same
// walk restricted to their own pool. Slot uniqueness is finally enforced by
// the store: a commit that loses a race is retried from the walk.
package allocator

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/blindbox/internal/domain/model"
	"github.com/okian/blindbox/internal/domain/pool"
	"github.com/okian/blindbox/internal/domain/rarity"
	"github.com/okian/blindbox/pkg/logger"
	"github.com/okian/blindbox/pkg/metrics"
)

// Gate reports whether the reveal stage is open.
type Gate interface {
	RevealEnabled(ctx context.Context) (bool, error)
}

// Classifier resolves an avatar's rarity class.
type Classifier interface {
	Classify(ctx context.Context, avatarID uint64) (rarity.Class, error)
}

// Store is the persistence the allocator reads occupancy from and commits to.
type Store interface {
	// GetAvatar returns model.ErrNotFound for unknown tokens.
	GetAvatar(ctx context.Context, tokenID uint64) (model.Avatar, error)
	// CountRevealedInRange counts revealed avatars with a slot in [start, end).
	CountRevealedInRange(ctx context.Context, start, end uint64) (uint64, error)
	// IsSlotRevealed reports whether a revealed avatar holds slot.
	IsSlotRevealed(ctx context.Context, slot uint64) (bool, error)
	// CommitReveal sets slot and revealed=true in one conditional update.
	// It returns model.ErrSlotTaken when another revealed avatar holds slot,
	// model.ErrAlreadyRevealed when the avatar is already revealed and
	// model.ErrNotFound for unknown tokens.
	CommitReveal(ctx context.Context, tokenID, slot uint64) error
}

// Allocation describes a committed slot assignment.
type Allocation struct {
	AvatarID uint64
	Class    rarity.Class
	Slot     uint64
	Natural  pool.Pool
	Selected pool.Pool
	// Steps counts occupied slots skipped by the collision walk.
	Steps int
	// Retries counts commits rejected by the uniqueness constraint.
	Retries int
}

// Allocator computes and persists slots. It keeps no mutable state of its own
// and is safe for concurrent use.
type Allocator struct {
	layout     pool.Layout
	store      Store
	gate       Gate
	classifier Classifier

	naturalPreference bool
	commitRetries     int

	logger logger.Logger
}

// New validates layout and builds an Allocator. The layout (seed included) is
// read-only from here on.
func New(layout pool.Layout, store Store, gate Gate, classifier Classifier, opts ...Option) (*Allocator, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	a := &Allocator{
		layout:        layout,
		store:         store,
		gate:          gate,
		classifier:    classifier,
		commitRetries: defaultCommitRetries,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.Get().Named("allocator")
	}
	return a, nil
}

// Layout returns the layout the allocator was built with.
func (a *Allocator) Layout() pool.Layout { return a.layout }

// Reveal checks the reveal gate and the avatar's revealed flag, in that
// order, classifies the avatar and allocates its slot.
func (a *Allocator) Reveal(ctx context.Context, avatarID uint64) (Allocation, error) {
	open, err := a.gate.RevealEnabled(ctx)
	if err != nil {
		return Allocation{}, fmt.Errorf("reveal gate: %w", unavailable(err))
	}
	if !open {
		return Allocation{}, ErrRevealNotOpen
	}

	avatar, err := a.store.GetAvatar(ctx, avatarID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return Allocation{}, fmt.Errorf("%w: avatar %d", rarity.ErrInvalidReference, avatarID)
	case err != nil:
		return Allocation{}, fmt.Errorf("get avatar %d: %w", avatarID, unavailable(err))
	case avatar.Revealed:
		return Allocation{}, fmt.Errorf("avatar %d: %w", avatarID, ErrAlreadyRevealed)
	}

	class, err := a.classifier.Classify(ctx, avatarID)
	if err != nil {
		return Allocation{}, err
	}
	return a.Allocate(ctx, avatarID, class)
}

// Allocate picks a slot for avatarID and commits it.
func (a *Allocator) Allocate(ctx context.Context, avatarID uint64, class rarity.Class) (Allocation, error) {
	offset := a.layout.Offset(avatarID)
	natural := a.layout.NaturalPool(a.layout.RawSlot(offset))

	alloc := Allocation{AvatarID: avatarID, Class: class, Natural: natural}
	for {
		var (
			selected pool.Pool
			err      error
		)
		if class == rarity.Common {
			selected, err = a.selectPool(ctx, natural)
		} else {
			selected, err = a.reservedPool(ctx, class)
		}
		if err != nil {
			return Allocation{}, err
		}
		alloc.Selected = selected

		err = a.place(ctx, &alloc, offset%selected.Size)
		// A pool that filled up between selection and walk stays full, so a
		// fresh scan either finds another pool or reports ErrAllPoolsFull.
		if errors.Is(err, errPoolExhausted) && class == rarity.Common {
			continue
		}
		if err != nil {
			return Allocation{}, err
		}
		a.record(ctx, alloc)
		return alloc, nil
	}
}

// place walks alloc.Selected from local and commits the first free slot,
// resuming the walk whenever the commit loses a race.
func (a *Allocator) place(ctx context.Context, alloc *Allocation, local uint64) error {
	avatarID := alloc.AvatarID
	selected := alloc.Selected
	for {
		var (
			steps int
			err   error
		)
		local, steps, err = a.walk(ctx, selected, local)
		alloc.Steps += steps
		if err != nil {
			return err
		}
		slot := selected.Start + local

		err = a.store.CommitReveal(ctx, avatarID, slot)
		switch {
		case err == nil:
			alloc.Slot = slot
			return nil
		case errors.Is(err, model.ErrSlotTaken):
			metrics.RecordCommitConflict()
			alloc.Retries++
			a.logger.Warn(ctx, "slot taken between walk and commit",
				logger.Uint64("avatar_id", avatarID),
				logger.Uint64("slot", slot),
				logger.Int("retry", alloc.Retries),
			)
			if alloc.Retries > a.commitRetries {
				return fmt.Errorf("avatar %d: %w after %d attempts", avatarID, ErrSlotConflict, alloc.Retries)
			}
		case errors.Is(err, model.ErrAlreadyRevealed):
			return fmt.Errorf("avatar %d: %w", avatarID, ErrAlreadyRevealed)
		case errors.Is(err, model.ErrNotFound):
			return fmt.Errorf("%w: avatar %d", rarity.ErrInvalidReference, avatarID)
		default:
			return fmt.Errorf("commit avatar %d slot %d: %w", avatarID, slot, unavailable(err))
		}
	}
}

// selectPool scans the pools in declared order and returns the first one
// with room. The natural pool only short-circuits the scan under
// WithNaturalPreference.
func (a *Allocator) selectPool(ctx context.Context, natural pool.Pool) (pool.Pool, error) {
	if a.naturalPreference {
		full, err := a.isFull(ctx, natural)
		if err != nil {
			return pool.Pool{}, err
		}
		if !full {
			return natural, nil
		}
	}
	for _, p := range a.layout.Pools {
		full, err := a.isFull(ctx, p)
		if err != nil {
			return pool.Pool{}, err
		}
		if !full {
			return p, nil
		}
	}
	return pool.Pool{}, ErrAllPoolsFull
}

func (a *Allocator) reservedPool(ctx context.Context, class rarity.Class) (pool.Pool, error) {
	p, ok := a.layout.PoolOf(class)
	if !ok {
		return pool.Pool{}, fmt.Errorf("%w: no pool for %s", rarity.ErrInvalidRarityClass, class)
	}
	full, err := a.isFull(ctx, p)
	if err != nil {
		return pool.Pool{}, err
	}
	if full {
		return pool.Pool{}, fmt.Errorf("%w: %s", ErrAllPoolsFull, p)
	}
	return p, nil
}

// isFull recounts the pool's revealed slots on every call.
func (a *Allocator) isFull(ctx context.Context, p pool.Pool) (bool, error) {
	n, err := a.store.CountRevealedInRange(ctx, p.Start, p.End())
	if err != nil {
		return false, fmt.Errorf("count pool %s: %w", p, unavailable(err))
	}
	metrics.UpdatePoolOccupancy(p.Class.String(), n)
	return n >= p.Size, nil
}

// walk advances local (mod p.Size) until it addresses a slot no revealed
// avatar holds. Visiting every slot of the window without success means the
// pool filled up after it was selected.
func (a *Allocator) walk(ctx context.Context, p pool.Pool, local uint64) (uint64, int, error) {
	for steps := 0; uint64(steps) < p.Size; steps++ {
		slot := p.Start + local
		taken, err := a.store.IsSlotRevealed(ctx, slot)
		if err != nil {
			return 0, steps, fmt.Errorf("check slot %d: %w", slot, unavailable(err))
		}
		if !taken {
			return local, steps, nil
		}
		local = (local + 1) % p.Size
	}
	return 0, int(p.Size), fmt.Errorf("%s: %w", p, errPoolExhausted)
}

func (a *Allocator) record(ctx context.Context, alloc Allocation) {
	metrics.RecordCollisionWalk(alloc.Steps)
	if alloc.Class == rarity.Common && alloc.Selected.Class != alloc.Natural.Class {
		metrics.RecordOverflowReroute(alloc.Natural.Class.String(), alloc.Selected.Class.String())
	}
	a.logger.Debug(ctx, "slot allocated",
		logger.Uint64("avatar_id", alloc.AvatarID),
		logger.String("rarity", alloc.Class.String()),
		logger.String("natural_pool", alloc.Natural.String()),
		logger.String("selected_pool", alloc.Selected.String()),
		logger.Uint64("slot", alloc.Slot),
		logger.Int("walk_steps", alloc.Steps),
		logger.Int("commit_retries", alloc.Retries),
	)
}

func unavailable(err error) error {
	if errors.Is(err, model.ErrStoreUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
}
