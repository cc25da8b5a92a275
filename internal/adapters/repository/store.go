// Package repository persists avatars, soulbound records and reveal mappings.
//
// Every backend enforces that at most one revealed avatar holds a given slot;
// a commit that would break this fails with ErrSlotTaken.
package repository

import (
	"context"

	"github.com/okian/blindbox/internal/domain/model"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Store provides read/write access to the reveal state.
type Store interface {
	// GetAvatar returns ErrNotFound if the token was never registered.
	GetAvatar(ctx context.Context, tokenID uint64) (model.Avatar, error)
	// PutAvatar inserts an avatar record. Existing records are left untouched.
	// A revealed record claims its slot and fails with ErrSlotTaken if
	// another revealed avatar already holds it.
	PutAvatar(ctx context.Context, avatar model.Avatar) error
	// CommitReveal sets slot and revealed=true in one conditional write.
	CommitReveal(ctx context.Context, tokenID, slot uint64) error
	// CountRevealedInRange counts revealed avatars with a slot in [start, end).
	CountRevealedInRange(ctx context.Context, start, end uint64) (uint64, error)
	// IsSlotRevealed reports whether a revealed avatar holds slot.
	IsSlotRevealed(ctx context.Context, slot uint64) (bool, error)

	// GetSoulbound returns ErrNotFound for unknown soulbound tokens.
	GetSoulbound(ctx context.Context, tokenID uint64) (model.Soulbound, error)
	// PutSoulbound inserts or replaces a soulbound record.
	PutSoulbound(ctx context.Context, sb model.Soulbound) error

	// GetRevealMapping returns ErrNotFound when no metadata is bound to slot.
	GetRevealMapping(ctx context.Context, slot uint64) (model.RevealMapping, error)
	// PutRevealMapping inserts or replaces the metadata bound to a slot.
	PutRevealMapping(ctx context.Context, m model.RevealMapping) error

	Close() error
}

func validateAvatar(a model.Avatar) error {
	if a.Revealed && a.Slot == nil {
		return ErrInvalidRecord
	}
	return nil
}
