package rarity

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/blindbox/internal/domain/model"
)

// NoSoulbound is the link value of avatars minted without a soulbound token.
const NoSoulbound uint64 = 0

// LinkOracle resolves the soulbound token linked to an avatar on chain.
type LinkOracle interface {
	SoulboundLinkOf(ctx context.Context, avatarID uint64) (uint64, error)
}

// SoulboundReader reads soulbound records. A missing record is reported as
// model.ErrNotFound.
type SoulboundReader interface {
	GetSoulbound(ctx context.Context, tokenID uint64) (model.Soulbound, error)
}

// Classifier resolves the rarity class of an avatar. It holds no state and is
// safe for concurrent use.
type Classifier struct {
	links      LinkOracle
	soulbounds SoulboundReader
}

// NewClassifier builds a Classifier over the given collaborators.
func NewClassifier(links LinkOracle, soulbounds SoulboundReader) *Classifier {
	return &Classifier{links: links, soulbounds: soulbounds}
}

// Classify returns the rarity class of avatarID. Avatars without a soulbound
// link are Common.
func (c *Classifier) Classify(ctx context.Context, avatarID uint64) (Class, error) {
	soulboundID, err := c.links.SoulboundLinkOf(ctx, avatarID)
	if err != nil {
		return 0, fmt.Errorf("soulbound link of avatar %d: %w", avatarID, asUnavailable(err))
	}
	if soulboundID == NoSoulbound {
		return Common, nil
	}

	rec, err := c.soulbounds.GetSoulbound(ctx, soulboundID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return 0, fmt.Errorf("%w: soulbound %d linked from avatar %d", ErrInvalidReference, soulboundID, avatarID)
	case err != nil:
		return 0, fmt.Errorf("soulbound %d: %w", soulboundID, asUnavailable(err))
	}

	class, err := Parse(rec.Type)
	if err != nil {
		return 0, fmt.Errorf("soulbound %d: %w", soulboundID, err)
	}
	return class, nil
}

func asUnavailable(err error) error {
	if errors.Is(err, model.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
}
