// Package chain provides the read-only view of on-chain state the reveal flow
// depends on: the reveal stage flag, token ownership and soulbound links.
package chain

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/okian/blindbox/internal/domain/model"
)

// ErrUnknownToken is returned by OwnerOf for tokens that were never minted.
var ErrUnknownToken = errors.New("token has no owner")

// Static is an in-memory oracle seeded from configuration. Setters let the
// admin tooling and tests move it through stages.
type Static struct {
	mu            sync.RWMutex
	revealEnabled bool
	links         map[uint64]uint64
	owners        map[uint64]string
}

// Option configures a Static oracle.
type Option func(*Static)

// WithRevealEnabled sets the initial reveal stage flag.
func WithRevealEnabled(enabled bool) Option {
	return func(s *Static) { s.revealEnabled = enabled }
}

// WithSoulboundLinks seeds avatar -> soulbound token links.
func WithSoulboundLinks(links map[uint64]uint64) Option {
	return func(s *Static) {
		for avatar, sb := range links {
			s.links[avatar] = sb
		}
	}
}

// WithOwners seeds token owners. Addresses are stored lower-cased.
func WithOwners(owners map[uint64]string) Option {
	return func(s *Static) {
		for token, addr := range owners {
			s.owners[token] = strings.ToLower(addr)
		}
	}
}

// NewStatic creates a Static oracle.
func NewStatic(opts ...Option) *Static {
	s := &Static{
		links:  make(map[uint64]uint64),
		owners: make(map[uint64]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RevealEnabled reports whether the reveal stage is open.
func (s *Static) RevealEnabled(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revealEnabled, nil
}

// OwnerOf returns the lower-cased owner address of a token.
func (s *Static) OwnerOf(ctx context.Context, tokenID uint64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.owners[tokenID]
	if !ok {
		return "", errors.Join(ErrUnknownToken, model.ErrNotFound)
	}
	return owner, nil
}

// SoulboundLinkOf returns the soulbound token linked to avatarID, or 0 when
// the avatar has none.
func (s *Static) SoulboundLinkOf(ctx context.Context, avatarID uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.links[avatarID], nil
}

// SetRevealEnabled flips the reveal stage flag.
func (s *Static) SetRevealEnabled(enabled bool) {
	s.mu.Lock()
	s.revealEnabled = enabled
	s.mu.Unlock()
}

// SetSoulboundLink links avatarID to a soulbound token; 0 removes the link.
func (s *Static) SetSoulboundLink(avatarID, soulboundID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if soulboundID == 0 {
		delete(s.links, avatarID)
		return
	}
	s.links[avatarID] = soulboundID
}

// SetOwner records the owner of a token.
func (s *Static) SetOwner(tokenID uint64, owner string) {
	s.mu.Lock()
	s.owners[tokenID] = strings.ToLower(owner)
	s.mu.Unlock()
}
