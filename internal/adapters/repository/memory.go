package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/okian/blindbox/internal/domain/model"
	"github.com/okian/blindbox/pkg/metrics"
)

// MemoryStore keeps the reveal state in process. Revealed slots are kept in
// a sorted slice so range counts are two binary searches.
type MemoryStore struct {
	mu         sync.RWMutex
	avatars    map[uint64]model.Avatar
	holders    map[uint64]uint64 // slot -> token
	slots      []uint64          // sorted keys of holders
	soulbounds map[uint64]model.Soulbound
	mappings   map[uint64]uint64

	period time.Duration
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store and starts its occupancy publisher,
// which runs until ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &MemoryStore{
		avatars:    make(map[uint64]model.Avatar),
		holders:    make(map[uint64]uint64),
		soulbounds: make(map[uint64]model.Soulbound),
		mappings:   make(map[uint64]uint64),
		period:     cfg.occupancyPeriod,
		cancel:     cancel,
	}
	s.wg.Add(1)
	go s.publishOccupancy(ctx)
	return s
}

func (s *MemoryStore) publishOccupancy(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			n := len(s.slots)
			s.mu.RUnlock()
			metrics.UpdateRevealedSlots(n)
		}
	}
}

// Close stops the occupancy publisher. The data stays readable.
func (s *MemoryStore) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func copyAvatar(a model.Avatar) model.Avatar {
	if a.Slot != nil {
		slot := *a.Slot
		a.Slot = &slot
	}
	return a
}

// GetAvatar implements Store.
func (s *MemoryStore) GetAvatar(_ context.Context, tokenID uint64) (avatar model.Avatar, err error) {
	defer observe(BackendMemory, "get_avatar", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.avatars[tokenID]
	if !ok {
		return model.Avatar{}, ErrNotFound
	}
	return copyAvatar(a), nil
}

// PutAvatar implements Store.
func (s *MemoryStore) PutAvatar(_ context.Context, avatar model.Avatar) (err error) {
	defer observe(BackendMemory, "put_avatar", time.Now(), &err)
	if err := validateAvatar(avatar); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.avatars[avatar.TokenID]; ok {
		return nil
	}
	if avatar.Revealed {
		if _, taken := s.holders[*avatar.Slot]; taken {
			return ErrSlotTaken
		}
		s.claim(*avatar.Slot, avatar.TokenID)
	}
	s.avatars[avatar.TokenID] = copyAvatar(avatar)
	return nil
}

// CommitReveal implements Store.
func (s *MemoryStore) CommitReveal(_ context.Context, tokenID, slot uint64) (err error) {
	defer observe(BackendMemory, "commit_reveal", time.Now(), &err)
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.avatars[tokenID]
	switch {
	case !ok:
		return ErrNotFound
	case a.Revealed:
		return ErrAlreadyRevealed
	}
	if _, taken := s.holders[slot]; taken {
		return ErrSlotTaken
	}
	s.claim(slot, tokenID)
	a.Slot = &slot
	a.Revealed = true
	s.avatars[tokenID] = a
	return nil
}

// claim must be called with mu held.
func (s *MemoryStore) claim(slot, tokenID uint64) {
	s.holders[slot] = tokenID
	i, _ := slices.BinarySearch(s.slots, slot)
	s.slots = slices.Insert(s.slots, i, slot)
}

// CountRevealedInRange implements Store.
func (s *MemoryStore) CountRevealedInRange(_ context.Context, start, end uint64) (n uint64, err error) {
	defer observe(BackendMemory, "count_revealed", time.Now(), &err)
	if end <= start {
		return 0, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo, _ := slices.BinarySearch(s.slots, start)
	hi, _ := slices.BinarySearch(s.slots, end)
	return uint64(hi - lo), nil
}

// IsSlotRevealed implements Store.
func (s *MemoryStore) IsSlotRevealed(_ context.Context, slot uint64) (taken bool, err error) {
	defer observe(BackendMemory, "is_slot_revealed", time.Now(), &err)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, taken = s.holders[slot]
	return taken, nil
}

// GetSoulbound implements Store.
func (s *MemoryStore) GetSoulbound(_ context.Context, tokenID uint64) (model.Soulbound, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sb, ok := s.soulbounds[tokenID]
	if !ok {
		return model.Soulbound{}, ErrNotFound
	}
	return sb, nil
}

// PutSoulbound implements Store.
func (s *MemoryStore) PutSoulbound(_ context.Context, sb model.Soulbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.soulbounds[sb.TokenID] = sb
	return nil
}

// GetRevealMapping implements Store.
func (s *MemoryStore) GetRevealMapping(_ context.Context, slot uint64) (model.RevealMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.mappings[slot]
	if !ok {
		return model.RevealMapping{}, ErrNotFound
	}
	return model.RevealMapping{Slot: slot, MetadataID: id}, nil
}

// PutRevealMapping implements Store.
func (s *MemoryStore) PutRevealMapping(_ context.Context, m model.RevealMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[m.Slot] = m.MetadataID
	return nil
}
