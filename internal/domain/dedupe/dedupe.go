// Package dedupe guards against the same avatar being revealed twice at the
// same time within one process.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/blindbox/pkg/metrics"
)

// Guard tracks avatars with a reveal in flight.
type Guard interface {
	// Acquire marks avatarID as in flight. It returns ErrInFlight when the
	// avatar is already held and ErrSaturated when the bounded guard is full.
	Acquire(ctx context.Context, avatarID uint64) error

	// Release ends the in-flight period started by a successful Acquire.
	// Releasing an avatar that is not held is a no-op.
	Release(ctx context.Context, avatarID uint64)

	Size() int64
}

// inMemoryGuard implements Guard with a set under a mutex.
// For bounded mode (maxSize > 0) Acquire refuses new avatars once maxSize
// are held; entries are never evicted while in flight.
// For unbounded mode (maxSize <= 0) there is no limit.
type inMemoryGuard struct {
	mu       sync.Mutex
	inFlight map[uint64]struct{}
	maxSize  int
	size     atomic.Int64
}

// NewInMemoryGuard creates a new in-memory guard with configuration options.
func NewInMemoryGuard(opts ...Option) Guard {
	g := &inMemoryGuard{
		maxSize: 10000, // default max size
	}

	for _, opt := range opts {
		opt(g)
	}

	g.inFlight = make(map[uint64]struct{})
	return g
}

// Acquire implements Guard.
func (g *inMemoryGuard) Acquire(ctx context.Context, avatarID uint64) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.inFlight[avatarID]; held {
		return ErrInFlight
	}
	if g.maxSize > 0 && len(g.inFlight) >= g.maxSize {
		metrics.RecordErrorByType("inflight_saturated", "warning")
		return ErrSaturated
	}
	g.inFlight[avatarID] = struct{}{}
	g.size.Add(1)
	return nil
}

// Release implements Guard.
func (g *inMemoryGuard) Release(_ context.Context, avatarID uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.inFlight[avatarID]; held {
		delete(g.inFlight, avatarID)
		g.size.Add(-1)
	}
}

// Size returns the number of avatars currently held.
func (g *inMemoryGuard) Size() int64 {
	return g.size.Load()
}
