// Package service wires the allocator, the record store and the chain oracle
// into the operations exposed by the HTTP API and the admin CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	revealqueue "github.com/okian/blindbox/internal/adapters/mq/queue"
	workerpool "github.com/okian/blindbox/internal/adapters/mq/worker"
	"github.com/okian/blindbox/internal/adapters/repository"
	"github.com/okian/blindbox/internal/domain/allocator"
	"github.com/okian/blindbox/internal/domain/dedupe"
	"github.com/okian/blindbox/internal/domain/model"
	"github.com/okian/blindbox/internal/domain/pool"
	"github.com/okian/blindbox/internal/domain/rarity"
	"github.com/okian/blindbox/internal/domain/types"
	"github.com/okian/blindbox/pkg/logger"
	"github.com/okian/blindbox/pkg/metrics"
)

// Chain is the read-only view of on-chain state the service needs.
type Chain interface {
	RevealEnabled(ctx context.Context) (bool, error)
	OwnerOf(ctx context.Context, tokenID uint64) (string, error)
	SoulboundLinkOf(ctx context.Context, avatarID uint64) (uint64, error)
}

// Service implements the reveal flow and its supporting lookups.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	store  repository.Store
	chain  Chain
	layout pool.Layout

	// Built on Start
	classifier *rarity.Classifier
	allocator  *allocator.Allocator
	guard      dedupe.Guard
	batchQueue revealqueue.Queue
	workerPool *workerpool.Pool

	batchMu sync.Mutex
	batches map[string]chan model.RevealOutcome

	// Configuration
	workerCount         int
	queueSize           int
	inflightSize        int
	commitRetries       int
	naturalPreference   bool
	metadataBaseURI     string
	placeholderImageURI string

	started bool

	logger logger.Logger
}

// New constructs a Service. Components are built by Start.
func New(store repository.Store, chain Chain, layout pool.Layout, opts ...Option) *Service {
	s := &Service{
		store:         store,
		chain:         chain,
		layout:        layout,
		batches:       make(map[string]chan model.RevealOutcome),
		workerCount:   runtime.NumCPU(),
		queueSize:     4096,
		inflightSize:  10000,
		commitRetries: -1,
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	return s
}

// Start validates the layout and starts the batch workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.classifier = rarity.NewClassifier(s.chain, s.store)

	allocOpts := []allocator.Option{
		allocator.WithNaturalPreference(s.naturalPreference),
		allocator.WithLogger(s.logger.Named("allocator")),
	}
	if s.commitRetries >= 0 {
		allocOpts = append(allocOpts, allocator.WithCommitRetries(s.commitRetries))
	}
	alloc, err := allocator.New(s.layout, s.store, s.chain, s.classifier, allocOpts...)
	if err != nil {
		return fmt.Errorf("build allocator: %w", err)
	}
	s.allocator = alloc

	s.guard = dedupe.NewInMemoryGuard(dedupe.WithMaxSize(s.inflightSize))
	s.batchQueue = revealqueue.NewInMemoryQueue(revealqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.batchQueue, s, s)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "reveal service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Int("inflight_size", s.inflightSize),
		logger.Bool("natural_preference", s.naturalPreference),
	)
	return nil
}

// Stop drains the batch workers. The store is owned by the caller.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping reveal service...")

	err := s.workerPool.Shutdown(ctx)
	s.started = false

	s.logger.Info(ctx, "reveal service stopped")
	return err
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Reveal assigns avatarID its final slot. A second reveal of the same avatar
// while the first is still running fails with ErrRevealInProgress.
func (s *Service) Reveal(ctx context.Context, avatarID uint64) (types.RevealResult, error) {
	if err := s.ready(); err != nil {
		return types.RevealResult{}, err
	}
	start := time.Now()

	switch err := s.guard.Acquire(ctx, avatarID); {
	case errors.Is(err, dedupe.ErrInFlight):
		metrics.RecordReveal("unknown", "in_progress")
		return types.RevealResult{}, fmt.Errorf("avatar %d: %w", avatarID, ErrRevealInProgress)
	case errors.Is(err, dedupe.ErrSaturated):
		metrics.RecordReveal("unknown", "busy")
		return types.RevealResult{}, ErrBusy
	case err != nil:
		return types.RevealResult{}, err
	}
	defer s.guard.Release(ctx, avatarID)

	alloc, err := s.allocator.Reveal(ctx, avatarID)
	metrics.RecordRevealLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		metrics.RecordReveal("unknown", resultLabel(err))
		s.logRevealFailure(ctx, avatarID, err)
		return types.RevealResult{}, err
	}

	metrics.RecordReveal(alloc.Class.String(), "ok")
	s.logger.Info(ctx, "avatar revealed",
		logger.Uint64("avatar_id", avatarID),
		logger.String("rarity", alloc.Class.String()),
		logger.Uint64("slot", alloc.Slot),
	)
	return types.RevealResult{AvatarID: avatarID, Slot: alloc.Slot, Rarity: alloc.Class.String()}, nil
}

func (s *Service) logRevealFailure(ctx context.Context, avatarID uint64, err error) {
	fields := []logger.Field{logger.Uint64("avatar_id", avatarID), logger.Error(err)}
	switch {
	case errors.Is(err, model.ErrStoreUnavailable), errors.Is(err, allocator.ErrSlotConflict):
		s.logger.Error(ctx, "reveal failed", fields...)
	case errors.Is(err, allocator.ErrAllPoolsFull):
		s.logger.Warn(ctx, "reveal rejected", fields...)
	default:
		s.logger.Debug(ctx, "reveal rejected", fields...)
	}
}

// resultLabel maps a reveal error onto the reveals_total result label.
func resultLabel(err error) string {
	switch {
	case errors.Is(err, allocator.ErrRevealNotOpen):
		return "not_open"
	case errors.Is(err, allocator.ErrAlreadyRevealed):
		return "already_revealed"
	case errors.Is(err, rarity.ErrInvalidReference):
		return "invalid_reference"
	case errors.Is(err, rarity.ErrInvalidRarityClass):
		return "invalid_rarity"
	case errors.Is(err, allocator.ErrAllPoolsFull):
		return "pools_full"
	case errors.Is(err, allocator.ErrSlotConflict):
		return "conflict"
	case errors.Is(err, model.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

// RevealSlot reveals avatarID and returns only the slot. It backs the batch
// workers.
func (s *Service) RevealSlot(ctx context.Context, avatarID uint64) (uint64, error) {
	res, err := s.Reveal(ctx, avatarID)
	return res.Slot, err
}

// Report routes a worker outcome back to the RevealRange call waiting on it.
func (s *Service) Report(_ context.Context, job model.RevealJob, outcome model.RevealOutcome) {
	s.batchMu.Lock()
	ch, ok := s.batches[job.BatchID]
	s.batchMu.Unlock()
	if !ok {
		return
	}
	// Buffered for the whole batch, so this never blocks.
	ch <- outcome
}

// RevealRange reveals every avatar in [first, last] through the batch queue
// and returns one outcome per avatar, ordered by avatar id. Per-avatar
// failures are reported in the outcomes; the error is non-nil only when the
// batch itself could not run or ctx ended first.
func (s *Service) RevealRange(ctx context.Context, first, last uint64) ([]model.RevealOutcome, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if last < first || last-first >= uint64(s.queueSize) {
		return nil, fmt.Errorf("%w: [%d, %d] with queue size %d", ErrInvalidRange, first, last, s.queueSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := int(last-first) + 1

	batchID := uuid.NewString()
	results := make(chan model.RevealOutcome, n)
	s.batchMu.Lock()
	s.batches[batchID] = results
	s.batchMu.Unlock()
	defer func() {
		s.batchMu.Lock()
		delete(s.batches, batchID)
		s.batchMu.Unlock()
	}()

	outcomes := make([]model.RevealOutcome, 0, n)
	pending := 0
	for id := first; ; id++ {
		if s.batchQueue.Enqueue(ctx, model.RevealJob{BatchID: batchID, AvatarID: id}) {
			pending++
		} else {
			outcomes = append(outcomes, model.RevealOutcome{AvatarID: id, Err: ErrQueueFull})
		}
		if id == last {
			break
		}
	}
	s.logger.Info(ctx, "batch reveal queued",
		logger.String("batch_id", batchID),
		logger.Uint64("first", first),
		logger.Uint64("last", last),
		logger.Int("queued", pending),
	)

	var err error
wait:
	for ; pending > 0; pending-- {
		select {
		case o := <-results:
			outcomes = append(outcomes, o)
		case <-ctx.Done():
			err = fmt.Errorf("batch %s: %d reveals outstanding: %w", batchID, pending, ctx.Err())
			break wait
		}
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].AvatarID < outcomes[j].AvatarID })
	return outcomes, err
}

// VerifyOwner checks that address owns avatarID. Addresses compare
// case-insensitively.
func (s *Service) VerifyOwner(ctx context.Context, avatarID uint64, address string) error {
	if err := s.ready(); err != nil {
		return err
	}
	owner, err := s.chain.OwnerOf(ctx, avatarID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return fmt.Errorf("%w: avatar %d", rarity.ErrInvalidReference, avatarID)
	case err != nil:
		return fmt.Errorf("owner of avatar %d: %w: %w", avatarID, model.ErrStoreUnavailable, err)
	}
	if !strings.EqualFold(owner, strings.TrimSpace(address)) {
		return fmt.Errorf("avatar %d: %w", avatarID, ErrNotOwner)
	}
	return nil
}

// Register records a freshly minted avatar. Registering a known avatar is a
// no-op.
func (s *Service) Register(ctx context.Context, tokenID uint64) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.store.PutAvatar(ctx, model.Avatar{TokenID: tokenID}); err != nil {
		return fmt.Errorf("register avatar %d: %w", tokenID, err)
	}
	s.logger.Debug(ctx, "avatar registered", logger.Uint64("avatar_id", tokenID))
	return nil
}

// Metadata returns the placeholder for the avatar's rarity class before
// reveal, and the location of its final metadata after.
func (s *Service) Metadata(ctx context.Context, avatarID uint64) (types.Metadata, error) {
	if err := s.ready(); err != nil {
		return types.Metadata{}, err
	}
	avatar, err := s.store.GetAvatar(ctx, avatarID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return types.Metadata{}, fmt.Errorf("%w: avatar %d", rarity.ErrInvalidReference, avatarID)
	case err != nil:
		return types.Metadata{}, err
	}

	if !avatar.Revealed {
		class, err := s.classifier.Classify(ctx, avatarID)
		if err != nil {
			return types.Metadata{}, err
		}
		return s.placeholder(avatarID, class), nil
	}

	slot, _ := avatar.AssignedSlot()
	mapping, err := s.store.GetRevealMapping(ctx, slot)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return types.Metadata{}, fmt.Errorf("avatar %d slot %d: %w", avatarID, slot, ErrMetadataPending)
	case err != nil:
		return types.Metadata{}, err
	}
	return types.Metadata{
		AvatarID: avatarID,
		Revealed: true,
		URI:      joinURI(s.metadataBaseURI, strconv.FormatUint(mapping.MetadataID, 10)+".json"),
	}, nil
}

func (s *Service) placeholder(avatarID uint64, class rarity.Class) types.Metadata {
	name := class.String()
	title := strings.ToUpper(name[:1]) + name[1:]
	md := types.Metadata{
		AvatarID:    avatarID,
		Name:        title + " Cryopod",
		Description: "A sealed " + name + " cryopod. Its avatar is revealed once the reveal stage opens.",
		Rarity:      name,
	}
	if s.placeholderImageURI != "" {
		md.Image = joinURI(s.placeholderImageURI, name+".png")
	}
	return md
}

func joinURI(base, name string) string {
	if base == "" {
		return name
	}
	return strings.TrimRight(base, "/") + "/" + name
}

// PoolStatus reports the live occupancy of every pool in declared order.
func (s *Service) PoolStatus(ctx context.Context) ([]types.PoolStatus, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	out := make([]types.PoolStatus, 0, len(s.layout.Pools))
	for _, p := range s.layout.Pools {
		n, err := s.store.CountRevealedInRange(ctx, p.Start, p.End())
		if err != nil {
			return nil, fmt.Errorf("count pool %s: %w", p, err)
		}
		metrics.UpdatePoolOccupancy(p.Class.String(), n)
		out = append(out, types.PoolStatus{
			Rarity:   p.Class.String(),
			Start:    p.Start,
			Size:     p.Size,
			Revealed: n,
			Full:     n >= p.Size,
		})
	}
	return out, nil
}

// Layout returns the pool layout the service allocates against.
func (s *Service) Layout() pool.Layout { return s.layout }

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":           s.started,
		"workerCount":       s.workerCount,
		"queueSize":         s.queueSize,
		"inflightSize":      s.inflightSize,
		"naturalPreference": s.naturalPreference,
	}

	if s.started {
		ctx := context.Background()
		queueLen := s.batchQueue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["inFlight"] = s.guard.Size()
		metrics.UpdateQueueSize(queueLen)
	}

	return stats
}

// InFlight returns the number of reveals currently running.
func (s *Service) InFlight() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.guard == nil {
		return 0
	}
	return s.guard.Size()
}
