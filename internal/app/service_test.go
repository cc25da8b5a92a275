package service_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/blindbox/internal/adapters/chain"
	"github.com/okian/blindbox/internal/adapters/repository"
	service "github.com/okian/blindbox/internal/app"
	"github.com/okian/blindbox/internal/domain/allocator"
	"github.com/okian/blindbox/internal/domain/model"
	"github.com/okian/blindbox/internal/domain/pool"
	"github.com/okian/blindbox/internal/domain/rarity"
	"github.com/okian/blindbox/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// testLayout uses a small seed and a 15-wide overflow domain so that
// avatar id N lands on offset (100+N) mod 15.
func testLayout() pool.Layout {
	return pool.Layout{
		Pools:    pool.DefaultPools(),
		Overflow: pool.OverflowDomain{Start: 45, Size: 15},
		Seed:     big.NewInt(100),
	}
}

type fixture struct {
	store  *repository.MemoryStore
	oracle *chain.Static
	svc    *service.Service
}

func newFixture(ctx context.Context, ids []uint64, opts ...service.Option) fixture {
	store := repository.NewMemoryStore(ctx)
	for _, id := range ids {
		So(store.PutAvatar(ctx, model.Avatar{TokenID: id}), ShouldBeNil)
	}
	oracle := chain.NewStatic(chain.WithRevealEnabled(true))
	svc := service.New(store, oracle, testLayout(), opts...)
	So(svc.Start(ctx), ShouldBeNil)
	return fixture{store: store, oracle: oracle, svc: svc}
}

func (f fixture) close(ctx context.Context) {
	_ = f.svc.Stop(ctx)
	_ = f.store.Close()
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		svc := service.New(store, chain.NewStatic(), testLayout())

		Convey("Then reveals are refused", func() {
			_, err := svc.Reveal(ctx, 1)
			So(err, ShouldEqual, service.ErrNotStarted)
		})

		Convey("And registration, ownership and pool queries are refused without panicking", func() {
			So(func() {
				So(svc.Register(ctx, 1), ShouldEqual, service.ErrNotStarted)
				So(svc.VerifyOwner(ctx, 1, "0xabc"), ShouldEqual, service.ErrNotStarted)
				status, err := svc.PoolStatus(ctx)
				So(err, ShouldEqual, service.ErrNotStarted)
				So(status, ShouldBeNil)
				_, err = svc.Metadata(ctx, 1)
				So(err, ShouldEqual, service.ErrNotStarted)
				_, err = svc.RevealRange(ctx, 1, 2)
				So(err, ShouldEqual, service.ErrNotStarted)
			}, ShouldNotPanic)
		})

		Convey("And nothing is written to the store", func() {
			_ = svc.Register(ctx, 1)
			_, err := store.GetAvatar(ctx, 1)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("And stats report it as stopped", func() {
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("And stopping it is a no-op", func() {
			So(svc.Stop(ctx), ShouldBeNil)
		})
	})

	Convey("Given a layout without a seed", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		layout := testLayout()
		layout.Seed = nil
		svc := service.New(store, chain.NewStatic(), layout)

		Convey("Then start fails with an invalid layout", func() {
			So(errors.Is(svc.Start(ctx), pool.ErrInvalidLayout), ShouldBeTrue)
		})
	})

	Convey("Given a started service", t, func() {
		ctx := context.Background()
		f := newFixture(ctx, nil, service.WithWorkerCount(2), service.WithQueueSize(64))

		Convey("Then stats describe its configuration", func() {
			stats := f.svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["workerCount"], ShouldEqual, 2)
			So(stats["queueSize"], ShouldEqual, 64)
			So(stats["queueLength"], ShouldEqual, 0)
		})

		Convey("When it is stopped", func() {
			So(f.svc.Stop(ctx), ShouldBeNil)

			Convey("Then it reports stopped", func() {
				So(f.svc.GetStats()["started"], ShouldEqual, false)
			})
		})

		Reset(func() { f.close(ctx) })
	})
}

func TestService_Reveal(t *testing.T) {
	Convey("Given a started service with registered avatars", t, func() {
		ctx := context.Background()
		f := newFixture(ctx, []uint64{7, 8, 9})

		Convey("When a common avatar is revealed", func() {
			res, err := f.svc.Reveal(ctx, 7)

			Convey("Then it takes the first pool with room", func() {
				So(err, ShouldBeNil)
				So(res.AvatarID, ShouldEqual, 7)
				So(res.Slot, ShouldEqual, 2)
				So(res.Rarity, ShouldEqual, "common")
			})

			Convey("And the store records the slot", func() {
				a, err := f.store.GetAvatar(ctx, 7)
				So(err, ShouldBeNil)
				So(a.Revealed, ShouldBeTrue)
				slot, ok := a.AssignedSlot()
				So(ok, ShouldBeTrue)
				So(slot, ShouldEqual, 2)
			})

			Convey("And a second reveal is rejected", func() {
				_, err := f.svc.Reveal(ctx, 7)
				So(errors.Is(err, allocator.ErrAlreadyRevealed), ShouldBeTrue)
			})
		})

		Convey("When the reveal stage is closed", func() {
			f.oracle.SetRevealEnabled(false)
			_, err := f.svc.Reveal(ctx, 8)

			Convey("Then the reveal is refused", func() {
				So(errors.Is(err, allocator.ErrRevealNotOpen), ShouldBeTrue)
			})
		})

		Convey("When an epic avatar is revealed", func() {
			So(f.store.PutSoulbound(ctx, model.Soulbound{TokenID: 500, Type: "epic"}), ShouldBeNil)
			f.oracle.SetSoulboundLink(9, 500)
			res, err := f.svc.Reveal(ctx, 9)

			Convey("Then it lands in the epic pool", func() {
				So(err, ShouldBeNil)
				So(res.Rarity, ShouldEqual, "epic")
				So(res.Slot, ShouldBeBetweenOrEqual, 15, 29)
			})
		})

		Convey("When the soulbound link is dangling", func() {
			f.oracle.SetSoulboundLink(9, 501)
			_, err := f.svc.Reveal(ctx, 9)

			Convey("Then the reveal fails with an invalid reference", func() {
				So(errors.Is(err, rarity.ErrInvalidReference), ShouldBeTrue)
			})
		})

		Convey("When an unregistered avatar is revealed", func() {
			_, err := f.svc.Reveal(ctx, 404)

			Convey("Then the reveal fails with an invalid reference", func() {
				So(errors.Is(err, rarity.ErrInvalidReference), ShouldBeTrue)
			})
		})

		Reset(func() { f.close(ctx) })
	})
}

func TestService_RevealConcurrency(t *testing.T) {
	Convey("Given sixty registered avatars and a sixty slot layout", t, func() {
		ctx := context.Background()
		ids := make([]uint64, 0, 61)
		for id := uint64(1); id <= 61; id++ {
			ids = append(ids, id)
		}
		f := newFixture(ctx, ids, service.WithCommitRetries(64))

		Convey("When every avatar reveals at once", func() {
			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				slots = make(map[uint64]uint64)
			)
			for id := uint64(1); id <= 60; id++ {
				wg.Add(1)
				go func(id uint64) {
					defer wg.Done()
					res, err := f.svc.Reveal(ctx, id)
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						slots[res.Slot] = id
					}
				}(id)
			}
			wg.Wait()

			Convey("Then each gets a distinct slot", func() {
				So(len(slots), ShouldEqual, 60)
				for slot := range slots {
					So(slot, ShouldBeLessThan, 60)
				}
			})

			Convey("And the next avatar finds every pool full", func() {
				_, err := f.svc.Reveal(ctx, 61)
				So(errors.Is(err, allocator.ErrAllPoolsFull), ShouldBeTrue)
			})

			Convey("And every pool reports full", func() {
				status, err := f.svc.PoolStatus(ctx)
				So(err, ShouldBeNil)
				So(status, ShouldHaveLength, 4)
				for _, p := range status {
					So(p.Revealed, ShouldEqual, 15)
					So(p.Full, ShouldBeTrue)
				}
			})
		})

		Reset(func() { f.close(ctx) })
	})
}

func TestService_RevealRange(t *testing.T) {
	Convey("Given a started service with a small batch queue", t, func() {
		ctx := context.Background()
		f := newFixture(ctx, []uint64{1, 2, 3, 4, 5},
			service.WithWorkerCount(3),
			service.WithQueueSize(8),
			service.WithCommitRetries(16),
		)

		Convey("When a range is revealed", func() {
			f.oracle.SetSoulboundLink(3, 900)
			outcomes, err := f.svc.RevealRange(ctx, 1, 6)

			Convey("Then there is one ordered outcome per avatar", func() {
				So(err, ShouldBeNil)
				So(outcomes, ShouldHaveLength, 6)
				for i, o := range outcomes {
					So(o.AvatarID, ShouldEqual, uint64(i+1))
				}
			})

			Convey("And failures are reported per avatar", func() {
				So(errors.Is(outcomes[2].Err, rarity.ErrInvalidReference), ShouldBeTrue)
				So(errors.Is(outcomes[5].Err, rarity.ErrInvalidReference), ShouldBeTrue)
				seen := map[uint64]bool{}
				for _, i := range []int{0, 1, 3, 4} {
					So(outcomes[i].Err, ShouldBeNil)
					So(seen[outcomes[i].Slot], ShouldBeFalse)
					seen[outcomes[i].Slot] = true
				}
			})
		})

		Convey("When the range is inverted", func() {
			_, err := f.svc.RevealRange(ctx, 5, 1)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrInvalidRange), ShouldBeTrue)
			})
		})

		Convey("When the range is wider than the queue", func() {
			_, err := f.svc.RevealRange(ctx, 1, 100)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrInvalidRange), ShouldBeTrue)
			})
		})

		Reset(func() { f.close(ctx) })
	})

	Convey("Given a service whose batch caller gives up", t, func() {
		ctx := context.Background()
		f := newFixture(ctx, []uint64{1, 2})
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		Convey("Then the range returns the context error", func() {
			_, err := f.svc.RevealRange(cancelled, 1, 2)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})

		Reset(func() { f.close(ctx) })
	})
}

func TestService_VerifyOwner(t *testing.T) {
	Convey("Given an avatar with a known owner", t, func() {
		ctx := context.Background()
		f := newFixture(ctx, []uint64{1})
		f.oracle.SetOwner(1, "0xAbC0000000000000000000000000000000000001")

		Convey("Then the owner passes in any letter case", func() {
			So(f.svc.VerifyOwner(ctx, 1, "0xabc0000000000000000000000000000000000001"), ShouldBeNil)
			So(f.svc.VerifyOwner(ctx, 1, "0XABC0000000000000000000000000000000000001"), ShouldBeNil)
		})

		Convey("Then another address is not the owner", func() {
			err := f.svc.VerifyOwner(ctx, 1, "0xdef0000000000000000000000000000000000002")
			So(errors.Is(err, service.ErrNotOwner), ShouldBeTrue)
		})

		Convey("Then an unminted token is an invalid reference", func() {
			err := f.svc.VerifyOwner(ctx, 2, "0xabc0000000000000000000000000000000000001")
			So(errors.Is(err, rarity.ErrInvalidReference), ShouldBeTrue)
		})

		Reset(func() { f.close(ctx) })
	})
}

func TestService_Metadata(t *testing.T) {
	Convey("Given a service with metadata locations", t, func() {
		ctx := context.Background()
		f := newFixture(ctx, nil,
			service.WithMetadataBaseURI("ipfs://final/"),
			service.WithPlaceholderImageURI("https://cdn.example/pods"),
		)

		Convey("When an avatar is registered", func() {
			So(f.svc.Register(ctx, 7), ShouldBeNil)

			Convey("Then registering it again is harmless", func() {
				So(f.svc.Register(ctx, 7), ShouldBeNil)
			})

			Convey("Then its metadata is the class placeholder", func() {
				md, err := f.svc.Metadata(ctx, 7)
				So(err, ShouldBeNil)
				So(md.Revealed, ShouldBeFalse)
				So(md.Name, ShouldEqual, "Common Cryopod")
				So(md.Rarity, ShouldEqual, "common")
				So(md.Image, ShouldEqual, "https://cdn.example/pods/common.png")
			})

			Convey("And after reveal without a mapping it is pending", func() {
				_, err := f.svc.Reveal(ctx, 7)
				So(err, ShouldBeNil)
				_, err = f.svc.Metadata(ctx, 7)
				So(errors.Is(err, service.ErrMetadataPending), ShouldBeTrue)
			})

			Convey("And after reveal with a mapping it points at the final file", func() {
				res, err := f.svc.Reveal(ctx, 7)
				So(err, ShouldBeNil)
				So(f.store.PutRevealMapping(ctx, model.RevealMapping{Slot: res.Slot, MetadataID: 1234}), ShouldBeNil)

				md, err := f.svc.Metadata(ctx, 7)
				So(err, ShouldBeNil)
				So(md.Revealed, ShouldBeTrue)
				So(md.URI, ShouldEqual, "ipfs://final/1234.json")
			})
		})

		Convey("When the avatar is unknown", func() {
			_, err := f.svc.Metadata(ctx, 99)

			Convey("Then it is an invalid reference", func() {
				So(errors.Is(err, rarity.ErrInvalidReference), ShouldBeTrue)
			})
		})

		Reset(func() { f.close(ctx) })
	})
}

func TestService_Stop(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		f := newFixture(ctx, nil)

		Convey("When stopping with a deadline", func() {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			err := f.svc.Stop(stopCtx)

			Convey("Then the workers drain in time", func() {
				So(err, ShouldBeNil)
			})

			Convey("And it can be started again", func() {
				So(f.svc.Start(ctx), ShouldBeNil)
				So(f.svc.GetStats()["started"], ShouldEqual, true)
			})
		})

		Reset(func() { f.close(ctx) })
	})
}
