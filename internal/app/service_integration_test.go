package service_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/blindbox/internal/adapters/chain"
	"github.com/okian/blindbox/internal/adapters/repository"
	service "github.com/okian/blindbox/internal/app"
	"github.com/okian/blindbox/internal/domain/allocator"
	"github.com/okian/blindbox/internal/domain/model"
	"github.com/okian/blindbox/internal/domain/pool"
	"github.com/okian/blindbox/internal/domain/rarity"
)

// specials maps avatar ids 1..15 onto the three reserved classes.
func specialClass(id uint64) rarity.Class {
	switch {
	case id <= 5:
		return rarity.Legendary
	case id <= 10:
		return rarity.Epic
	default:
		return rarity.Rare
	}
}

func TestServiceIntegration(t *testing.T) {
	backends := map[string]func(ctx context.Context) (repository.Store, error){
		"sqlite": func(ctx context.Context) (repository.Store, error) {
			return repository.Open(ctx, repository.BackendSQLite,
				repository.WithSQLitePath(filepath.Join(t.TempDir(), "blindbox.db")))
		},
		"redis": func(ctx context.Context) (repository.Store, error) {
			mr := miniredis.RunT(t)
			return repository.Open(ctx, repository.BackendRedis,
				repository.WithRedis(mr.Addr(), "", 0), repository.WithKeyPrefix("it"))
		},
		"memory": func(ctx context.Context) (repository.Store, error) {
			return repository.Open(ctx, repository.BackendMemory)
		},
	}

	for name, open := range backends {
		Convey(fmt.Sprintf("Given a full layout on the %s backend", name), t, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			store, err := open(ctx)
			So(err, ShouldBeNil)
			defer store.Close()

			oracle := chain.NewStatic(chain.WithRevealEnabled(true))
			for id := uint64(1); id <= 61; id++ {
				So(store.PutAvatar(ctx, model.Avatar{TokenID: id}), ShouldBeNil)
			}
			for id := uint64(1); id <= 15; id++ {
				sb := 1000 + id
				So(store.PutSoulbound(ctx, model.Soulbound{TokenID: sb, Type: specialClass(id).String()}), ShouldBeNil)
				oracle.SetSoulboundLink(id, sb)
			}

			svc := service.New(store, oracle, pool.DefaultLayout(),
				service.WithWorkerCount(4),
				service.WithQueueSize(64),
				service.WithCommitRetries(64),
			)
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop(context.Background())

			Convey("When the special avatars reveal first and the rest reveal as a batch", func() {
				slots := make(map[uint64]uint64)
				for id := uint64(1); id <= 15; id++ {
					res, err := svc.Reveal(ctx, id)
					So(err, ShouldBeNil)
					So(res.Rarity, ShouldEqual, specialClass(id).String())

					p, _ := pool.DefaultLayout().PoolOf(specialClass(id))
					So(p.Contains(res.Slot), ShouldBeTrue)
					slots[res.Slot] = id
				}

				outcomes, err := svc.RevealRange(ctx, 16, 60)
				So(err, ShouldBeNil)
				So(outcomes, ShouldHaveLength, 45)
				for _, o := range outcomes {
					So(o.Err, ShouldBeNil)
					_, dup := slots[o.Slot]
					So(dup, ShouldBeFalse)
					slots[o.Slot] = o.AvatarID
				}

				Convey("Then all sixty slots are taken exactly once", func() {
					So(len(slots), ShouldEqual, 60)
					n, err := store.CountRevealedInRange(ctx, 0, 60)
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 60)
				})

				Convey("And the stored slots match the results", func() {
					for slot, id := range slots {
						a, err := store.GetAvatar(ctx, id)
						So(err, ShouldBeNil)
						got, ok := a.AssignedSlot()
						So(ok, ShouldBeTrue)
						So(got, ShouldEqual, slot)
					}
				})

				Convey("And one more avatar finds every pool full", func() {
					_, err := svc.Reveal(ctx, 61)
					So(errors.Is(err, allocator.ErrAllPoolsFull), ShouldBeTrue)
				})

				Convey("And a repeated batch reports every avatar as already revealed", func() {
					again, err := svc.RevealRange(ctx, 16, 20)
					So(err, ShouldBeNil)
					for _, o := range again {
						So(errors.Is(o.Err, allocator.ErrAlreadyRevealed), ShouldBeTrue)
					}
				})
			})
		})
	}
}
