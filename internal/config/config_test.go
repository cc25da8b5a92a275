package config_test

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/blindbox/internal/config"
	"github.com/okian/blindbox/internal/domain/pool"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.Seed, convey.ShouldEqual, pool.DefaultSeed)
			convey.So(cfg.OverflowStart, convey.ShouldEqual, 1)
			convey.So(cfg.OverflowSize, convey.ShouldEqual, 99_999_999)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the default layout matches the production one", func() {
			layout, err := cfg.Layout()
			convey.So(err, convey.ShouldBeNil)
			want := pool.DefaultLayout()
			convey.So(layout.Pools, convey.ShouldResemble, want.Pools)
			convey.So(layout.Overflow, convey.ShouldResemble, want.Overflow)
			convey.So(layout.Seed.Cmp(want.Seed), convey.ShouldEqual, 0)
		})
	})
}
