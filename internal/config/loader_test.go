package config_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/blindbox/internal/config"
	"github.com/okian/blindbox/internal/domain/pool"
	"github.com/okian/blindbox/internal/domain/rarity"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.StoreBackend, convey.ShouldEqual, "memory")
				convey.So(cfg.CommitRetries, convey.ShouldEqual, 8)
				convey.So(cfg.BatchQueueSize, convey.ShouldEqual, 4096)
				convey.So(cfg.RevealEnabled, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("BLINDBOX_ADDR", ":8080")
			_ = os.Setenv("BLINDBOX_STORE_BACKEND", "redis")
			_ = os.Setenv("BLINDBOX_REDIS_ADDR", "cache:6379")
			_ = os.Setenv("BLINDBOX_REDIS_DB", "3")
			_ = os.Setenv("BLINDBOX_COMMIT_RETRIES", "2")
			_ = os.Setenv("BLINDBOX_REVEAL_ENABLED", "true")
			_ = os.Setenv("BLINDBOX_NATURAL_PREFERENCE", "true")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StoreBackend, convey.ShouldEqual, "redis")
				convey.So(cfg.RedisAddr, convey.ShouldEqual, "cache:6379")
				convey.So(cfg.RedisDB, convey.ShouldEqual, 3)
				convey.So(cfg.CommitRetries, convey.ShouldEqual, 2)
				convey.So(cfg.RevealEnabled, convey.ShouldBeTrue)
				convey.So(cfg.NaturalPreference, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			yamlContent := `
addr: ":9090"
seed: "100"
overflow_start: 45
overflow_size: 15
store_backend: sqlite
sqlite_path: /var/lib/blindbox/reveal.db
reveal_enabled: true
soulbound_links:
  "7": 500
  "8": 501
owners:
  "7": "0xAbC"
pools:
  - rarity: legendary
    start: 0
    size: 15
  - rarity: epic
    start: 100
    size: 15
    original_start: 15
    original_size: 15
  - rarity: rare
    start: 30
    size: 15
  - rarity: common
    start: 45
    size: 15
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("BLINDBOX_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.StoreBackend, convey.ShouldEqual, "sqlite")
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/var/lib/blindbox/reveal.db")
				convey.So(cfg.Pools, convey.ShouldHaveLength, 4)
			})

			convey.Convey("And the layout reflects the resized pool", func() {
				layout, err := cfg.Layout()
				convey.So(err, convey.ShouldBeNil)
				convey.So(layout.Seed.Int64(), convey.ShouldEqual, 100)
				convey.So(layout.Overflow.Start, convey.ShouldEqual, 45)

				epic, ok := layout.PoolOf(rarity.Epic)
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(epic.Start, convey.ShouldEqual, 100)
				convey.So(epic.OriginalStart, convey.ShouldEqual, 15)

				common := layout.Common()
				convey.So(common.OriginalStart, convey.ShouldEqual, 45)
				convey.So(common.OriginalSize, convey.ShouldEqual, 15)
			})

			convey.Convey("And the chain state is keyed by token id", func() {
				links, err := cfg.Links()
				convey.So(err, convey.ShouldBeNil)
				convey.So(links, convey.ShouldResemble, map[uint64]uint64{7: 500, 8: 501})

				owners, err := cfg.OwnerMap()
				convey.So(err, convey.ShouldBeNil)
				convey.So(owners[7], convey.ShouldEqual, "0xAbC")
			})
		})

		convey.Convey("When the YAML file holds the production seed unquoted", func() {
			tmpFile := createTempConfigFile("seed: " + pool.DefaultSeed + "\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("BLINDBOX_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then loading fails instead of truncating the seed", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "quote")
			})
		})

		convey.Convey("When the YAML file holds the production seed quoted", func() {
			tmpFile := createTempConfigFile("seed: \"" + pool.DefaultSeed + "\"\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("BLINDBOX_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then every digit survives", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Seed, convey.ShouldEqual, pool.DefaultSeed)

				layout, err := cfg.Layout()
				convey.So(err, convey.ShouldBeNil)
				convey.So(layout.Offset(7), convey.ShouldEqual, pool.DefaultLayout().Offset(7))
			})
		})

		convey.Convey("When the YAML file holds a small unquoted seed", func() {
			tmpFile := createTempConfigFile("seed: 100\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("BLINDBOX_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then the exact integer is accepted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Seed, convey.ShouldEqual, "100")
			})
		})

		convey.Convey("When env vars and a file both set a value", func() {
			tmpFile := createTempConfigFile("addr: \":9090\"\nbatch_workers: 3\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("BLINDBOX_CONFIG", tmpFile)
			_ = os.Setenv("BLINDBOX_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.BatchWorkers, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("BLINDBOX_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("BLINDBOX_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("BLINDBOX_BATCH_QUEUE_SIZE", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestConfigLoaderValidation(t *testing.T) {
	convey.Convey("Given config values that fail validation", t, func() {
		ctx := context.Background()

		cases := map[string]map[string]string{
			"an empty addr":        {"BLINDBOX_ADDR": ""},
			"an unknown backend":   {"BLINDBOX_STORE_BACKEND": "cassandra"},
			"an unknown format":    {"BLINDBOX_LOG_FORMAT": "xml"},
			"a malformed seed":     {"BLINDBOX_SEED": "not-a-number"},
			"a zero overflow size": {"BLINDBOX_OVERFLOW_SIZE": "0"},
			"negative retries":     {"BLINDBOX_COMMIT_RETRIES": "-1"},
			"a zero batch queue":   {"BLINDBOX_BATCH_QUEUE_SIZE": "0"},
		}

		for name, env := range cases {
			convey.Convey("When loading with "+name, func() {
				for k, v := range env {
					_ = os.Setenv(k, v)
				}
				defer clearConfigEnvVars()

				cfg, err := config.Load(ctx)

				convey.Convey("Then it should return an invalid config error", func() {
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
					convey.So(cfg, convey.ShouldBeNil)
				})
			})
		}

		convey.Convey("When a pool names an unknown rarity", func() {
			tmpFile := createTempConfigFile("pools:\n  - rarity: mythic\n    start: 0\n    size: 15\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("BLINDBOX_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then the layout is rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a link is keyed by something other than a token id", func() {
			tmpFile := createTempConfigFile("soulbound_links:\n  abc: 1\n")
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("BLINDBOX_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then the config is rejected", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, config.EnvPrefix) {
			_ = os.Unsetenv(name)
		}
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "blindbox-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
