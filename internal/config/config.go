// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config holding every default.
// - Load layers a YAML file and BLINDBOX_ env vars over the defaults.
// - Validation and conversion errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/okian/blindbox/internal/domain/pool"
	"github.com/okian/blindbox/internal/domain/rarity"
)

// PoolConfig describes one rarity pool. When OriginalSize is zero the
// original window equals the current one.
type PoolConfig struct {
	Rarity        string `koanf:"rarity"`
	Start         uint64 `koanf:"start"`
	Size          uint64 `koanf:"size"`
	OriginalStart uint64 `koanf:"original_start"`
	OriginalSize  uint64 `koanf:"original_size"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Seed is the VRF output, decimal or 0x-prefixed hex. Load rejects an
	// unquoted YAML number too wide to survive float64 decoding.
	Seed string `koanf:"seed"`

	OverflowStart uint64 `koanf:"overflow_start"`
	OverflowSize  uint64 `koanf:"overflow_size"`

	// Pools overrides the default layout. Empty means four 15-slot pools.
	Pools []PoolConfig `koanf:"pools"`

	// NaturalPreference keeps Common avatars in their natural pool while it
	// has room.
	NaturalPreference bool `koanf:"natural_preference"`

	// CommitRetries bounds how often a lost slot race is retried.
	CommitRetries int `koanf:"commit_retries"`

	// StoreBackend is one of memory, sqlite, postgres, redis.
	StoreBackend  string `koanf:"store_backend"`
	SQLitePath    string `koanf:"sqlite_path"`
	PostgresDSN   string `koanf:"postgres_dsn"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPrefix   string `koanf:"redis_prefix"`

	// Chain oracle seed state.
	RevealEnabled  bool              `koanf:"reveal_enabled"`
	SoulboundLinks map[string]uint64 `koanf:"soulbound_links"`
	Owners         map[string]string `koanf:"owners"`

	MetadataBaseURI     string `koanf:"metadata_base_uri"`
	PlaceholderImageURI string `koanf:"placeholder_image_uri"`

	// InflightSize caps concurrent reveals.
	InflightSize int `koanf:"inflight_size"`

	// BatchWorkers and BatchQueueSize size the batch reveal pipeline.
	BatchWorkers   int `koanf:"batch_workers"`
	BatchQueueSize int `koanf:"batch_queue_size"`
}

// New creates a Config holding the defaults.
func New() *Config {
	overflow := pool.DefaultOverflow()
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		Seed:           pool.DefaultSeed,
		OverflowStart:  overflow.Start,
		OverflowSize:   overflow.Size,
		CommitRetries:  8,
		StoreBackend:   "memory",
		SQLitePath:     "blindbox.db",
		RedisAddr:      "localhost:6379",
		RedisPrefix:    "blindbox",
		InflightSize:   10_000,
		BatchWorkers:   runtime.NumCPU() * 2,
		BatchQueueSize: 4096,
	}
}

// Layout builds the allocation layout described by the config.
func (c *Config) Layout() (pool.Layout, error) {
	seed, err := pool.ParseSeed(c.Seed)
	if err != nil {
		return pool.Layout{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	pools := pool.DefaultPools()
	if len(c.Pools) > 0 {
		pools = make([]pool.Pool, 0, len(c.Pools))
		for i, pc := range c.Pools {
			class, err := rarity.Parse(pc.Rarity)
			if err != nil {
				return pool.Layout{}, fmt.Errorf("%w: pools[%d]: %w", ErrInvalidConfig, i, err)
			}
			p := pool.Pool{
				Class:         class,
				Start:         pc.Start,
				Size:          pc.Size,
				OriginalStart: pc.OriginalStart,
				OriginalSize:  pc.OriginalSize,
			}
			if p.OriginalSize == 0 {
				p.OriginalStart, p.OriginalSize = p.Start, p.Size
			}
			pools = append(pools, p)
		}
	}

	layout := pool.Layout{
		Pools:    pools,
		Overflow: pool.OverflowDomain{Start: c.OverflowStart, Size: c.OverflowSize},
		Seed:     seed,
	}
	if err := layout.Validate(); err != nil {
		return pool.Layout{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return layout, nil
}

// Links returns the avatar to soulbound links keyed by token id.
func (c *Config) Links() (map[uint64]uint64, error) {
	out := make(map[uint64]uint64, len(c.SoulboundLinks))
	for k, v := range c.SoulboundLinks {
		id, err := parseTokenID(k)
		if err != nil {
			return nil, fmt.Errorf("soulbound_links: %w", err)
		}
		out[id] = v
	}
	return out, nil
}

// OwnerMap returns token owners keyed by token id.
func (c *Config) OwnerMap() (map[uint64]string, error) {
	out := make(map[uint64]string, len(c.Owners))
	for k, v := range c.Owners {
		id, err := parseTokenID(k)
		if err != nil {
			return nil, fmt.Errorf("owners: %w", err)
		}
		out[id] = v
	}
	return out, nil
}

func parseTokenID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: token id %q", ErrInvalidConfig, s)
	}
	return id, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.StoreBackend) {
	case "memory", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.CommitRetries < 0 {
		return fmt.Errorf("%w: commit_retries must not be negative", ErrInvalidConfig)
	}
	if c.InflightSize <= 0 || c.BatchQueueSize <= 0 {
		return fmt.Errorf("%w: inflight_size and batch_queue_size must be positive", ErrInvalidConfig)
	}
	if _, err := c.Layout(); err != nil {
		return err
	}
	if _, err := c.Links(); err != nil {
		return err
	}
	if _, err := c.OwnerMap(); err != nil {
		return err
	}
	return nil
}
