package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/blindbox/internal/adapters/chain"
	"github.com/okian/blindbox/internal/adapters/repository"
	"github.com/okian/blindbox/internal/config"
	"github.com/okian/blindbox/pkg/logger"
)

// Runtime bundles a started Service with the store and oracle it owns.
type Runtime struct {
	Store   repository.Store
	Chain   *chain.Static
	Service *Service
}

// StoreOptions translates the store keys of cfg into repository options.
func StoreOptions(cfg *config.Config) []repository.Option {
	opts := []repository.Option{
		repository.WithSQLitePath(cfg.SQLitePath),
		repository.WithRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB),
		repository.WithKeyPrefix(cfg.RedisPrefix),
	}
	if cfg.PostgresDSN != "" {
		opts = append(opts, repository.WithPostgresDSN(cfg.PostgresDSN))
	}
	return opts
}

// NewChain builds the static chain oracle seeded from cfg.
func NewChain(cfg *config.Config) (*chain.Static, error) {
	links, err := cfg.Links()
	if err != nil {
		return nil, err
	}
	owners, err := cfg.OwnerMap()
	if err != nil {
		return nil, err
	}
	return chain.NewStatic(
		chain.WithRevealEnabled(cfg.RevealEnabled),
		chain.WithSoulboundLinks(links),
		chain.WithOwners(owners),
	), nil
}

// Build opens the configured store, seeds the chain oracle and starts the
// service. Close releases all three.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*Runtime, error) {
	layout, err := cfg.Layout()
	if err != nil {
		return nil, err
	}
	oracle, err := NewChain(cfg)
	if err != nil {
		return nil, err
	}

	store, err := repository.Open(ctx, cfg.StoreBackend, StoreOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}

	svc := New(store, oracle, layout,
		WithLogger(log),
		WithWorkerCount(cfg.BatchWorkers),
		WithQueueSize(cfg.BatchQueueSize),
		WithInflightSize(cfg.InflightSize),
		WithCommitRetries(cfg.CommitRetries),
		WithNaturalPreference(cfg.NaturalPreference),
		WithMetadataBaseURI(cfg.MetadataBaseURI),
		WithPlaceholderImageURI(cfg.PlaceholderImageURI),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	log.Info(ctx, "runtime ready",
		logger.String("store_backend", cfg.StoreBackend),
		logger.Bool("reveal_enabled", cfg.RevealEnabled),
		logger.Int("pools", len(layout.Pools)),
	)
	return &Runtime{Store: store, Chain: oracle, Service: svc}, nil
}

// Close stops the service and closes the store.
func (r *Runtime) Close(ctx context.Context) error {
	return errors.Join(r.Service.Stop(ctx), r.Store.Close())
}
