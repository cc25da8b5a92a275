package repository

import (
	"context"
	"fmt"
	"strings"
)

// Open builds the store for backend. An empty backend selects memory.
func Open(ctx context.Context, backend string, opts ...Option) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendMemory:
		return NewMemoryStore(ctx, opts...), nil
	case BackendSQLite:
		return NewSQLiteStore(ctx, opts...)
	case BackendPostgres:
		return NewPostgresStore(ctx, opts...)
	case BackendRedis:
		return NewRedisStore(ctx, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
