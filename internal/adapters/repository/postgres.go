package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	defaultPostgresDSN = "postgres://localhost/blindbox?sslmode=disable"
	pgUniqueViolation  = "23505"
	postgresDriverName = "pgx"
)

// NewPostgresStore connects to the DSN configured with WithPostgresDSN and
// applies the schema.
func NewPostgresStore(ctx context.Context, opts ...Option) (*SQLStore, error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	dsn := cfg.postgresDSN
	if dsn == "" {
		dsn = defaultPostgresDSN
	}
	db, err := sql.Open(postgresDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.maxOpenConns)
	return newSQLStore(ctx, db, dialect{backend: BackendPostgres, numbered: true, uniqueFailed: isPostgresUniqueViolation})
}

func isPostgresUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
