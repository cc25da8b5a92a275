package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// NewSQLiteStore opens (creating if needed) the database file configured with
// WithSQLitePath and applies the schema. Writes are serialised on a single
// connection.
func NewSQLiteStore(ctx context.Context, opts ...Option) (*SQLStore, error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	if strings.TrimSpace(cfg.sqlitePath) == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := filepath.Clean(cfg.sqlitePath) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLStore(ctx, db, dialect{backend: BackendSQLite, uniqueFailed: isSQLiteUniqueViolation})
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
