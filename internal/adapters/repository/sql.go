package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/blindbox/internal/domain/model"
)

// Token ids and slots are stored as BIGINT. Values above math.MaxInt64 are
// bit-cast, which keeps equality lookups exact but breaks range ordering for
// slots that large; pool.Layout.Validate caps slots at pool.MaxSlot.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS avatars (
		token_id BIGINT PRIMARY KEY,
		slot     BIGINT,
		revealed BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS avatars_revealed_slot ON avatars (slot) WHERE revealed`,
	`CREATE TABLE IF NOT EXISTS soulbounds (
		token_id BIGINT PRIMARY KEY,
		type     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reveal_mappings (
		slot        BIGINT PRIMARY KEY,
		metadata_id BIGINT NOT NULL
	)`,
}

// dialect captures what differs between the SQL backends.
type dialect struct {
	backend      string
	numbered     bool // $1, $2 placeholders instead of ?
	uniqueFailed func(error) bool
}

// SQLStore implements Store on database/sql. Uniqueness of revealed slots is
// enforced by a partial unique index.
type SQLStore struct {
	db *sql.DB
	d  dialect
}

var _ Store = (*SQLStore)(nil)

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.backend, unavailable("ping", err))
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s schema: %w", d.backend, err)
		}
	}
	return &SQLStore{db: db, d: d}, nil
}

// DB exposes the underlying handle for tests.
func (s *SQLStore) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// q rewrites ? placeholders for dialects that number them.
func (s *SQLStore) q(query string) string {
	if !s.d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func i64(v uint64) int64 { return int64(v) } //nolint:gosec // bit-cast, see schema

// GetAvatar implements Store.
func (s *SQLStore) GetAvatar(ctx context.Context, tokenID uint64) (avatar model.Avatar, err error) {
	defer observe(s.d.backend, "get_avatar", time.Now(), &err)
	var (
		slot     sql.NullInt64
		revealed bool
	)
	row := s.db.QueryRowContext(ctx, s.q(`SELECT slot, revealed FROM avatars WHERE token_id = ?`), i64(tokenID))
	switch err := row.Scan(&slot, &revealed); {
	case errors.Is(err, sql.ErrNoRows):
		return model.Avatar{}, ErrNotFound
	case err != nil:
		return model.Avatar{}, unavailable("get avatar", err)
	}
	avatar = model.Avatar{TokenID: tokenID, Revealed: revealed}
	if slot.Valid {
		v := uint64(slot.Int64) //nolint:gosec // bit-cast, see schema
		avatar.Slot = &v
	}
	return avatar, nil
}

// PutAvatar implements Store.
func (s *SQLStore) PutAvatar(ctx context.Context, avatar model.Avatar) (err error) {
	defer observe(s.d.backend, "put_avatar", time.Now(), &err)
	if err := validateAvatar(avatar); err != nil {
		return err
	}
	var slot sql.NullInt64
	if v, ok := avatar.AssignedSlot(); ok {
		slot = sql.NullInt64{Int64: i64(v), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		s.q(`INSERT INTO avatars (token_id, slot, revealed) VALUES (?, ?, ?) ON CONFLICT (token_id) DO NOTHING`),
		i64(avatar.TokenID), slot, avatar.Revealed)
	switch {
	case err == nil:
		return nil
	case s.d.uniqueFailed(err):
		return ErrSlotTaken
	default:
		return unavailable("put avatar", err)
	}
}

// CommitReveal implements Store.
func (s *SQLStore) CommitReveal(ctx context.Context, tokenID, slot uint64) (err error) {
	defer observe(s.d.backend, "commit_reveal", time.Now(), &err)
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE avatars SET slot = ?, revealed = TRUE WHERE token_id = ? AND revealed = FALSE`),
		i64(slot), i64(tokenID))
	if err != nil {
		if s.d.uniqueFailed(err) {
			return ErrSlotTaken
		}
		return unavailable("commit reveal", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("commit reveal", err)
	}
	if n == 1 {
		return nil
	}
	// Nothing matched: tell a missing token from an already revealed one.
	if _, err := s.GetAvatar(ctx, tokenID); err != nil {
		return err
	}
	return ErrAlreadyRevealed
}

// CountRevealedInRange implements Store.
func (s *SQLStore) CountRevealedInRange(ctx context.Context, start, end uint64) (n uint64, err error) {
	defer observe(s.d.backend, "count_revealed", time.Now(), &err)
	if end <= start {
		return 0, nil
	}
	var count int64
	err = s.db.QueryRowContext(ctx,
		s.q(`SELECT COUNT(*) FROM avatars WHERE revealed AND slot >= ? AND slot < ?`),
		i64(start), i64(end)).Scan(&count)
	if err != nil {
		return 0, unavailable("count revealed", err)
	}
	return uint64(count), nil //nolint:gosec // COUNT is never negative
}

// IsSlotRevealed implements Store.
func (s *SQLStore) IsSlotRevealed(ctx context.Context, slot uint64) (taken bool, err error) {
	defer observe(s.d.backend, "is_slot_revealed", time.Now(), &err)
	var count int64
	err = s.db.QueryRowContext(ctx,
		s.q(`SELECT COUNT(*) FROM avatars WHERE revealed AND slot = ?`), i64(slot)).Scan(&count)
	if err != nil {
		return false, unavailable("is slot revealed", err)
	}
	return count > 0, nil
}

// GetSoulbound implements Store. The type column is returned as text.
func (s *SQLStore) GetSoulbound(ctx context.Context, tokenID uint64) (sb model.Soulbound, err error) {
	defer observe(s.d.backend, "get_soulbound", time.Now(), &err)
	var typ string
	row := s.db.QueryRowContext(ctx, s.q(`SELECT type FROM soulbounds WHERE token_id = ?`), i64(tokenID))
	switch err := row.Scan(&typ); {
	case errors.Is(err, sql.ErrNoRows):
		return model.Soulbound{}, ErrNotFound
	case err != nil:
		return model.Soulbound{}, unavailable("get soulbound", err)
	}
	return model.Soulbound{TokenID: tokenID, Type: typ}, nil
}

// PutSoulbound implements Store.
func (s *SQLStore) PutSoulbound(ctx context.Context, sb model.Soulbound) (err error) {
	defer observe(s.d.backend, "put_soulbound", time.Now(), &err)
	_, err = s.db.ExecContext(ctx,
		s.q(`INSERT INTO soulbounds (token_id, type) VALUES (?, ?) ON CONFLICT (token_id) DO UPDATE SET type = excluded.type`),
		i64(sb.TokenID), fmt.Sprint(sb.Type))
	if err != nil {
		return unavailable("put soulbound", err)
	}
	return nil
}

// GetRevealMapping implements Store.
func (s *SQLStore) GetRevealMapping(ctx context.Context, slot uint64) (m model.RevealMapping, err error) {
	defer observe(s.d.backend, "get_reveal_mapping", time.Now(), &err)
	var id int64
	row := s.db.QueryRowContext(ctx, s.q(`SELECT metadata_id FROM reveal_mappings WHERE slot = ?`), i64(slot))
	switch err := row.Scan(&id); {
	case errors.Is(err, sql.ErrNoRows):
		return model.RevealMapping{}, ErrNotFound
	case err != nil:
		return model.RevealMapping{}, unavailable("get reveal mapping", err)
	}
	return model.RevealMapping{Slot: slot, MetadataID: uint64(id)}, nil //nolint:gosec // bit-cast, see schema
}

// PutRevealMapping implements Store.
func (s *SQLStore) PutRevealMapping(ctx context.Context, m model.RevealMapping) (err error) {
	defer observe(s.d.backend, "put_reveal_mapping", time.Now(), &err)
	_, err = s.db.ExecContext(ctx,
		s.q(`INSERT INTO reveal_mappings (slot, metadata_id) VALUES (?, ?) ON CONFLICT (slot) DO UPDATE SET metadata_id = excluded.metadata_id`),
		i64(m.Slot), i64(m.MetadataID))
	if err != nil {
		return unavailable("put reveal mapping", err)
	}
	return nil
}
