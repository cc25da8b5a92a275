package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/blindbox/internal/domain/model"
)

// Lua result codes shared by the scripts below.
const (
	luaOK           = 1
	luaNotFound     = -1
	luaRevealed     = -2
	luaSlotTaken    = -3
	fieldRevealed   = "revealed"
	fieldSlot       = "slot"
	revealedFlagOn  = "1"
	revealedFlagOff = "0"
)

// KEYS: avatar hash, slot key, revealed zset. ARGV: token id, slot.
var commitScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HGET', KEYS[1], 'revealed') == '1' then return -2 end
if redis.call('SETNX', KEYS[2], ARGV[1]) == 0 then return -3 end
redis.call('HSET', KEYS[1], 'revealed', '1', 'slot', ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[2])
return 1
`)

// KEYS: avatar hash, slot key, revealed zset. ARGV: token id, revealed flag,
// slot or the empty string.
var putScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 1 end
if ARGV[2] == '1' then
	if redis.call('SETNX', KEYS[2], ARGV[1]) == 0 then return -3 end
	redis.call('HSET', KEYS[1], 'revealed', '1', 'slot', ARGV[3])
	redis.call('ZADD', KEYS[3], ARGV[3], ARGV[3])
	return 1
end
if ARGV[3] == '' then
	redis.call('HSET', KEYS[1], 'revealed', '0')
else
	redis.call('HSET', KEYS[1], 'revealed', '0', 'slot', ARGV[3])
end
return 1
`)

// RedisStore implements Store on Redis. Every key is namespaced with the
// configured prefix:
//
//	{prefix}:avatar:{id}     hash {revealed, slot}
//	{prefix}:slot:{slot}     token id of the revealed holder
//	{prefix}:revealed        sorted set of revealed slots (score = slot,
//	                         exact below pool.MaxSlot)
//	{prefix}:soulbound:{id}  rarity type as text
//	{prefix}:mapping:{slot}  metadata id
//
// Commits run as a Lua script so the slot claim and the avatar update are
// atomic.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects with the settings from WithRedis and WithKeyPrefix.
func NewRedisStore(ctx context.Context, opts ...Option) (*RedisStore, error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.redisAddr, unavailable("ping", err))
	}
	return &RedisStore{rdb: rdb, prefix: cfg.redisPrefix}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) avatarKey(id uint64) string {
	return s.prefix + ":avatar:" + strconv.FormatUint(id, 10)
}

func (s *RedisStore) slotKey(slot uint64) string {
	return s.prefix + ":slot:" + strconv.FormatUint(slot, 10)
}

func (s *RedisStore) revealedKey() string { return s.prefix + ":revealed" }

func (s *RedisStore) soulboundKey(id uint64) string {
	return s.prefix + ":soulbound:" + strconv.FormatUint(id, 10)
}

func (s *RedisStore) mappingKey(slot uint64) string {
	return s.prefix + ":mapping:" + strconv.FormatUint(slot, 10)
}

// GetAvatar implements Store.
func (s *RedisStore) GetAvatar(ctx context.Context, tokenID uint64) (avatar model.Avatar, err error) {
	defer observe(BackendRedis, "get_avatar", time.Now(), &err)
	fields, err := s.rdb.HGetAll(ctx, s.avatarKey(tokenID)).Result()
	if err != nil {
		return model.Avatar{}, unavailable("get avatar", err)
	}
	if len(fields) == 0 {
		return model.Avatar{}, ErrNotFound
	}
	avatar = model.Avatar{TokenID: tokenID, Revealed: fields[fieldRevealed] == revealedFlagOn}
	if raw, ok := fields[fieldSlot]; ok && raw != "" {
		slot, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return model.Avatar{}, fmt.Errorf("avatar %d: corrupt slot %q: %w", tokenID, raw, err)
		}
		avatar.Slot = &slot
	}
	return avatar, nil
}

// PutAvatar implements Store.
func (s *RedisStore) PutAvatar(ctx context.Context, avatar model.Avatar) (err error) {
	defer observe(BackendRedis, "put_avatar", time.Now(), &err)
	if err := validateAvatar(avatar); err != nil {
		return err
	}
	flag, slotArg := revealedFlagOff, ""
	var slot uint64
	if v, ok := avatar.AssignedSlot(); ok {
		slot = v
		slotArg = strconv.FormatUint(v, 10)
	}
	if avatar.Revealed {
		flag = revealedFlagOn
	}
	keys := []string{s.avatarKey(avatar.TokenID), s.slotKey(slot), s.revealedKey()}
	code, err := putScript.Run(ctx, s.rdb, keys, strconv.FormatUint(avatar.TokenID, 10), flag, slotArg).Int()
	if err != nil {
		return unavailable("put avatar", err)
	}
	if code == luaSlotTaken {
		return ErrSlotTaken
	}
	return nil
}

// CommitReveal implements Store.
func (s *RedisStore) CommitReveal(ctx context.Context, tokenID, slot uint64) (err error) {
	defer observe(BackendRedis, "commit_reveal", time.Now(), &err)
	keys := []string{s.avatarKey(tokenID), s.slotKey(slot), s.revealedKey()}
	code, err := commitScript.Run(ctx, s.rdb, keys, strconv.FormatUint(tokenID, 10), strconv.FormatUint(slot, 10)).Int()
	if err != nil {
		return unavailable("commit reveal", err)
	}
	switch code {
	case luaOK:
		return nil
	case luaNotFound:
		return ErrNotFound
	case luaRevealed:
		return ErrAlreadyRevealed
	case luaSlotTaken:
		return ErrSlotTaken
	default:
		return fmt.Errorf("commit reveal: unexpected script result %d", code)
	}
}

// CountRevealedInRange implements Store.
func (s *RedisStore) CountRevealedInRange(ctx context.Context, start, end uint64) (n uint64, err error) {
	defer observe(BackendRedis, "count_revealed", time.Now(), &err)
	if end <= start {
		return 0, nil
	}
	count, err := s.rdb.ZCount(ctx, s.revealedKey(),
		strconv.FormatUint(start, 10), "("+strconv.FormatUint(end, 10)).Result()
	if err != nil {
		return 0, unavailable("count revealed", err)
	}
	return uint64(count), nil //nolint:gosec // ZCOUNT is never negative
}

// IsSlotRevealed implements Store.
func (s *RedisStore) IsSlotRevealed(ctx context.Context, slot uint64) (taken bool, err error) {
	defer observe(BackendRedis, "is_slot_revealed", time.Now(), &err)
	n, err := s.rdb.Exists(ctx, s.slotKey(slot)).Result()
	if err != nil {
		return false, unavailable("is slot revealed", err)
	}
	return n > 0, nil
}

// GetSoulbound implements Store. The type is returned as text.
func (s *RedisStore) GetSoulbound(ctx context.Context, tokenID uint64) (sb model.Soulbound, err error) {
	defer observe(BackendRedis, "get_soulbound", time.Now(), &err)
	typ, err := s.rdb.Get(ctx, s.soulboundKey(tokenID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return model.Soulbound{}, ErrNotFound
	case err != nil:
		return model.Soulbound{}, unavailable("get soulbound", err)
	}
	return model.Soulbound{TokenID: tokenID, Type: typ}, nil
}

// PutSoulbound implements Store.
func (s *RedisStore) PutSoulbound(ctx context.Context, sb model.Soulbound) (err error) {
	defer observe(BackendRedis, "put_soulbound", time.Now(), &err)
	if err := s.rdb.Set(ctx, s.soulboundKey(sb.TokenID), fmt.Sprint(sb.Type), 0).Err(); err != nil {
		return unavailable("put soulbound", err)
	}
	return nil
}

// GetRevealMapping implements Store.
func (s *RedisStore) GetRevealMapping(ctx context.Context, slot uint64) (m model.RevealMapping, err error) {
	defer observe(BackendRedis, "get_reveal_mapping", time.Now(), &err)
	raw, err := s.rdb.Get(ctx, s.mappingKey(slot)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return model.RevealMapping{}, ErrNotFound
	case err != nil:
		return model.RevealMapping{}, unavailable("get reveal mapping", err)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return model.RevealMapping{}, fmt.Errorf("mapping for slot %d: corrupt metadata id %q: %w", slot, raw, err)
	}
	return model.RevealMapping{Slot: slot, MetadataID: id}, nil
}

// PutRevealMapping implements Store.
func (s *RedisStore) PutRevealMapping(ctx context.Context, m model.RevealMapping) (err error) {
	defer observe(BackendRedis, "put_reveal_mapping", time.Now(), &err)
	if err := s.rdb.Set(ctx, s.mappingKey(m.Slot), strconv.FormatUint(m.MetadataID, 10), 0).Err(); err != nil {
		return unavailable("put reveal mapping", err)
	}
	return nil
}
