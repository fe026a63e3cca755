package dedupe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"retador/internal/cache"
	"retador/internal/config"
	"retador/pkg/types"
)

const (
	// cursorKey holds the feed pagination cursor. The only key in the
	// store without a TTL.
	cursorKey = "retador:cursor"

	// markValue is the stored payload; only key presence matters.
	markValue = "1"

	// minTTL floors the mark TTL so near-kickoff picks still suppress
	// their duplicates for a while.
	minTTL = 60 * time.Second

	// localTTL bounds how long a presence hit is trusted without asking
	// the store again.
	localTTL = 60 * time.Second
)

// Store is the Redis-backed duplicate registry with a local
// read-through cache in front of every existence check.
//
// Failure policy: read errors report "not present" so a store outage
// costs occasional duplicates, never lost picks. Mark errors report
// failure and leave re-suppression to the next successful mark.
type Store struct {
	rdb    *redis.Client
	local  *cache.Cache
	logger *slog.Logger
}

// New connects to Redis. The connection is verified by Ping at startup,
// not here.
func New(cfg config.RedisConfig, local *cache.Cache, logger *slog.Logger) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	return &Store{
		rdb:    rdb,
		local:  local,
		logger: logger.With("component", "dedupe"),
	}
}

// Ping verifies the connection. Startup aborts if this fails.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Exists reports whether key is marked, consulting the local cache
// before Redis. A remote hit seeds the cache.
func (s *Store) Exists(ctx context.Context, key string) bool {
	if _, ok := s.local.Get(key); ok {
		return true
	}
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		s.logger.Error("exists check failed", "key", key, "error", err)
		return false
	}
	if n > 0 {
		s.local.SetTTL(key, markValue, localTTL)
		return true
	}
	return false
}

// ExistsAny reports whether any of the keys is marked: local cache
// probe first, then one pipelined batch of EXISTS, short-circuiting on
// the first remote hit.
func (s *Store) ExistsAny(ctx context.Context, keys []string) bool {
	if len(keys) == 0 {
		return false
	}

	remote := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := s.local.Get(key); ok {
			return true
		}
		remote = append(remote, key)
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(remote))
	for i, key := range remote {
		cmds[i] = pipe.Exists(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("pipelined exists failed", "keys", len(remote), "error", err)
		return false
	}
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			s.local.SetTTL(remote[i], markValue, localTTL)
			return true
		}
	}
	return false
}

// Mark writes the pick's dedup key and every opposite-market key with
// an identical TTL in one transaction and seeds the local cache.
// TTL is max(60s, event−now); a pick whose event already started is
// not marked at all. Returns whether the keys were written.
func (s *Store) Mark(ctx context.Context, p *types.Pick) bool {
	ttl := time.Until(p.EventTime())
	if ttl <= 0 {
		s.logger.Debug("mark skipped, event already started", "key", Key(p))
		return false
	}
	if ttl < minTTL {
		ttl = minTTL
	}

	keys := AllKeys(p)
	pipe := s.rdb.TxPipeline()
	for _, key := range keys {
		pipe.SetEx(ctx, key, markValue, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("mark failed", "key", keys[0], "error", err)
		return false
	}

	localFor := ttl
	if localFor > localTTL {
		localFor = localTTL
	}
	for _, key := range keys {
		s.local.SetTTL(key, markValue, localFor)
	}
	return true
}

// Cursor reads the persisted feed cursor. A missing key is not an
// error; polling simply starts from the newest records.
func (s *Store) Cursor(ctx context.Context) (string, error) {
	cursor, err := s.rdb.Get(ctx, cursorKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return cursor, err
}

// SetCursor persists the feed cursor. No TTL; it survives restarts.
func (s *Store) SetCursor(ctx context.Context, cursor string) error {
	return s.rdb.Set(ctx, cursorKey, cursor, 0).Err()
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}
