package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nao1215/noticescan/internal/dedup"
	"github.com/nao1215/noticescan/internal/model"
)

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "noticescan"

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// Prefix replaces DefaultRedisPrefix when set.
	Prefix string
}

// RedisStore keeps duplicate records in Redis so that several hosts can
// share one record per site. A record is a set of hashes plus a hash of
// metadata fields. It implements dedup.Store.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisStoreWithClient(client, opts.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) hashesKey(site string) string {
	return s.prefix + ":titles:" + site
}

func (s *RedisStore) metaKey(site string) string {
	return s.prefix + ":record:" + site
}

// Load returns the record of site, or dedup.ErrRecordNotFound.
func (s *RedisStore) Load(ctx context.Context, site string) (model.DuplicateRecord, error) {
	meta, err := s.client.HGetAll(ctx, s.metaKey(site)).Result()
	if err != nil {
		return model.DuplicateRecord{}, fmt.Errorf("failed to read record metadata: %w", err)
	}
	if len(meta) == 0 {
		return model.DuplicateRecord{}, dedup.ErrRecordNotFound
	}

	hashes, err := s.client.SMembers(ctx, s.hashesKey(site)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return model.DuplicateRecord{}, fmt.Errorf("failed to read title hashes: %w", err)
	}
	sort.Strings(hashes)

	rec := model.DuplicateRecord{Hashes: hashes}
	rec.Count, _ = strconv.Atoi(meta["total_count"]) //nolint:errcheck // zero on malformed value
	rec.LastUpdated = parseTimestamp(meta["last_updated"])
	return rec, nil
}

// Save replaces the record of site atomically with MULTI/EXEC.
func (s *RedisStore) Save(ctx context.Context, site string, rec model.DuplicateRecord) error {
	members := make([]any, len(rec.Hashes))
	for i, h := range rec.Hashes {
		members[i] = h
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.hashesKey(site))
		if len(members) > 0 {
			pipe.SAdd(ctx, s.hashesKey(site), members...)
		}
		pipe.HSet(ctx, s.metaKey(site),
			"last_updated", rec.LastUpdated.UTC().Format(time.RFC3339Nano),
			"total_count", rec.Count,
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save record to redis: %w", err)
	}
	return nil
}
