package database

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nao1215/noticescan/internal/dedup"
	"github.com/nao1215/noticescan/internal/model"
)

func TestRedisStoreKeys(t *testing.T) {
	t.Parallel()

	s := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "")
	defer s.Close()

	if got := s.hashesKey("djbea"); got != "noticescan:titles:djbea" {
		t.Errorf("unexpected hashes key %q", got)
	}
	if got := s.metaKey("djbea"); got != "noticescan:record:djbea" {
		t.Errorf("unexpected meta key %q", got)
	}
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := NewRedisStore(ctx, RedisOptions{Addr: "127.0.0.1:1"}); err == nil {
		t.Error("expected connection error")
	}
}

// TestRedisStoreRoundTrip needs a live server; set NOTICESCAN_TEST_REDIS_ADDR to run it.
func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("NOTICESCAN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("NOTICESCAN_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisOptions{Addr: addr, Prefix: "noticescan-test-" + t.Name()})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, dedup.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}

	stamp := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	if err := store.Save(ctx, "site", model.NewDuplicateRecord([]string{"b", "a"}, stamp)); err != nil {
		t.Fatal(err)
	}
	rec, err := store.Load(ctx, "site")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Count != 2 || len(rec.Hashes) != 2 || rec.Hashes[0] != "a" || !rec.LastUpdated.Equal(stamp) {
		t.Errorf("unexpected record %+v", rec)
	}
}
