package storage

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestCache(t *testing.T, ttl time.Duration) (*PollResultCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewPollResultCache(NewRedisCacheFromClient(client), ttl), mr
}

type testPollResult struct {
	Inserted int    `json:"inserted"`
	Cursor   string `json:"cursor"`
}

func TestPollResultCache_StoreLoad(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)
	ctx := testContext(t)

	stored := testPollResult{Inserted: 42, Cursor: "12345"}
	if err := cache.Store(ctx, PollKindBlocks, stored); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	var loaded testPollResult
	found, err := cache.Load(ctx, PollKindBlocks, &loaded)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !found {
		t.Fatal("Load() found = false, want true")
	}
	if loaded != stored {
		t.Errorf("Load() = %+v, want %+v", loaded, stored)
	}
}

func TestPollResultCache_MissAfterExpiry(t *testing.T) {
	cache, mr := setupTestCache(t, time.Second)
	ctx := testContext(t)

	if err := cache.Store(ctx, PollKindNodes, testPollResult{Inserted: 1}); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	mr.FastForward(2 * time.Second)

	var loaded testPollResult
	found, err := cache.Load(ctx, PollKindNodes, &loaded)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if found {
		t.Error("Load() found = true after expiry, want false")
	}
}

func TestPollResultCache_MissOnUnknownKind(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)
	ctx := testContext(t)

	var loaded testPollResult
	found, err := cache.Load(ctx, PollKindValidators, &loaded)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if found {
		t.Error("Load() found = true for never-stored kind, want false")
	}
}

func TestPollResultCache_KeyFormat(t *testing.T) {
	cache, _ := setupTestCache(t, time.Minute)

	if got := cache.Key(PollKindBlocks); got != "poll:last:blocks" {
		t.Errorf("Key(blocks) = %q, want %q", got, "poll:last:blocks")
	}
	if got := cache.Key(PollKindValidators); got != "poll:last:validators" {
		t.Errorf("Key(validators) = %q, want %q", got, "poll:last:validators")
	}
}
