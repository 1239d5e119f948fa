package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PollResultCache keeps the most recent result of each poll job in Redis so
// the API can serve "last poll" summaries without re-running a job.
type PollResultCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewPollResultCache creates a new poll result cache
func NewPollResultCache(redisCache *RedisCache, ttl time.Duration) *PollResultCache {
	return &PollResultCache{
		redis: redisCache,
		ttl:   ttl,
	}
}

// Poll job kinds as they appear in cache keys
const (
	PollKindBlocks     = "blocks"
	PollKindNodes      = "nodes"
	PollKindValidators = "validators"
)

// Key returns the cache key for one poll kind.
// Format: poll:last:<kind>
func (c *PollResultCache) Key(kind string) string {
	return fmt.Sprintf("poll:last:%s", kind)
}

// Store records the result of a completed poll job
func (c *PollResultCache) Store(ctx context.Context, kind string, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal poll result: %w", err)
	}

	return c.redis.Set(ctx, c.Key(kind), data, c.ttl)
}

// Load retrieves the last stored result for one poll kind. Returns false on
// a cache miss (no poll has completed inside the TTL window).
func (c *PollResultCache) Load(ctx context.Context, kind string, dest interface{}) (bool, error) {
	data, err := c.redis.Get(ctx, c.Key(kind))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load poll result: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal poll result: %w", err)
	}

	return true, nil
}
