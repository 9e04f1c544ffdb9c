package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-timetable/internal/config"
	"github.com/stemsi/exstem-timetable/internal/model"
)

// setIfGeneration stores a grid only while the class generation still holds
// the value read before the grid was built.
//
// KEYS[1] generation key, KEYS[2] view key.
// ARGV[1] expected generation, ARGV[2] encoded grid, ARGV[3] TTL in ms.
var setIfGeneration = redis.NewScript(`
if (redis.call("GET", KEYS[1]) or "0") ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[2], ARGV[2])
end
return 1
`)

// RedisTimetableCache keeps rendered class grids in Redis and fans committed
// changes out over PubSub.
type RedisTimetableCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisTimetableCache creates a new RedisTimetableCache.
func NewRedisTimetableCache(rdb *redis.Client, ttl time.Duration) *RedisTimetableCache {
	return &RedisTimetableCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached grid for a class, if any.
func (c *RedisTimetableCache) Get(ctx context.Context, term, className string) ([]model.ClassSlot, bool, error) {
	raw, err := c.rdb.Get(ctx, config.CacheKey.ClassViewKey(term, className)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get class view: %w", err)
	}

	var slots []model.ClassSlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, false, fmt.Errorf("decode class view: %w", err)
	}
	if slots == nil {
		slots = []model.ClassSlot{}
	}
	return slots, true, nil
}

// Generation returns the class's change counter. A class never written has
// generation 0.
func (c *RedisTimetableCache) Generation(ctx context.Context, term, className string) (int64, error) {
	gen, err := c.rdb.Get(ctx, config.CacheKey.ClassViewGenerationKey(term, className)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("get class view generation: %w", err)
	}
	return gen, nil
}

// SetIfGeneration stores a class grid with the configured TTL unless the
// class changed since gen was read. It reports whether the grid was stored.
func (c *RedisTimetableCache) SetIfGeneration(ctx context.Context, term, className string, gen int64, slots []model.ClassSlot) (bool, error) {
	raw, err := json.Marshal(slots)
	if err != nil {
		return false, fmt.Errorf("encode class view: %w", err)
	}

	keys := []string{
		config.CacheKey.ClassViewGenerationKey(term, className),
		config.CacheKey.ClassViewKey(term, className),
	}
	stored, err := setIfGeneration.Run(ctx, c.rdb, keys, gen, raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("set class view: %w", err)
	}
	return stored == 1, nil
}

// Invalidate bumps the generation of the given classes and drops their
// cached grids in one MULTI block.
func (c *RedisTimetableCache) Invalidate(ctx context.Context, term string, classNames []string) error {
	if len(classNames) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, name := range classNames {
			pipe.Incr(ctx, config.CacheKey.ClassViewGenerationKey(term, name))
			pipe.Del(ctx, config.CacheKey.ClassViewKey(term, name))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate class views: %w", err)
	}
	return nil
}

// PublishClassUpdate announces a committed change on the class channel.
func (c *RedisTimetableCache) PublishClassUpdate(ctx context.Context, update model.ClassUpdate) error {
	raw, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("encode class update: %w", err)
	}
	return c.rdb.Publish(ctx, config.CacheKey.ClassUpdatesChannel(update.Term, update.ClassName), raw).Err()
}

// SubscribeClass subscribes to a class's update channel. The caller closes
// the returned PubSub.
func (c *RedisTimetableCache) SubscribeClass(ctx context.Context, term, className string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, config.CacheKey.ClassUpdatesChannel(term, className))
}
