// Package memory provides an in-process cache backend for single-node runs
// and tests. It satisfies the same contract as the Redis cache.
package memory

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/turtacn/livecare/pkg/errors"
)

var ErrCacheMiss = errors.New(errors.ErrCodeCacheMiss, "cache miss")

// Cache stores JSON-encoded values so callers get a private copy on every Get,
// matching the Redis backend.
type Cache struct {
	store *gocache.Cache
}

// NewCache returns an empty cache. Entries never expire unless Set is given a
// positive TTL; expired entries are purged every cleanupInterval.
func NewCache(cleanupInterval time.Duration) *Cache {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &Cache{store: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (c *Cache) Get(_ context.Context, key string, dest interface{}) error {
	v, ok := c.store.Get(key)
	if !ok {
		return ErrCacheMiss
	}
	data, ok := v.([]byte)
	if !ok {
		return ErrCacheMiss
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode cached value")
	}
	return nil
}

func (c *Cache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode cached value")
	}
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c.store.Set(key, data, ttl)
	return nil
}

func (c *Cache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.store.Delete(k)
	}
	return nil
}

// Len reports the number of unexpired entries.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}
