package storage

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/Veraticus/the-books-must-balance/internal/service"
)

// DefaultFlagCacheTTL is how long a flag read stays cached when no TTL is given.
const DefaultFlagCacheTTL = 5 * time.Minute

// absentFlag marks a key that was read and found missing.
type absentFlag struct{}

// CachedFlagStore fronts a FlagStore with an in-process cache. Writes and
// deletes go through to the backing store first and update the cache only
// when they succeed, so a cached value never runs ahead of the store.
type CachedFlagStore struct {
	next  service.FlagStore
	cache *cache.Cache
}

// NewCachedFlagStore wraps next with a cache whose entries live for ttl.
func NewCachedFlagStore(next service.FlagStore, ttl time.Duration) *CachedFlagStore {
	if ttl <= 0 {
		ttl = DefaultFlagCacheTTL
	}
	return &CachedFlagStore{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// ReadFlag serves key from cache when possible.
func (c *CachedFlagStore) ReadFlag(ctx context.Context, key string) (string, bool, error) {
	if v, ok := c.cache.Get(key); ok {
		if value, isString := v.(string); isString {
			return value, true, nil
		}
		return "", false, nil
	}

	value, found, err := c.next.ReadFlag(ctx, key)
	if err != nil {
		return "", false, err
	}
	if found {
		c.cache.Set(key, value, cache.DefaultExpiration)
	} else {
		c.cache.Set(key, absentFlag{}, cache.DefaultExpiration)
	}
	return value, found, nil
}

// WriteFlag writes through to the backing store.
func (c *CachedFlagStore) WriteFlag(ctx context.Context, key, value string) error {
	if err := c.next.WriteFlag(ctx, key, value); err != nil {
		c.cache.Delete(key)
		return err
	}
	c.cache.Set(key, value, cache.DefaultExpiration)
	return nil
}

// DeleteFlag deletes through to the backing store.
func (c *CachedFlagStore) DeleteFlag(ctx context.Context, key string) error {
	c.cache.Delete(key)
	return c.next.DeleteFlag(ctx, key)
}

// Invalidate drops every cached entry.
func (c *CachedFlagStore) Invalidate() {
	c.cache.Flush()
}
