// Package cache provides the TTL result cache owned by each chain
// orchestrator instance.
package cache

import (
	"context"
	"sync"
	"time"

	errbuilder "github.com/ZanzyTHEbar/errbuilder-go"
)

// DefaultTTL is the window within which identical capability calls are
// served from cache instead of re-invoked.
const DefaultTTL = 300 * time.Second

// InMemoryCache provides a simple thread-safe in-memory cache. Entries older
// than the TTL are treated as absent, removed lazily on read and swept
// periodically in the background.
type InMemoryCache struct {
	store map[string]cacheItem
	mutex sync.RWMutex
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
}

type cacheItem struct {
	value      interface{}
	expiration int64
}

// NewInMemoryCache creates a new in-memory cache with the given TTL.
// ttl <= 0 selects DefaultTTL.
func NewInMemoryCache(ttl time.Duration) *InMemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &InMemoryCache{
		store: make(map[string]cacheItem),
		ttl:   ttl,
		done:  make(chan struct{}),
	}
	go c.cleanupLoop(10 * time.Minute)
	return c
}

// Get retrieves an item from the cache.
func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return nil, err
	}

	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, found := c.store[key]
	if !found {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item not found", nil))
	}

	if time.Now().UnixNano() > item.expiration {
		return nil, errbuilder.NotFoundErr(errbuilder.GenericErr("cache item expired", nil))
	}

	return item.value, nil
}

// Set adds or updates an item in the cache.
func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}) error {
	if err := errbuilder.WrapIfContextDone(ctx, nil); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.store[key] = cacheItem{
		value:      value,
		expiration: time.Now().Add(c.ttl).UnixNano(),
	}
	return nil
}

// Stop terminates the background sweeper.
func (c *InMemoryCache) Stop() {
	c.once.Do(func() { close(c.done) })
}

// cleanupLoop periodically removes expired items.
func (c *InMemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mutex.Lock()
			now := time.Now().UnixNano()
			for key, item := range c.store {
				if now > item.expiration {
					delete(c.store, key)
				}
			}
			c.mutex.Unlock()
		}
	}
}
