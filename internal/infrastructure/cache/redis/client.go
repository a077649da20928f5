package redis

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/unifiedui/mongo-odm/internal/core/cache"
)

// Client is the query cache handle of an ODM connection. It stores results
// through a Cache and keeps traffic counters for the health endpoint.
type Client struct {
	cache cache.Cache

	hits        atomic.Int64
	misses      atomic.Int64
	stores      atomic.Int64
	invalidated atomic.Int64
}

// NewClient connects to Redis and returns a query cache client.
func NewClient(cfg Config) (*Client, error) {
	c, err := NewCache(cfg)
	if err != nil {
		return nil, err
	}
	return NewClientWithCache(c), nil
}

// NewClientWithCache returns a client storing results through c.
func NewClientWithCache(c cache.Cache) *Client {
	return &Client{cache: c}
}

// Get returns the cached result under key, or nil on a miss.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if value == nil {
		c.misses.Add(1)
		return nil, nil
	}
	c.hits.Add(1)
	return value, nil
}

// Set stores a result for ttl; zero uses the cache default.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.cache.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	c.stores.Add(1)
	return nil
}

// Delete drops a single result, typically one that failed to decode.
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	return c.cache.Delete(ctx, key)
}

// DeletePattern drops every result whose key matches pattern.
func (c *Client) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	n, err := c.cache.DeletePattern(ctx, pattern)
	if err != nil {
		return 0, err
	}
	c.invalidated.Add(n)
	return n, nil
}

// Stats returns a snapshot of the traffic counters.
func (c *Client) Stats() cache.Stats {
	return cache.Stats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Stores:      c.stores.Load(),
		Invalidated: c.invalidated.Load(),
	}
}

// Ping checks if the cache connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.cache.Ping(ctx)
}

// Close closes the underlying cache.
func (c *Client) Close() error {
	return c.cache.Close()
}
