package cache

import (
	"context"
	"time"
)

// Client is the cache handle held by an ODM connection. It wraps a Cache and
// is what query results are stored through.
type Client interface {
	// Get retrieves a cached query result.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a query result for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key from the cache.
	Delete(ctx context.Context, key string) (bool, error)

	// DeletePattern removes all keys matching the given pattern. Used to drop
	// every cached query of a collection.
	DeletePattern(ctx context.Context, pattern string) (int64, error)

	// Stats reports the lookups, stores and invalidations seen so far.
	Stats() Stats

	// Ping checks if the cache connection is alive.
	Ping(ctx context.Context) error

	// Close closes the cache client connection.
	Close() error
}
