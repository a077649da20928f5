package cache

// Type represents the type of cache.
type Type string

const (
	// TypeRedis represents a Redis cache.
	TypeRedis Type = "redis"
	// TypeNone disables query caching.
	TypeNone Type = "none"
)

// Stats counts the query cache traffic of a client since it was created.
type Stats struct {
	// Hits and Misses count lookups that found or did not find a result.
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	// Stores counts results written to the cache.
	Stores int64 `json:"stores"`
	// Invalidated counts keys dropped by pattern deletes.
	Invalidated int64 `json:"invalidated"`
}
