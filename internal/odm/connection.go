// Package odm maps MongoDB documents onto active records: models with
// scopes, criteria, lazy cursors, versioned updates and query-result caching.
package odm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/unifiedui/mongo-odm/internal/core/cache"
	"github.com/unifiedui/mongo-odm/internal/core/docdb"
)

const queryCacheKeyPrefix = "odm:query"

// Connection binds models to a database, an optional query cache and a logger.
type Connection struct {
	database docdb.Database
	cache    cache.Client
	logger   zerolog.Logger

	server            string
	dbName            string
	enableProfiling   bool
	invalidateOnWrite bool

	mu                   sync.Mutex
	queryCachingDuration time.Duration
	queryCachingCount    int
}

// ConnectionConfig holds the configuration for a Connection.
type ConnectionConfig struct {
	Database docdb.Database
	// CacheClient is optional; query caching is disabled without it.
	CacheClient cache.Client
	Logger      *zerolog.Logger
	// Server identifies the database server in cache keys.
	Server          string
	EnableProfiling bool
	// InvalidateOnWrite drops the cached queries of a collection after every
	// write to it.
	InvalidateOnWrite bool
}

// NewConnection creates a new connection.
func NewConnection(cfg *ConnectionConfig) (*Connection, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Database == nil {
		return nil, fmt.Errorf("database is required")
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Connection{
		database:          cfg.Database,
		cache:             cfg.CacheClient,
		logger:            logger,
		server:            cfg.Server,
		dbName:            cfg.Database.Name(),
		enableProfiling:   cfg.EnableProfiling,
		invalidateOnWrite: cfg.InvalidateOnWrite,
	}, nil
}

// Database returns the underlying database handle.
func (c *Connection) Database() docdb.Database { return c.database }

// Logger returns the connection logger.
func (c *Connection) Logger() *zerolog.Logger { return &c.logger }

// Cache enables result caching for the next count queries, each result being
// kept for duration. A zero duration disables caching.
func (c *Connection) Cache(duration time.Duration, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queryCachingDuration = duration
	c.queryCachingCount = count
}

// QueryCachingDuration returns how long cached query results are kept.
func (c *Connection) QueryCachingDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryCachingDuration
}

// QueryCachingCount returns how many upcoming queries will be cached.
func (c *Connection) QueryCachingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queryCachingCount
}

// takeQueryCache consumes one cached query slot. It reports false when
// caching is not enabled.
func (c *Connection) takeQueryCache() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache == nil || c.queryCachingCount <= 0 || c.queryCachingDuration <= 0 {
		return 0, false
	}
	c.queryCachingCount--
	return c.queryCachingDuration, true
}

// queryCacheKey identifies a query result in the cache. The query is hashed
// in canonical Extended JSON so typed values such as ObjectIDs and dates
// never collide with their string forms.
func (c *Connection) queryCacheKey(collection string, query, fields interface{}, order bson.D, skip, limit int64) string {
	payload, err := bson.MarshalExtJSON(bson.D{
		{Key: "query", Value: canonicalValue(query)},
		{Key: "fields", Value: canonicalValue(fields)},
		{Key: "sort", Value: canonicalValue(order)},
		{Key: "skip", Value: skip},
		{Key: "limit", Value: limit},
	}, true, false)
	if err != nil {
		payload = []byte(fmt.Sprintf("%#v|%#v|%#v|%d|%d", query, fields, order, skip, limit))
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s:%s:%s:%s:%s", queryCacheKeyPrefix, c.server, c.dbName, collection, hex.EncodeToString(sum[:]))
}

// canonicalValue rewrites maps as documents with sorted keys so equal
// queries always encode to the same bytes.
func canonicalValue(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		return canonicalMap(t)
	case map[string]interface{}:
		return canonicalMap(t)
	case bson.D:
		out := make(bson.D, len(t))
		for i, e := range t {
			out[i] = bson.E{Key: e.Key, Value: canonicalValue(e.Value)}
		}
		return out
	case bson.A:
		return canonicalArray(t)
	case []interface{}:
		return canonicalArray(t)
	}
	return v
}

func canonicalMap(m map[string]interface{}) bson.D {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(bson.D, 0, len(keys))
	for _, k := range keys {
		out = append(out, bson.E{Key: k, Value: canonicalValue(m[k])})
	}
	return out
}

func canonicalArray(a []interface{}) bson.A {
	out := make(bson.A, len(a))
	for i, e := range a {
		out[i] = canonicalValue(e)
	}
	return out
}

// cachedRows returns the rows stored under key, or false on a miss.
// Undecodable entries are dropped and reported as a miss.
func (c *Connection) cachedRows(ctx context.Context, key string) ([]bson.M, bool) {
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("query cache lookup failed")
		return nil, false
	}
	if data == nil {
		return nil, false
	}

	var entry struct {
		Rows []bson.M `bson:"rows"`
	}
	if err := bson.Unmarshal(data, &entry); err != nil {
		_, _ = c.cache.Delete(ctx, key)
		return nil, false
	}
	c.logger.Debug().Str("key", key).Msg("query result found in cache")
	return entry.Rows, true
}

// storeRows caches rows under key for ttl. Failures are logged only.
func (c *Connection) storeRows(ctx context.Context, key string, rows []bson.M, ttl time.Duration) {
	if rows == nil {
		rows = []bson.M{}
	}
	data, err := bson.Marshal(bson.M{"rows": rows})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to encode query result")
		return
	}
	if err := c.cache.Set(ctx, key, data, ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to store query result")
	}
}

// invalidate drops the cached queries of collection when enabled.
func (c *Connection) invalidate(ctx context.Context, collection string) {
	if !c.invalidateOnWrite || c.cache == nil {
		return
	}
	pattern := fmt.Sprintf("%s:%s:%s:%s:*", queryCacheKeyPrefix, c.server, c.dbName, collection)
	n, err := c.cache.DeletePattern(ctx, pattern)
	if err != nil {
		c.logger.Warn().Err(err).Str("collection", collection).Msg("failed to invalidate query cache")
		return
	}
	c.logger.Debug().Str("collection", collection).Int64("keys", n).Msg("query cache invalidated")
}

// beginProfile starts timing token when profiling is enabled. The returned
// func ends the measurement.
func (c *Connection) beginProfile(token, category string) func() {
	if !c.enableProfiling {
		return func() {}
	}
	start := time.Now()
	return func() {
		c.logger.Info().
			Str("token", token).
			Str("category", category).
			Dur("elapsed", time.Since(start)).
			Msg("profile")
	}
}

// traceQuery logs a rendered query at debug level.
func (c *Connection) traceQuery(collection, op string, fields map[string]interface{}) {
	if c.logger.GetLevel() > zerolog.DebugLevel {
		return
	}
	ev := c.logger.Debug().Str("collection", collection).Str("op", op)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg("executing query")
}
