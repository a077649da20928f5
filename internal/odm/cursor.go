package odm

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/unifiedui/mongo-odm/internal/core/docdb"
	domainerrors "github.com/unifiedui/mongo-odm/internal/domain/errors"
)

// Cursor is a lazy iterator over query results. Sort, Skip, Limit, Timeout
// and Hint shape the query until the first call to Next executes it. When
// query caching is enabled on the connection the results are read from, or
// stored into, the cache and replayed from memory.
// A Cursor is not safe for concurrent use.
type Cursor struct {
	model      *Model
	condition  bson.M
	projection bson.M
	sort       bson.D
	skip       int64
	limit      int64
	maxTime    time.Duration
	hint       interface{}
	partial    bool

	native docdb.Cursor
	// external is set for cursors wrapping a driver cursor opened elsewhere.
	external bool

	run       bool
	replay    bool
	fromCache bool
	rows      []bson.M
	pos       int

	current *Document
	err     error
}

// CursorInfo describes the query behind a cursor.
type CursorInfo struct {
	Collection string `json:"collection"`
	Query      bson.M `json:"query"`
	Fields     bson.M `json:"fields"`
	Sort       bson.D `json:"sort"`
	Skip       int64  `json:"skip"`
	Limit      int64  `json:"limit"`
	Started    bool   `json:"started"`
	FromCache  bool   `json:"fromCache"`
}

// NewCursor returns a cursor over the documents of model matching condition.
// A non-empty projection makes every returned document partial.
func NewCursor(model *Model, condition, projection bson.M) *Cursor {
	if condition == nil {
		condition = bson.M{}
	}
	return &Cursor{
		model:      model,
		condition:  condition,
		projection: projection,
		partial:    len(projection) > 0,
	}
}

// NewCriteriaCursor returns a cursor for every part of c.
func NewCriteriaCursor(model *Model, c *Criteria) *Cursor {
	cur := NewCursor(model, c.Condition(), c.Project())
	cur.sort = c.Sort()
	cur.skip = c.Skip()
	cur.limit = c.Limit()
	return cur
}

// NewNativeCursor wraps a driver cursor that is already executing.
func NewNativeCursor(model *Model, native docdb.Cursor, partial bool) *Cursor {
	return &Cursor{
		model:     model,
		condition: bson.M{},
		partial:   partial,
		native:    native,
		external:  true,
		run:       true,
	}
}

// Sort sets the sort order. Directions may be "asc" and "desc".
func (c *Cursor) Sort(spec interface{}) *Cursor {
	c.sort = normalizeSort(spec)
	return c
}

// Skip sets the number of documents to skip.
func (c *Cursor) Skip(n int64) *Cursor {
	if n < 0 {
		n = 0
	}
	c.skip = n
	return c
}

// Limit caps the number of documents; 0 means unbounded.
func (c *Cursor) Limit(n int64) *Cursor {
	if n < 0 {
		n = 0
	}
	c.limit = n
	return c
}

// Timeout bounds the server-side execution time in milliseconds.
func (c *Cursor) Timeout(ms int64) *Cursor {
	c.maxTime = time.Duration(ms) * time.Millisecond
	return c
}

// Hint forces the index used by the query.
func (c *Cursor) Hint(hint interface{}) *Cursor {
	c.hint = hint
	return c
}

// Partial reports whether documents are loaded through a projection.
func (c *Cursor) Partial() bool { return c.partial }

// FromCache reports whether the rows are replayed from the query cache.
func (c *Cursor) FromCache() bool { return c.fromCache }

// Next advances to the next document. It returns false at the end of the
// results or on error; check Err afterwards.
func (c *Cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if !c.run {
		if err := c.execute(ctx); err != nil {
			c.err = err
			return false
		}
	}

	var row bson.M
	if c.replay {
		if c.pos >= len(c.rows) {
			c.current = nil
			return false
		}
		row = c.rows[c.pos]
		c.pos++
	} else {
		if c.native == nil || !c.native.Next(ctx) {
			if c.native != nil {
				if err := c.native.Err(); err != nil {
					c.err = domainerrors.NewDriverError("find", err)
				}
			}
			c.current = nil
			return false
		}
		if err := c.native.Decode(&row); err != nil {
			c.err = domainerrors.NewDriverError("find", err)
			c.current = nil
			return false
		}
		if c.external {
			c.rows = append(c.rows, row)
			c.pos = len(c.rows)
		}
	}

	c.current = c.model.PopulateRecord(ctx, row, true, c.partial)
	return true
}

// Current returns the document Next moved to.
func (c *Cursor) Current() *Document { return c.current }

// Key returns the primary key of the current document.
func (c *Cursor) Key() interface{} {
	if c.current == nil {
		return nil
	}
	return c.current.PrimaryKey()
}

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error { return c.err }

// execute runs the query, going through the query cache when enabled.
func (c *Cursor) execute(ctx context.Context) error {
	c.run = true
	conn := c.model.conn

	if ttl, ok := conn.takeQueryCache(); ok {
		key := conn.queryCacheKey(c.model.def.CollectionName, c.condition, c.projection, c.sort, c.skip, c.limit)
		if rows, hit := conn.cachedRows(ctx, key); hit {
			c.rows = rows
			c.replay = true
			c.fromCache = true
			return nil
		}
		rows, err := c.fetchAll(ctx)
		if err != nil {
			return err
		}
		conn.storeRows(ctx, key, rows, ttl)
		c.rows = rows
		c.replay = true
		c.fromCache = true
		return nil
	}

	native, err := c.open(ctx)
	if err != nil {
		return err
	}
	c.native = native
	return nil
}

func (c *Cursor) open(ctx context.Context) (docdb.Cursor, error) {
	m := c.model
	opts := &docdb.FindOptions{
		Skip:    c.skip,
		Limit:   c.limit,
		Hint:    c.hint,
		MaxTime: c.maxTime,
	}
	if len(c.projection) > 0 {
		opts.Projection = c.projection
	}
	if len(c.sort) > 0 {
		opts.Sort = c.sort
	}

	end := m.conn.beginProfile(m.profileToken("find"), "odm.find")
	defer end()
	native, err := m.collection.Find(ctx, c.condition, opts)
	if err != nil {
		return nil, domainerrors.NewDriverError("find", err)
	}
	return native, nil
}

func (c *Cursor) fetchAll(ctx context.Context) ([]bson.M, error) {
	native, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer native.Close(ctx)

	var rows []bson.M
	if err := native.All(ctx, &rows); err != nil {
		return nil, domainerrors.NewDriverError("find", err)
	}
	return rows, nil
}

// materialize drains a live cursor into memory and switches to replay. Rows
// an external cursor already returned are kept, and the position is not moved.
func (c *Cursor) materialize(ctx context.Context) error {
	if c.replay {
		return nil
	}
	if !c.run {
		if err := c.execute(ctx); err != nil {
			return err
		}
		if c.replay {
			return nil
		}
	}
	if c.native == nil {
		return fmt.Errorf("cursor is closed")
	}
	var rows []bson.M
	err := c.native.All(ctx, &rows)
	_ = c.native.Close(ctx)
	if err != nil {
		return domainerrors.NewDriverError("find", err)
	}
	c.rows = append(c.rows, rows...)
	c.replay = true
	return nil
}

// Rewind resets the cursor so the next call to Next runs the query again.
// Cursors wrapping a driver cursor are drained into memory and restart at
// their first row.
func (c *Cursor) Rewind(ctx context.Context) error {
	c.current = nil
	c.err = nil
	if c.external {
		if !c.replay {
			if err := c.materialize(ctx); err != nil {
				return err
			}
		}
		c.pos = 0
		return nil
	}
	if c.native != nil {
		_ = c.native.Close(ctx)
		c.native = nil
	}
	c.run = false
	c.replay = false
	c.fromCache = false
	c.rows = nil
	c.pos = 0
	return nil
}

// Count returns the number of matching documents. Replayed results report
// the number of rows held, which for an external cursor includes the rows
// already iterated; otherwise a count query runs, honouring skip and limit
// only when takeSkip is set.
func (c *Cursor) Count(ctx context.Context, takeSkip bool) (int64, error) {
	if c.external && !c.replay {
		if err := c.materialize(ctx); err != nil {
			return 0, err
		}
	}
	if c.replay {
		return int64(len(c.rows)), nil
	}

	m := c.model
	var opts *docdb.CountOptions
	if takeSkip {
		opts = &docdb.CountOptions{Skip: c.skip, Limit: c.limit}
	}
	end := m.conn.beginProfile(m.profileToken("count"), "odm.count")
	n, err := m.collection.CountDocuments(ctx, c.condition, opts)
	end()
	if err != nil {
		return 0, domainerrors.NewDriverError("count", err)
	}
	return n, nil
}

// All reads every remaining document.
func (c *Cursor) All(ctx context.Context) ([]*Document, error) {
	var docs []*Document
	for c.Next(ctx) {
		docs = append(docs, c.current)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Close releases the driver cursor.
func (c *Cursor) Close(ctx context.Context) error {
	if c.native == nil {
		return nil
	}
	err := c.native.Close(ctx)
	c.native = nil
	if err != nil {
		return fmt.Errorf("failed to close cursor: %w", err)
	}
	return nil
}

// Info describes the query behind the cursor.
func (c *Cursor) Info() CursorInfo {
	return CursorInfo{
		Collection: c.model.def.CollectionName,
		Query:      c.condition,
		Fields:     c.projection,
		Sort:       c.sort,
		Skip:       c.skip,
		Limit:      c.limit,
		Started:    c.run,
		FromCache:  c.fromCache,
	}
}
