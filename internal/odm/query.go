package odm

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/unifiedui/mongo-odm/internal/core/docdb"
	domainerrors "github.com/unifiedui/mongo-odm/internal/domain/errors"
)

// Query is an immutable scoped query on a model. Scope and Where return new
// queries; running a query never changes it.
type Query struct {
	model    *Model
	criteria *Criteria
}

// Model returns the queried model.
func (q *Query) Model() *Model { return q.model }

// Criteria returns a copy of the accumulated criteria.
func (q *Query) Criteria() *Criteria { return q.criteria.Clone() }

// Scope returns a query with the named scopes merged in order.
func (q *Query) Scope(names ...string) (*Query, error) {
	c := q.criteria.Clone()
	for _, name := range names {
		scope, ok := q.model.def.Scopes[name]
		if !ok {
			return nil, domainerrors.NewUnknownScopeError(q.model.def.CollectionName, name)
		}
		c.stack(scope)
	}
	return &Query{model: q.model, criteria: c}, nil
}

// Where returns a query with criteria layered over the current one. A
// *Criteria only replaces skip and limit when it sets them; maps follow
// MergeWith.
func (q *Query) Where(criteria interface{}) *Query {
	if c, ok := criteria.(*Criteria); ok {
		if c == nil || c.IsEmpty() {
			return q
		}
		return &Query{model: q.model, criteria: q.criteria.Clone().stack(c)}
	}
	return &Query{model: q.model, criteria: q.criteria.Clone().MergeWith(criteria)}
}

// resolve merges criteria and fields over the query criteria. A *Criteria
// contributes all of its parts; a map is taken as a condition.
func (q *Query) resolve(ctx context.Context, criteria interface{}, fields bson.M) (*Criteria, error) {
	if hook := q.model.def.Hooks.BeforeFind; hook != nil {
		hook(ctx, q.model)
	}
	c := q.criteria.Clone()
	switch v := criteria.(type) {
	case *Criteria:
		c.stack(v)
	default:
		cond, err := conditionFrom(criteria)
		if err != nil {
			return nil, err
		}
		c.condition = mergeMaps(c.condition, cond)
	}
	c.project = mergeMaps(c.project, fields)
	return c, nil
}

// Find returns a lazy cursor over the matching documents.
func (q *Query) Find(ctx context.Context, criteria interface{}, fields bson.M) (*Cursor, error) {
	q.model.trace("Find")
	c, err := q.resolve(ctx, criteria, fields)
	if err != nil {
		return nil, err
	}
	q.model.conn.traceQuery(q.model.def.CollectionName, "find", map[string]interface{}{
		"query":   c.condition,
		"project": c.project,
		"sort":    c.sort,
		"skip":    c.skip,
		"limit":   c.limit,
	})
	return NewCriteriaCursor(q.model, c), nil
}

// FindAll is an alias of Find.
func (q *Query) FindAll(ctx context.Context, criteria interface{}, fields bson.M) (*Cursor, error) {
	return q.Find(ctx, criteria, fields)
}

// FindOne returns the first matching document or nil. Results go through the
// query cache when caching is enabled on the connection.
func (q *Query) FindOne(ctx context.Context, criteria interface{}, fields bson.M) (*Document, error) {
	m := q.model
	m.trace("FindOne")
	c, err := q.resolve(ctx, criteria, fields)
	if err != nil {
		return nil, err
	}
	m.conn.traceQuery(m.def.CollectionName, "findOne", map[string]interface{}{
		"query":   c.condition,
		"project": c.project,
	})

	var (
		row      bson.M
		cacheKey string
		found    bool
	)
	ttl, caching := m.conn.takeQueryCache()
	if caching {
		cacheKey = m.conn.queryCacheKey(m.def.CollectionName, c.condition, c.project, c.sort, 0, 1)
		if rows, hit := m.conn.cachedRows(ctx, cacheKey); hit {
			if len(rows) > 0 {
				row = rows[0]
			}
			found = true
		}
	}

	if !found {
		opts := &docdb.FindOneOptions{}
		if len(c.project) > 0 {
			opts.Projection = c.project
		}
		if len(c.sort) > 0 {
			opts.Sort = c.sort
		}

		end := m.conn.beginProfile(m.profileToken("findOne"), "odm.findOne")
		res := m.collection.FindOne(ctx, c.condition, opts)
		if err := res.Decode(&row); err != nil {
			row = nil
			if !errors.Is(err, docdb.ErrNoDocuments) {
				end()
				return nil, domainerrors.NewDriverError("findOne", err)
			}
		}
		end()

		if caching {
			var rows []bson.M
			if row != nil {
				rows = []bson.M{row}
			}
			m.conn.storeRows(ctx, cacheKey, rows, ttl)
		}
	}

	if row == nil {
		return nil, nil
	}
	return m.PopulateRecord(ctx, row, true, len(c.project) > 0), nil
}

// FindByPk returns the document with primary key pk, or nil.
func (q *Query) FindByPk(ctx context.Context, pk interface{}, fields bson.M) (*Document, error) {
	q.model.trace("FindByPk")
	key, err := q.model.PrimaryKeyValue(pk)
	if err != nil {
		return nil, err
	}
	return q.FindOne(ctx, bson.M{q.model.def.PrimaryKey: key}, fields)
}

// FindAllByPk returns the documents whose primary key is pk, or one of the
// keys when pk is a slice.
func (q *Query) FindAllByPk(ctx context.Context, pk interface{}, fields bson.M) (*Cursor, error) {
	m := q.model
	var keys []interface{}
	switch v := pk.(type) {
	case string, primitive.ObjectID:
		key, err := m.PrimaryKeyValue(v)
		if err != nil {
			return nil, err
		}
		return q.Find(ctx, bson.M{m.def.PrimaryKey: key}, fields)
	case []string:
		for _, s := range v {
			keys = append(keys, s)
		}
	case []primitive.ObjectID:
		for _, id := range v {
			keys = append(keys, id)
		}
	case []interface{}:
		keys = v
	case bson.A:
		keys = v
	default:
		return nil, domainerrors.NewInvalidPrimaryKeyError(fmt.Sprintf("%T", pk), nil)
	}

	in := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		key, err := m.PrimaryKeyValue(k)
		if err != nil {
			return nil, err
		}
		in = append(in, key)
	}
	return q.Find(ctx, bson.M{m.def.PrimaryKey: bson.M{"$in": in}}, fields)
}

// Count counts the documents matching criteria within the query scope.
func (q *Query) Count(ctx context.Context, criteria interface{}) (int64, error) {
	m := q.model
	m.trace("Count")
	c, err := q.resolve(ctx, criteria, nil)
	if err != nil {
		return 0, err
	}
	end := m.conn.beginProfile(m.profileToken("count"), "odm.count")
	n, err := m.collection.CountDocuments(ctx, c.condition, nil)
	end()
	if err != nil {
		return 0, domainerrors.NewDriverError("count", err)
	}
	return n, nil
}

// Exists reports whether a document matches criteria within the query scope.
func (q *Query) Exists(ctx context.Context, criteria interface{}) (bool, error) {
	m := q.model
	m.trace("Exists")
	c, err := q.resolve(ctx, criteria, nil)
	if err != nil {
		return false, err
	}
	n, err := m.collection.CountDocuments(ctx, c.condition, &docdb.CountOptions{Limit: 1})
	if err != nil {
		return false, domainerrors.NewDriverError("exists", err)
	}
	return n > 0, nil
}
