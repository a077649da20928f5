package odm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/unifiedui/mongo-odm/internal/core/docdb"
	domainerrors "github.com/unifiedui/mongo-odm/internal/domain/errors"
)

const (
	// DefaultPrimaryKey is the primary key field used when none is configured.
	DefaultPrimaryKey = "_id"
	// DefaultVersionField holds the document version of versioned models.
	DefaultVersionField = "_v"

	ScenarioInsert = "insert"
	ScenarioUpdate = "update"
)

// Hooks are the lifecycle callbacks of a model. Returning false from a
// Before hook cancels the operation.
type Hooks struct {
	BeforeSave   func(ctx context.Context, d *Document) bool
	AfterSave    func(ctx context.Context, d *Document)
	BeforeDelete func(ctx context.Context, d *Document) bool
	AfterDelete  func(ctx context.Context, d *Document)
	BeforeFind   func(ctx context.Context, m *Model)
	AfterFind    func(ctx context.Context, d *Document)
}

// Validator checks one attribute of a document and records failures with
// Document.AddError. A returned error aborts validation.
type Validator interface {
	Validate(ctx context.Context, d *Document, attribute string) error
}

// Rule applies a validator to a set of attributes, optionally only in the
// listed scenarios.
type Rule struct {
	Attributes []string
	Validator  Validator
	On         []string
}

func (r Rule) appliesTo(scenario string) bool {
	if len(r.On) == 0 {
		return true
	}
	for _, s := range r.On {
		if s == scenario {
			return true
		}
	}
	return false
}

// Definition declares a model.
type Definition struct {
	// Name is the registry name. Defaults to CollectionName.
	Name           string
	CollectionName string
	PrimaryKey     string
	Versioned      bool
	VersionField   string

	Scopes       map[string]*Criteria
	DefaultScope *Criteria

	// SafeAttributes may be mass assigned and are used by Document.Search.
	SafeAttributes []string
	Rules          []Rule
	Hooks          Hooks
	Indexes        []docdb.IndexModel

	// KeyFunc converts raw primary key input into the stored key value.
	KeyFunc func(v interface{}) (interface{}, error)
}

// Model gives access to the documents of one collection.
type Model struct {
	def        Definition
	conn       *Connection
	collection docdb.Collection
}

// NewModel creates a model for def on conn.
func NewModel(conn *Connection, def Definition) (*Model, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if def.CollectionName == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if def.Name == "" {
		def.Name = def.CollectionName
	}
	if def.PrimaryKey == "" {
		def.PrimaryKey = DefaultPrimaryKey
	}
	if def.VersionField == "" {
		def.VersionField = DefaultVersionField
	}

	return &Model{
		def:        def,
		conn:       conn,
		collection: conn.Database().Collection(def.CollectionName),
	}, nil
}

// Name returns the registry name of the model.
func (m *Model) Name() string { return m.def.Name }

// CollectionName returns the name of the backing collection.
func (m *Model) CollectionName() string { return m.def.CollectionName }

// Collection returns the backing collection.
func (m *Model) Collection() docdb.Collection { return m.collection }

// Connection returns the connection the model runs on.
func (m *Model) Connection() *Connection { return m.conn }

// PrimaryKeyField returns the primary key field name.
func (m *Model) PrimaryKeyField() string { return m.def.PrimaryKey }

// Versioned reports whether updates use optimistic concurrency.
func (m *Model) Versioned() bool { return m.def.Versioned }

// VersionField returns the field holding the document version.
func (m *Model) VersionField() string { return m.def.VersionField }

// SafeAttributes returns the attributes open to mass assignment.
func (m *Model) SafeAttributes() []string { return m.def.SafeAttributes }

// New returns a new, unsaved document.
func (m *Model) New() *Document {
	return &Document{
		model:      m,
		attributes: bson.M{},
		isNew:      true,
		scenario:   ScenarioInsert,
	}
}

// Cache enables query-result caching on the model's connection.
func (m *Model) Cache(duration time.Duration, count int) *Model {
	m.conn.Cache(duration, count)
	return m
}

// PrimaryKeyValue converts v into the value stored in the primary key field.
// With the default _id key, hex strings become ObjectIDs.
func (m *Model) PrimaryKeyValue(v interface{}) (interface{}, error) {
	if m.def.KeyFunc != nil {
		return m.def.KeyFunc(v)
	}
	if v == nil {
		return nil, domainerrors.NewMissingPrimaryKeyError(m.def.CollectionName)
	}
	if m.def.PrimaryKey != DefaultPrimaryKey {
		return v, nil
	}
	switch id := v.(type) {
	case primitive.ObjectID:
		return id, nil
	case string:
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, domainerrors.NewInvalidPrimaryKeyError(id, err)
		}
		return oid, nil
	default:
		return v, nil
	}
}

// query starts a query from the default scope.
func (m *Model) query() *Query {
	c := NewCriteria()
	if m.def.DefaultScope != nil {
		c = m.def.DefaultScope.Clone()
	}
	return &Query{model: m, criteria: c}
}

// Scope returns a query carrying the named scopes on top of the default scope.
func (m *Model) Scope(names ...string) (*Query, error) {
	return m.query().Scope(names...)
}

// Where returns a query with criteria merged over the default scope.
func (m *Model) Where(criteria interface{}) *Query {
	return m.query().Where(criteria)
}

// ResetScope returns a query without the default scope.
func (m *Model) ResetScope() *Query {
	return &Query{model: m, criteria: NewCriteria()}
}

// Find returns a lazy cursor. criteria is nil, a *Criteria or a condition map.
func (m *Model) Find(ctx context.Context, criteria interface{}, fields bson.M) (*Cursor, error) {
	return m.query().Find(ctx, criteria, fields)
}

// FindAll is an alias of Find.
func (m *Model) FindAll(ctx context.Context, criteria interface{}, fields bson.M) (*Cursor, error) {
	return m.query().Find(ctx, criteria, fields)
}

// FindAllByAttributes is an alias of Find.
func (m *Model) FindAllByAttributes(ctx context.Context, attributes bson.M, fields bson.M) (*Cursor, error) {
	return m.query().Find(ctx, attributes, fields)
}

// FindOne returns the first matching document, or nil.
func (m *Model) FindOne(ctx context.Context, criteria interface{}, fields bson.M) (*Document, error) {
	return m.query().FindOne(ctx, criteria, fields)
}

// FindByPk returns the document with primary key pk, or nil.
func (m *Model) FindByPk(ctx context.Context, pk interface{}, fields bson.M) (*Document, error) {
	return m.query().FindByPk(ctx, pk, fields)
}

// FindAllByPk returns the documents whose primary key is pk or one of pk.
func (m *Model) FindAllByPk(ctx context.Context, pk interface{}, fields bson.M) (*Cursor, error) {
	return m.query().FindAllByPk(ctx, pk, fields)
}

// Count counts the documents matching criteria within the default scope.
func (m *Model) Count(ctx context.Context, criteria interface{}) (int64, error) {
	return m.query().Count(ctx, criteria)
}

// Exists reports whether a document matches criteria within the default scope.
func (m *Model) Exists(ctx context.Context, criteria interface{}) (bool, error) {
	return m.query().Exists(ctx, criteria)
}

// UpdateByPk applies update to the document with primary key pk. criteria
// adds further conditions to the filter.
func (m *Model) UpdateByPk(ctx context.Context, pk interface{}, update bson.M, criteria interface{}) (*docdb.UpdateResult, error) {
	m.trace("UpdateByPk")
	key, err := m.PrimaryKeyValue(pk)
	if err != nil {
		return nil, err
	}
	cond, err := conditionFrom(criteria)
	if err != nil {
		return nil, err
	}
	filter := mergeMaps(cloneMap(cond), bson.M{m.def.PrimaryKey: key})
	return m.updateOne(ctx, "updateByPk", filter, update)
}

// UpdateAll applies update to every document matching criteria.
func (m *Model) UpdateAll(ctx context.Context, criteria interface{}, update bson.M) (*docdb.UpdateResult, error) {
	m.trace("UpdateAll")
	filter, err := conditionFrom(criteria)
	if err != nil {
		return nil, err
	}
	m.conn.traceQuery(m.def.CollectionName, "updateAll", map[string]interface{}{"query": filter, "document": update})
	end := m.conn.beginProfile(m.profileToken("updateAll"), "odm.updateAll")
	res, err := m.collection.UpdateMany(ctx, filter, update)
	end()
	if err != nil {
		return nil, domainerrors.NewDriverError("updateAll", err)
	}
	m.conn.invalidate(ctx, m.def.CollectionName)
	return res, nil
}

// updateOne replaces the first match when update holds no operators,
// otherwise applies the operators to it.
func (m *Model) updateOne(ctx context.Context, op string, filter, update bson.M) (*docdb.UpdateResult, error) {
	m.conn.traceQuery(m.def.CollectionName, op, map[string]interface{}{"query": filter, "document": update})
	end := m.conn.beginProfile(m.profileToken(op), "odm."+op)
	var (
		res *docdb.UpdateResult
		err error
	)
	if isOperatorDocument(update) {
		res, err = m.collection.UpdateOne(ctx, filter, update)
	} else {
		res, err = m.collection.ReplaceOne(ctx, filter, update)
	}
	end()
	if err != nil {
		return nil, domainerrors.NewDriverError(op, err)
	}
	m.conn.invalidate(ctx, m.def.CollectionName)
	return res, nil
}

// DeleteByPk removes the document with primary key pk.
func (m *Model) DeleteByPk(ctx context.Context, pk interface{}, criteria interface{}) (*docdb.DeleteResult, error) {
	m.trace("DeleteByPk")
	key, err := m.PrimaryKeyValue(pk)
	if err != nil {
		return nil, err
	}
	cond, err := conditionFrom(criteria)
	if err != nil {
		return nil, err
	}
	filter := mergeMaps(cloneMap(cond), bson.M{m.def.PrimaryKey: key})

	m.conn.traceQuery(m.def.CollectionName, "deleteByPk", map[string]interface{}{"query": filter})
	end := m.conn.beginProfile(m.profileToken("deleteByPk"), "odm.deleteByPk")
	res, err := m.collection.DeleteOne(ctx, filter)
	end()
	if err != nil {
		return nil, domainerrors.NewDriverError("deleteByPk", err)
	}
	m.conn.invalidate(ctx, m.def.CollectionName)
	return res, nil
}

// DeleteAll removes every document matching criteria.
func (m *Model) DeleteAll(ctx context.Context, criteria interface{}) (*docdb.DeleteResult, error) {
	m.trace("DeleteAll")
	filter, err := conditionFrom(criteria)
	if err != nil {
		return nil, err
	}

	m.conn.traceQuery(m.def.CollectionName, "deleteAll", map[string]interface{}{"query": filter})
	end := m.conn.beginProfile(m.profileToken("deleteAll"), "odm.deleteAll")
	res, err := m.collection.DeleteMany(ctx, filter)
	end()
	if err != nil {
		return nil, domainerrors.NewDriverError("deleteAll", err)
	}
	m.conn.invalidate(ctx, m.def.CollectionName)
	return res, nil
}

// Distinct returns the distinct values of field among documents matching query.
func (m *Model) Distinct(ctx context.Context, field string, query interface{}) ([]interface{}, error) {
	m.trace("Distinct")
	filter, err := conditionFrom(query)
	if err != nil {
		return nil, err
	}
	end := m.conn.beginProfile(m.profileToken("distinct"), "odm.distinct")
	values, err := m.collection.Distinct(ctx, field, filter)
	end()
	if err != nil {
		return nil, domainerrors.NewDriverError("distinct", err)
	}
	return values, nil
}

// Aggregate runs pipeline and returns the raw result rows.
func (m *Model) Aggregate(ctx context.Context, pipeline interface{}) ([]bson.M, error) {
	m.trace("Aggregate")
	end := m.conn.beginProfile(m.profileToken("aggregate"), "odm.aggregate")
	defer end()

	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, domainerrors.NewDriverError("aggregate", err)
	}
	defer cursor.Close(ctx)

	var rows []bson.M
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, domainerrors.NewDriverError("aggregate", err)
	}
	return rows, nil
}

// EnsureIndexes creates indexes, or the indexes of the definition when none
// are given.
func (m *Model) EnsureIndexes(ctx context.Context, indexes ...docdb.IndexModel) ([]string, error) {
	if len(indexes) == 0 {
		indexes = m.def.Indexes
	}
	if len(indexes) == 0 {
		return nil, nil
	}
	names, err := m.collection.CreateIndexes(ctx, indexes)
	if err != nil {
		return nil, domainerrors.NewDriverError("ensureIndexes", err)
	}
	return names, nil
}

// PopulateRecord builds a persisted document from a raw row. Partial records
// remember which fields were projected. A nil row yields nil.
func (m *Model) PopulateRecord(ctx context.Context, row bson.M, callAfterFind, partial bool) *Document {
	if row == nil {
		return nil
	}
	d := &Document{
		model:      m,
		attributes: cloneMap(row),
		isNew:      false,
		scenario:   ScenarioUpdate,
	}
	if partial {
		d.isPartial = true
		d.projected = make(map[string]bool, len(row))
		for name := range row {
			d.projected[name] = true
		}
	}
	if callAfterFind && m.def.Hooks.AfterFind != nil {
		m.def.Hooks.AfterFind(ctx, d)
	}
	return d
}

// PopulateRecords builds persisted documents from raw rows.
func (m *Model) PopulateRecords(ctx context.Context, rows []bson.M, callAfterFind bool) []*Document {
	records := make([]*Document, 0, len(rows))
	for _, row := range rows {
		if d := m.PopulateRecord(ctx, row, callAfterFind, false); d != nil {
			records = append(records, d)
		}
	}
	return records
}

func (m *Model) trace(op string) {
	m.conn.logger.Debug().Str("model", m.def.Name).Str("op", op).Msg("trace")
}

func (m *Model) profileToken(op string) string {
	return fmt.Sprintf("odm.query.%s.%s", m.def.CollectionName, op)
}

// conditionFrom extracts the filter document from nil, a *Criteria or a map.
func conditionFrom(criteria interface{}) (bson.M, error) {
	switch c := criteria.(type) {
	case nil:
		return bson.M{}, nil
	case *Criteria:
		if c == nil {
			return bson.M{}, nil
		}
		return c.Condition(), nil
	case bson.M:
		return c, nil
	case map[string]interface{}:
		return bson.M(c), nil
	case bson.D:
		return c.Map(), nil
	default:
		return nil, domainerrors.NewBadRequestError("unsupported criteria", fmt.Sprintf("%T", criteria))
	}
}

func isOperatorDocument(update bson.M) bool {
	for k := range update {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}
