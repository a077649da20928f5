package odm

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	domainerrors "github.com/unifiedui/mongo-odm/internal/domain/errors"
)

// Document is an active record: the attributes of one document plus the
// bookkeeping needed to insert, update or delete it.
// A Document is not safe for concurrent use.
type Document struct {
	model      *Model
	attributes bson.M
	isNew      bool
	isPartial  bool
	projected  map[string]bool
	scenario   string
	lastResult interface{}
	errors     map[string][]string
}

// Model returns the model the document belongs to.
func (d *Document) Model() *Model { return d.model }

// IsNew reports whether the document has not been persisted yet.
func (d *Document) IsNew() bool { return d.isNew }

// IsPartial reports whether the document was loaded through a projection.
func (d *Document) IsPartial() bool { return d.isPartial }

// ProjectedFields returns the fields present on a partial document.
func (d *Document) ProjectedFields() []string {
	fields := make([]string, 0, len(d.projected))
	for f := range d.projected {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// SetProjectedFields marks the document partial with the given fields.
func (d *Document) SetProjectedFields(fields ...string) {
	d.isPartial = true
	d.projected = make(map[string]bool, len(fields))
	for _, f := range fields {
		d.projected[f] = true
	}
}

// Scenario returns the validation scenario.
func (d *Document) Scenario() string { return d.scenario }

// SetScenario sets the validation scenario.
func (d *Document) SetScenario(scenario string) { d.scenario = scenario }

// LastResult returns the raw result of the last write: the inserted id or a
// *docdb.UpdateResult.
func (d *Document) LastResult() interface{} { return d.lastResult }

// Get returns the value of an attribute, or nil.
func (d *Document) Get(name string) interface{} { return d.attributes[name] }

// Set assigns an attribute.
func (d *Document) Set(name string, value interface{}) *Document {
	d.attributes[name] = value
	return d
}

// Has reports whether an attribute is present.
func (d *Document) Has(name string) bool {
	_, ok := d.attributes[name]
	return ok
}

// Unset removes an attribute.
func (d *Document) Unset(name string) *Document {
	delete(d.attributes, name)
	return d
}

// Attributes returns a copy of all attributes.
func (d *Document) Attributes() bson.M { return cloneMap(d.attributes) }

// SetAttributes assigns attributes from a map or a struct (using bson tags).
// With safeOnly, only the model's safe attributes are assigned.
func (d *Document) SetAttributes(values interface{}, safeOnly bool) error {
	var attrs map[string]interface{}
	switch v := values.(type) {
	case nil:
		return nil
	case bson.M:
		attrs = v
	case map[string]interface{}:
		attrs = v
	default:
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName: "bson",
			Result:  &attrs,
		})
		if err != nil {
			return err
		}
		if err := dec.Decode(values); err != nil {
			return fmt.Errorf("failed to read attributes: %w", err)
		}
	}

	var safe map[string]bool
	if safeOnly {
		safe = make(map[string]bool, len(d.model.def.SafeAttributes))
		for _, name := range d.model.def.SafeAttributes {
			safe[name] = true
		}
	}
	for name, value := range attrs {
		if safeOnly && !safe[name] {
			continue
		}
		d.attributes[name] = value
	}
	return nil
}

// Decode copies the attributes into out, a pointer to a struct, matching
// fields by their bson tags.
func (d *Document) Decode(out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "bson",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(objectIDToStringHook, dateTimeHook),
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]interface{}(d.attributes))
}

func objectIDToStringHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if id, ok := data.(primitive.ObjectID); ok && to.Kind() == reflect.String {
		return id.Hex(), nil
	}
	return data, nil
}

func dateTimeHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if dt, ok := data.(primitive.DateTime); ok && to == reflect.TypeOf(time.Time{}) {
		return dt.Time(), nil
	}
	return data, nil
}

// PrimaryKey returns the raw primary key attribute.
func (d *Document) PrimaryKey() interface{} {
	return d.attributes[d.model.def.PrimaryKey]
}

// Version returns the version attribute of a versioned document.
func (d *Document) Version() int64 {
	n, _ := toInt64(d.attributes[d.model.def.VersionField])
	return n
}

// Errors returns the validation errors by attribute.
func (d *Document) Errors() map[string][]string { return d.errors }

// HasErrors reports whether validation recorded any error.
func (d *Document) HasErrors() bool { return len(d.errors) > 0 }

// AddError records a validation error for attribute.
func (d *Document) AddError(attribute, message string) {
	if d.errors == nil {
		d.errors = make(map[string][]string)
	}
	d.errors[attribute] = append(d.errors[attribute], message)
}

// ClearErrors drops all validation errors.
func (d *Document) ClearErrors() { d.errors = nil }

// Validate runs the model rules for the current scenario. When attributes
// are given only those are validated.
func (d *Document) Validate(ctx context.Context, attributes ...string) (bool, error) {
	d.ClearErrors()
	var only map[string]bool
	if len(attributes) > 0 {
		only = make(map[string]bool, len(attributes))
		for _, a := range attributes {
			only[a] = true
		}
	}

	for _, rule := range d.model.def.Rules {
		if rule.Validator == nil || !rule.appliesTo(d.scenario) {
			continue
		}
		for _, attr := range rule.Attributes {
			if only != nil && !only[attr] {
				continue
			}
			if err := rule.Validator.Validate(ctx, d, attr); err != nil {
				return false, err
			}
		}
	}
	return !d.HasErrors(), nil
}

// Save validates the document when runValidation is set, then inserts or
// updates it. It returns false when validation fails or a hook cancels.
func (d *Document) Save(ctx context.Context, runValidation bool, attributes ...string) (bool, error) {
	if runValidation {
		ok, err := d.Validate(ctx, attributes...)
		if err != nil || !ok {
			return false, err
		}
	}
	if d.isNew {
		return d.Insert(ctx, attributes...)
	}
	return d.Update(ctx, attributes...)
}

// Insert writes a new document. Versioned documents start at version 1 and a
// missing _id is generated.
func (d *Document) Insert(ctx context.Context, attributes ...string) (bool, error) {
	m := d.model
	if !d.isNew {
		return false, domainerrors.NewRecordNotNewError(m.def.CollectionName)
	}
	if hook := m.def.Hooks.BeforeSave; hook != nil && !hook(ctx, d) {
		return false, nil
	}
	m.trace("Insert")

	document := d.pick(attributes)
	if m.def.Versioned {
		d.attributes[m.def.VersionField] = int64(1)
		document[m.def.VersionField] = int64(1)
	}
	if m.def.PrimaryKey == DefaultPrimaryKey && d.attributes[DefaultPrimaryKey] == nil {
		id := primitive.NewObjectID()
		d.attributes[DefaultPrimaryKey] = id
		document[DefaultPrimaryKey] = id
	}

	m.conn.traceQuery(m.def.CollectionName, "insert", map[string]interface{}{"document": document})
	end := m.conn.beginProfile(m.profileToken("insert"), "odm.insert")
	id, err := m.collection.InsertOne(ctx, document)
	end()
	if err != nil {
		return false, domainerrors.NewDriverError("insert", err)
	}
	m.conn.invalidate(ctx, m.def.CollectionName)

	d.lastResult = id
	if hook := m.def.Hooks.AfterSave; hook != nil {
		hook(ctx, d)
	}
	d.isNew = false
	d.scenario = ScenarioUpdate
	return true, nil
}

// Update writes the document back. Versioned models only write when the
// stored version still equals the loaded one and report false otherwise;
// the in-memory version is advanced either way.
func (d *Document) Update(ctx context.Context, attributes ...string) (bool, error) {
	m := d.model
	if d.isNew {
		return false, domainerrors.NewRecordIsNewError("updated", m.def.CollectionName)
	}
	if hook := m.def.Hooks.BeforeSave; hook != nil && !hook(ctx, d) {
		return false, nil
	}
	m.trace("Update")

	if d.PrimaryKey() == nil {
		return false, domainerrors.NewMissingPrimaryKeyError(m.def.CollectionName)
	}
	key, err := m.PrimaryKeyValue(d.PrimaryKey())
	if err != nil {
		return false, err
	}

	vf := m.def.VersionField
	if m.def.Versioned && d.isPartial && !d.projected[vf] {
		return false, domainerrors.NewPartialVersionError(vf)
	}

	partial := len(attributes) > 0 || d.isPartial
	var payload bson.M
	switch {
	case len(attributes) > 0:
		payload = d.pick(attributes)
	case d.isPartial:
		payload = d.pick(d.ProjectedFields())
	default:
		payload = d.pick(nil)
	}
	delete(payload, DefaultPrimaryKey)
	if partial {
		delete(payload, m.def.PrimaryKey)
	}

	filter := bson.M{m.def.PrimaryKey: key}
	if m.def.Versioned {
		old := d.attributes[vf]
		next := int64(1)
		if v := d.Version(); v > 0 {
			next = v + 1
		}
		payload[vf] = next
		d.attributes[vf] = next
		filter[vf] = old
	}

	update := payload
	if partial {
		update = bson.M{"$set": payload}
	}

	res, err := m.updateOne(ctx, "update", filter, update)
	if err != nil {
		return false, err
	}
	d.lastResult = res
	if m.def.Versioned && res.MatchedCount <= 0 {
		return false, nil
	}
	if hook := m.def.Hooks.AfterSave; hook != nil {
		hook(ctx, d)
	}
	return true, nil
}

// Delete removes the document and reports whether anything was removed.
func (d *Document) Delete(ctx context.Context) (bool, error) {
	m := d.model
	if d.isNew {
		return false, domainerrors.NewRecordIsNewError("deleted", m.def.CollectionName)
	}
	m.trace("Delete")
	if hook := m.def.Hooks.BeforeDelete; hook != nil && !hook(ctx, d) {
		return false, nil
	}
	res, err := m.DeleteByPk(ctx, d.PrimaryKey(), nil)
	if err != nil {
		return false, err
	}
	if hook := m.def.Hooks.AfterDelete; hook != nil {
		hook(ctx, d)
	}
	return res.DeletedCount > 0, nil
}

// SaveAttributes writes a subset of attributes with $set. values are assigned
// before writing; names are written with their current values.
func (d *Document) SaveAttributes(ctx context.Context, values bson.M, names ...string) (bool, error) {
	m := d.model
	if d.isNew {
		return false, domainerrors.NewRecordIsNewError("updated", m.def.CollectionName)
	}
	m.trace("SaveAttributes")

	set := bson.M{}
	for _, name := range names {
		set[name] = d.attributes[name]
	}
	for name, value := range values {
		d.attributes[name] = value
		set[name] = value
	}
	if d.PrimaryKey() == nil {
		return false, domainerrors.NewMissingPrimaryKeyError(m.def.CollectionName)
	}

	res, err := m.UpdateByPk(ctx, d.PrimaryKey(), bson.M{"$set": set}, nil)
	if err != nil {
		return false, err
	}
	d.lastResult = res
	return res.MatchedCount > 0, nil
}

// SaveCounters increments the given counters with $inc. A counter is skipped
// when its new in-memory value would fall below lower or above upper. The
// bounds are checked locally, not atomically.
func (d *Document) SaveCounters(ctx context.Context, counters map[string]int64, lower, upper *int64) (bool, error) {
	m := d.model
	m.trace("SaveCounters")
	if d.isNew {
		return false, domainerrors.NewRecordIsNewError("updated", m.def.CollectionName)
	}

	inc := bson.M{}
	for name, delta := range counters {
		current, _ := toInt64(d.attributes[name])
		next := current + delta
		if (lower == nil || next >= *lower) && (upper == nil || next <= *upper) {
			d.attributes[name] = next
			inc[name] = delta
		}
	}
	if len(inc) == 0 {
		return true, nil
	}

	res, err := m.UpdateByPk(ctx, d.PrimaryKey(), bson.M{"$inc": inc}, nil)
	if err != nil {
		return false, err
	}
	d.lastResult = res
	return res.MatchedCount > 0, nil
}

// IncrementVersion bumps the stored version by one.
func (d *Document) IncrementVersion(ctx context.Context) (bool, error) {
	vf := d.model.def.VersionField
	res, err := d.model.UpdateByPk(ctx, d.PrimaryKey(), bson.M{"$inc": bson.M{vf: 1}}, nil)
	if err != nil {
		return false, err
	}
	if res.MatchedCount <= 0 {
		return false, nil
	}
	d.attributes[vf] = d.Version() + 1
	return true, nil
}

// SetVersion stores n as the document version.
func (d *Document) SetVersion(ctx context.Context, n int64) (bool, error) {
	vf := d.model.def.VersionField
	res, err := d.model.UpdateByPk(ctx, d.PrimaryKey(), bson.M{"$set": bson.M{vf: n}}, nil)
	if err != nil {
		return false, err
	}
	if res.MatchedCount <= 0 {
		return false, nil
	}
	d.attributes[vf] = n
	return true, nil
}

// Refresh reloads the attributes from the database. It reports false when
// the document is new or no longer exists.
func (d *Document) Refresh(ctx context.Context) (bool, error) {
	m := d.model
	m.trace("Refresh")
	if d.isNew || d.PrimaryKey() == nil {
		return false, nil
	}
	latest, err := m.ResetScope().FindByPk(ctx, d.PrimaryKey(), nil)
	if err != nil || latest == nil {
		return false, err
	}
	d.attributes = latest.attributes
	d.isPartial = false
	d.projected = nil
	return true, nil
}

// Latest loads the last saved state of the document as a new instance.
func (d *Document) Latest(ctx context.Context) (*Document, error) {
	if d.PrimaryKey() == nil {
		return nil, nil
	}
	return d.model.FindByPk(ctx, d.PrimaryKey(), nil)
}

// Equals reports whether both documents address the same stored document.
func (d *Document) Equals(other *Document) bool {
	if other == nil {
		return false
	}
	return d.model.def.CollectionName == other.model.def.CollectionName &&
		fmt.Sprint(d.PrimaryKey()) == fmt.Sprint(other.PrimaryKey())
}

// Search builds a data provider filtering on the safe attributes currently
// set on d. String values may carry a comparison operator; with partialMatch
// they match case-insensitively anywhere in the field.
func (d *Document) Search(query bson.M, project bson.M, partialMatch bool, order interface{}) *DataProvider {
	d.model.trace("Search")
	condition := cloneMap(query)
	if condition == nil {
		condition = bson.M{}
	}
	for _, attr := range d.model.def.SafeAttributes {
		value, ok := d.attributes[attr]
		if !ok || value == nil || value == "" {
			continue
		}
		switch v := value.(type) {
		case string:
			condition[attr] = ComparisonFilter(ParseComparison(v, partialMatch))
		case []interface{}:
			if len(v) > 0 {
				condition[attr] = v
			}
		default:
			condition[attr] = v
		}
	}

	c := NewCriteria().SetCondition(condition).SetProject(project).SetSort(order)
	return NewDataProvider(d.model, c)
}

// pick copies the named attributes, or all of them when names is empty.
func (d *Document) pick(names []string) bson.M {
	if len(names) == 0 {
		return cloneMap(d.attributes)
	}
	out := make(bson.M, len(names))
	for _, name := range names {
		if v, ok := d.attributes[name]; ok {
			out[name] = cloneValue(v)
		}
	}
	return out
}
