package odm

import (
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Criteria describes a query: its condition, sort order, paging and
// projection. Setters return the receiver so calls can be chained.
type Criteria struct {
	condition bson.M
	sort      bson.D
	skip      int64
	limit     int64
	project   bson.M
}

// NewCriteria returns an empty criteria.
func NewCriteria() *Criteria {
	return &Criteria{condition: bson.M{}, project: bson.M{}}
}

// NewCriteriaFromMap builds a criteria from a map holding any of the keys
// condition, sort, skip, limit and project.
func NewCriteriaFromMap(m map[string]interface{}) *Criteria {
	return NewCriteria().MergeWith(m)
}

// Condition returns the filter document.
func (c *Criteria) Condition() bson.M { return c.condition }

// Sort returns the ordered sort specification.
func (c *Criteria) Sort() bson.D { return c.sort }

// Skip returns the number of documents to skip.
func (c *Criteria) Skip() int64 { return c.skip }

// Limit returns the maximum number of documents, 0 meaning unbounded.
func (c *Criteria) Limit() int64 { return c.limit }

// Project returns the projection document.
func (c *Criteria) Project() bson.M { return c.project }

// SetCondition replaces the filter document.
func (c *Criteria) SetCondition(condition bson.M) *Criteria {
	c.condition = cloneMap(condition)
	if c.condition == nil {
		c.condition = bson.M{}
	}
	return c
}

// SetSort replaces the sort specification. It accepts bson.D or a map;
// "asc" and "desc" directions become 1 and -1. Map keys are ordered by name.
func (c *Criteria) SetSort(spec interface{}) *Criteria {
	c.sort = normalizeSort(spec)
	return c
}

// SetSkip sets the offset. Negative values are treated as 0.
func (c *Criteria) SetSkip(skip int64) *Criteria {
	if skip < 0 {
		skip = 0
	}
	c.skip = skip
	return c
}

// SetLimit sets the maximum number of results. Negative values are treated as 0.
func (c *Criteria) SetLimit(limit int64) *Criteria {
	if limit < 0 {
		limit = 0
	}
	c.limit = limit
	return c
}

// SetProject replaces the projection.
func (c *Criteria) SetProject(project bson.M) *Criteria {
	c.project = cloneMap(project)
	if c.project == nil {
		c.project = bson.M{}
	}
	return c
}

// SetSelect is an alias of SetProject.
func (c *Criteria) SetSelect(project bson.M) *Criteria {
	return c.SetProject(project)
}

// AddCondition sets the constraint for field. When operator is not empty the
// value is wrapped as {operator: value}.
func (c *Criteria) AddCondition(field string, value interface{}, operator string) *Criteria {
	if operator != "" {
		value = bson.M{operator: value}
	}
	if c.condition == nil {
		c.condition = bson.M{}
	}
	c.condition[field] = value
	return c
}

// AddOrCondition appends {$or: conditions} to the $and list of the condition.
func (c *Criteria) AddOrCondition(conditions ...interface{}) *Criteria {
	if c.condition == nil {
		c.condition = bson.M{}
	}
	and, _ := asArray(c.condition["$and"])
	c.condition["$and"] = append(append([]interface{}{}, and...), bson.M{"$or": conditions})
	return c
}

// Compare adds a constraint on field derived from value. Strings may carry a
// leading comparison operator (<>, <=, >=, <, >, =); slices become $in; nil
// matches null; other values match directly.
func (c *Criteria) Compare(field string, value interface{}, partialMatch bool) *Criteria {
	return c.AddCondition(field, compareValue(value, partialMatch), "")
}

// MergeWith folds other into c. other is a *Criteria or a map with the keys
// used by ToMap; a *Criteria is merged through its ToMap form. Condition,
// sort and projection are merged key-wise with the incoming values winning;
// skip and limit are replaced whenever other carries them, zero included.
func (c *Criteria) MergeWith(other interface{}) *Criteria {
	switch o := other.(type) {
	case nil:
	case *Criteria:
		if o == nil {
			return c
		}
		c.mergeMap(o.ToMap(false))
	case bson.M:
		c.mergeMap(o)
	case map[string]interface{}:
		c.mergeMap(o)
	}
	return c
}

// stack layers scope criteria o over c. Unlike MergeWith, skip and limit
// only replace the current values when o sets them.
func (c *Criteria) stack(o *Criteria) *Criteria {
	if o == nil {
		return c
	}
	c.condition = mergeMaps(c.condition, o.condition)
	c.sort = mergeSort(c.sort, o.sort)
	if o.skip > 0 {
		c.skip = o.skip
	}
	if o.limit > 0 {
		c.limit = o.limit
	}
	c.project = mergeMaps(c.project, o.project)
	return c
}

func (c *Criteria) mergeMap(m map[string]interface{}) {
	if cond, ok := asMap(m["condition"]); ok {
		c.condition = mergeMaps(c.condition, cond)
	}
	if s, ok := m["sort"]; ok && s != nil {
		c.sort = mergeSort(c.sort, normalizeSort(s))
	}
	if n, ok := toInt64(m["skip"]); ok {
		c.SetSkip(n)
	}
	if n, ok := toInt64(m["limit"]); ok {
		c.SetLimit(n)
	}
	if p, ok := asMap(m["project"]); ok {
		c.project = mergeMaps(c.project, p)
	}
}

// ToMap renders the criteria. With onlyCondition only the filter document is
// returned, otherwise the condition, sort, skip, limit and project keys.
func (c *Criteria) ToMap(onlyCondition bool) bson.M {
	if onlyCondition {
		return cloneMap(c.condition)
	}
	return bson.M{
		"condition": cloneMap(c.condition),
		"sort":      append(bson.D{}, c.sort...),
		"skip":      c.skip,
		"limit":     c.limit,
		"project":   cloneMap(c.project),
	}
}

// Clone returns a deep copy of c.
func (c *Criteria) Clone() *Criteria {
	return &Criteria{
		condition: cloneMap(c.condition),
		sort:      append(bson.D(nil), c.sort...),
		skip:      c.skip,
		limit:     c.limit,
		project:   cloneMap(c.project),
	}
}

// IsEmpty reports whether the criteria carries no constraint at all.
func (c *Criteria) IsEmpty() bool {
	return len(c.condition) == 0 && len(c.sort) == 0 && c.skip == 0 && c.limit == 0 && len(c.project) == 0
}

func normalizeSort(spec interface{}) bson.D {
	var out bson.D
	switch s := spec.(type) {
	case bson.D:
		for _, e := range s {
			out = append(out, bson.E{Key: e.Key, Value: sortDirection(e.Value)})
		}
	case bson.M:
		out = sortFromMap(s)
	case map[string]interface{}:
		out = sortFromMap(s)
	case map[string]int:
		m := make(map[string]interface{}, len(s))
		for k, v := range s {
			m[k] = v
		}
		out = sortFromMap(m)
	case map[string]string:
		m := make(map[string]interface{}, len(s))
		for k, v := range s {
			m[k] = v
		}
		out = sortFromMap(m)
	}
	return out
}

func sortFromMap(m map[string]interface{}) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(bson.D, 0, len(keys))
	for _, k := range keys {
		out = append(out, bson.E{Key: k, Value: sortDirection(m[k])})
	}
	return out
}

func sortDirection(v interface{}) interface{} {
	if s, ok := v.(string); ok {
		switch strings.ToLower(s) {
		case "asc":
			return 1
		case "desc":
			return -1
		}
	}
	if n, ok := toInt64(v); ok {
		return int(n)
	}
	return v
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}
