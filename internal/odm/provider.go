package odm

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// DefaultPageSize is the page size of a new Pagination.
const DefaultPageSize = 20

// Pagination splits a result set into pages. Pages are zero-based.
type Pagination struct {
	PageSize    int64
	CurrentPage int64
	itemCount   int64
}

// NewPagination returns a pagination on the first page.
func NewPagination(pageSize int64) *Pagination {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pagination{PageSize: pageSize}
}

// SetItemCount sets the total number of items.
func (p *Pagination) SetItemCount(n int64) { p.itemCount = n }

// ItemCount returns the total number of items.
func (p *Pagination) ItemCount() int64 { return p.itemCount }

// PageCount returns the number of pages.
func (p *Pagination) PageCount() int64 {
	size := p.pageSize()
	return (p.itemCount + size - 1) / size
}

// Page returns the current page clamped to the available pages.
func (p *Pagination) Page() int64 {
	page := p.CurrentPage
	if last := p.PageCount() - 1; page > last {
		page = last
	}
	if page < 0 {
		page = 0
	}
	return page
}

// Offset returns the number of items before the current page.
func (p *Pagination) Offset() int64 { return p.Page() * p.pageSize() }

// Limit returns the page size.
func (p *Pagination) Limit() int64 { return p.pageSize() }

func (p *Pagination) pageSize() int64 {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	return p.PageSize
}

// Sort turns a request such as "name.desc,age" into a sort specification.
// Only Attributes may be sorted on unless the list is empty.
type Sort struct {
	Attributes   []string
	DefaultOrder bson.D
	directions   bson.D
}

// NewSort returns a sort helper allowing attributes.
func NewSort(attributes ...string) *Sort {
	return &Sort{Attributes: attributes}
}

// Parse reads comma separated attributes, each optionally suffixed with
// ".desc" or ".asc". Unknown attributes are ignored.
func (s *Sort) Parse(spec string) *Sort {
	s.directions = nil
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		attr, dir := part, 1
		if i := strings.LastIndex(part, "."); i > 0 {
			switch strings.ToLower(part[i+1:]) {
			case "desc":
				attr, dir = part[:i], -1
			case "asc":
				attr = part[:i]
			}
		}
		if !s.allowed(attr) {
			continue
		}
		s.directions = mergeSort(s.directions, bson.D{{Key: attr, Value: dir}})
	}
	return s
}

// OrderBy returns the requested order, or DefaultOrder when nothing valid
// was requested.
func (s *Sort) OrderBy() bson.D {
	if len(s.directions) > 0 {
		return s.directions
	}
	return s.DefaultOrder
}

func (s *Sort) allowed(attr string) bool {
	if len(s.Attributes) == 0 {
		return true
	}
	for _, a := range s.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}

// DataProvider pages and sorts the documents matching a criteria.
// Pagination and Sort may be set to nil to disable them.
type DataProvider struct {
	model    *Model
	criteria *Criteria

	// KeyAttribute names the attribute returned by Keys. Defaults to the
	// model primary key.
	KeyAttribute string
	Pagination   *Pagination
	Sort         *Sort

	data       []*Document
	fetched    bool
	total      int64
	totalKnown bool
}

// NewDataProvider returns a provider over the documents of model matching criteria.
func NewDataProvider(model *Model, criteria *Criteria) *DataProvider {
	if criteria == nil {
		criteria = NewCriteria()
	}
	return &DataProvider{
		model:      model,
		criteria:   criteria,
		Pagination: NewPagination(DefaultPageSize),
		Sort:       NewSort(),
	}
}

// Model returns the provider model.
func (p *DataProvider) Model() *Model { return p.model }

// Criteria returns the provider criteria.
func (p *DataProvider) Criteria() *Criteria { return p.criteria }

// SetCriteria replaces the criteria and drops fetched results.
func (p *DataProvider) SetCriteria(c *Criteria) {
	p.criteria = c
	p.Reset()
}

// Reset drops fetched results so the next call queries again.
func (p *DataProvider) Reset() {
	p.data = nil
	p.fetched = false
	p.totalKnown = false
}

// Data returns the documents of the current page.
func (p *DataProvider) Data(ctx context.Context) ([]*Document, error) {
	if p.fetched {
		return p.data, nil
	}
	c := p.criteria
	cursor, err := p.model.Find(ctx, c.Condition(), c.Project())
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if len(c.Sort()) > 0 {
		cursor.Sort(c.Sort())
	}
	if c.Skip() > 0 {
		cursor.Skip(c.Skip())
	}
	if c.Limit() > 0 {
		cursor.Limit(c.Limit())
	}

	if p.Pagination != nil {
		total, err := p.TotalItemCount(ctx)
		if err != nil {
			return nil, err
		}
		p.Pagination.SetItemCount(total)
		cursor.Limit(p.Pagination.Limit())
		cursor.Skip(p.Pagination.Offset())
	}
	if p.Sort != nil {
		if order := p.Sort.OrderBy(); len(order) > 0 {
			cursor.Sort(order)
		}
	}

	docs, err := cursor.All(ctx)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*Document{}
	}
	p.data = docs
	p.fetched = true
	return docs, nil
}

// TotalItemCount counts every document matching the criteria condition,
// ignoring skip and limit.
func (p *DataProvider) TotalItemCount(ctx context.Context) (int64, error) {
	if p.totalKnown {
		return p.total, nil
	}
	n, err := p.model.Count(ctx, p.criteria.Condition())
	if err != nil {
		return 0, err
	}
	p.total = n
	p.totalKnown = true
	return n, nil
}

// Keys returns the key attribute of every document of the current page.
func (p *DataProvider) Keys(ctx context.Context) ([]interface{}, error) {
	docs, err := p.Data(ctx)
	if err != nil {
		return nil, err
	}
	attr := p.KeyAttribute
	if attr == "" {
		attr = p.model.def.PrimaryKey
	}
	keys := make([]interface{}, len(docs))
	for i, d := range docs {
		keys[i] = d.Get(attr)
	}
	return keys, nil
}
