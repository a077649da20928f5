package odm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/unifiedui/mongo-odm/internal/core/docdb"
	"github.com/unifiedui/mongo-odm/internal/mocks"
	"github.com/unifiedui/mongo-odm/internal/odm"
)

func TestPagination(t *testing.T) {
	p := odm.NewPagination(2)
	p.SetItemCount(5)

	assert.Equal(t, int64(3), p.PageCount())

	p.CurrentPage = 1
	assert.Equal(t, int64(1), p.Page())
	assert.Equal(t, int64(2), p.Offset())
	assert.Equal(t, int64(2), p.Limit())

	p.CurrentPage = 10
	assert.Equal(t, int64(2), p.Page())
	assert.Equal(t, int64(4), p.Offset())

	p.CurrentPage = -1
	assert.Equal(t, int64(0), p.Page())

	p.SetItemCount(0)
	p.CurrentPage = 3
	assert.Equal(t, int64(0), p.PageCount())
	assert.Equal(t, int64(0), p.Offset())

	assert.Equal(t, int64(odm.DefaultPageSize), odm.NewPagination(0).Limit())
}

func TestSort_Parse(t *testing.T) {
	s := odm.NewSort("name", "age")

	assert.Equal(t, bson.D{{Key: "name", Value: -1}, {Key: "age", Value: 1}}, s.Parse("name.desc, age ,bogus.asc").OrderBy())
	assert.Equal(t, bson.D{{Key: "age", Value: 1}}, s.Parse("age.ASC").OrderBy())

	s.DefaultOrder = bson.D{{Key: "name", Value: 1}}
	assert.Equal(t, bson.D{{Key: "name", Value: 1}}, s.Parse("bogus").OrderBy())

	open := odm.NewSort()
	assert.Equal(t, bson.D{{Key: "profile.city", Value: 1}}, open.Parse("profile.city").OrderBy())
}

func TestDataProvider_Data(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, odm.Definition{}, nil)

	f.coll.On("CountDocuments", mock.Anything, bson.M{"a": 1}, (*docdb.CountOptions)(nil)).
		Return(int64(5), nil).Once()
	f.coll.On("Find", mock.Anything, bson.M{"a": 1}, &docdb.FindOptions{
		Skip:  2,
		Limit: 2,
		Sort:  bson.D{{Key: "name", Value: -1}},
	}).Return(mocks.NewSliceCursor(bson.M{"_id": "c", "name": "c"}, bson.M{"_id": "d", "name": "d"}), nil).Once()

	p := odm.NewDataProvider(f.model, odm.NewCriteria().AddCondition("a", 1, ""))
	p.Pagination.PageSize = 2
	p.Pagination.CurrentPage = 1
	p.Sort = odm.NewSort("name")
	p.Sort.Parse("name.desc")

	docs, err := p.Data(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, int64(3), p.Pagination.PageCount())

	keys, err := p.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"c", "d"}, keys)

	total, err := p.TotalItemCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
}

func TestDataProvider_WithoutPagination(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, odm.Definition{}, nil)

	f.coll.On("Find", mock.Anything, bson.M{}, &docdb.FindOptions{
		Limit:      3,
		Sort:       bson.D{{Key: "n", Value: 1}},
		Projection: bson.M{"n": 1},
	}).Return(mocks.NewSliceCursor(), nil).Once()

	c := odm.NewCriteria().SetLimit(3).SetSort(bson.M{"n": "asc"}).SetProject(bson.M{"n": 1})
	p := odm.NewDataProvider(f.model, c)
	p.Pagination = nil
	p.KeyAttribute = "n"

	docs, err := p.Data(ctx)
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)

	keys, err := p.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDataProvider_Reset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, odm.Definition{}, nil)
	f.coll.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(mocks.NewSliceCursor(), nil).Twice()
	f.coll.On("CountDocuments", mock.Anything, bson.M{}, mock.Anything).Return(int64(0), nil).Once()
	f.coll.On("CountDocuments", mock.Anything, bson.M{"b": 2}, mock.Anything).Return(int64(0), nil).Once()

	p := odm.NewDataProvider(f.model, nil)
	_, err := p.Data(ctx)
	require.NoError(t, err)
	_, err = p.Data(ctx)
	require.NoError(t, err)

	p.SetCriteria(odm.NewCriteria().AddCondition("b", 2, ""))
	_, err = p.Data(ctx)
	require.NoError(t, err)
}
