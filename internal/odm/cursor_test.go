package odm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/unifiedui/mongo-odm/internal/core/docdb"
	domainerrors "github.com/unifiedui/mongo-odm/internal/domain/errors"
	"github.com/unifiedui/mongo-odm/internal/mocks"
	"github.com/unifiedui/mongo-odm/internal/odm"
)

func threeRows() []bson.M {
	return []bson.M{
		{"_id": "a", "n": 1},
		{"_id": "b", "n": 2},
		{"_id": "c", "n": 3},
	}
}

func TestCursor_Options(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, odm.Definition{}, nil)

	f.coll.On("Find", mock.Anything, bson.M{"a": 1}, &docdb.FindOptions{
		Skip:       2,
		Limit:      5,
		Sort:       bson.D{{Key: "name", Value: -1}},
		Projection: bson.M{"name": 1},
		Hint:       "name_1",
		MaxTime:    500 * time.Millisecond,
	}).Return(mocks.NewSliceCursor(bson.M{"_id": "x", "name": "z"}), nil).Once()

	cursor, err := f.model.Find(ctx, bson.M{"a": 1}, bson.M{"name": 1})
	require.NoError(t, err)
	cursor.Sort(bson.M{"name": "desc"}).Skip(2).Limit(5).Hint("name_1").Timeout(500)

	require.True(t, cursor.Next(ctx))
	d := cursor.Current()
	assert.True(t, d.IsPartial())
	assert.Equal(t, "x", cursor.Key())
	assert.False(t, cursor.Next(ctx))
	assert.Nil(t, cursor.Current())
	assert.NoError(t, cursor.Err())

	info := cursor.Info()
	assert.Equal(t, "items", info.Collection)
	assert.True(t, info.Started)
	assert.False(t, info.FromCache)
	assert.Equal(t, int64(2), info.Skip)
}

func TestCursor_CountWithSkip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, odm.Definition{}, nil)

	var stored []interface{}
	f.coll.On("InsertOne", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { stored = append(stored, args.Get(1)) }).
		Return(primitive.NewObjectID(), nil).Times(5)
	for i := 0; i < 5; i++ {
		ok, err := f.model.New().Set("n", i).Insert(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}

	var seen []*docdb.CountOptions
	count := func(_ interface{}, opts *docdb.CountOptions) int64 {
		seen = append(seen, opts)
		n := int64(len(stored))
		if opts == nil {
			return n
		}
		n -= opts.Skip
		if n < 0 {
			n = 0
		}
		if opts.Limit > 0 && n > opts.Limit {
			n = opts.Limit
		}
		return n
	}
	f.coll.On("CountDocuments", mock.Anything, bson.M{}, mock.Anything).Return(count, nil).Twice()

	cursor, err := f.model.Find(ctx, nil, nil)
	require.NoError(t, err)
	cursor.Skip(1).Limit(3)

	n, err := cursor.Count(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = cursor.Count(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	require.Len(t, seen, 2)
	assert.Equal(t, &docdb.CountOptions{Skip: 1, Limit: 3}, seen[0])
	assert.Nil(t, seen[1])
}

func TestCursor_Rewind(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, odm.Definition{}, nil)

	first := mocks.NewSliceCursor(threeRows()...)
	f.coll.On("Find", mock.Anything, bson.M{}, mock.Anything).Return(first, nil).Once()
	f.coll.On("Find", mock.Anything, bson.M{}, mock.Anything).Return(mocks.NewSliceCursor(threeRows()...), nil).Once()

	cursor, err := f.model.Find(ctx, nil, nil)
	require.NoError(t, err)

	require.True(t, cursor.Next(ctx))
	assert.Equal(t, "a", cursor.Key())

	require.NoError(t, cursor.Rewind(ctx))
	assert.True(t, first.Closed)

	docs, err := cursor.All(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 3)
}

func TestCursor_Native(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, odm.Definition{}, nil)

	native := mocks.NewSliceCursor(threeRows()...)
	cursor := odm.NewNativeCursor(f.model, native, false)

	require.True(t, cursor.Next(ctx))
	assert.Equal(t, "a", cursor.Key())

	n, err := cursor.Count(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.True(t, native.Closed)

	var keys []interface{}
	for cursor.Next(ctx) {
		keys = append(keys, cursor.Key())
	}
	assert.Equal(t, []interface{}{"b", "c"}, keys)

	require.NoError(t, cursor.Rewind(ctx))
	docs, err := cursor.All(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a", docs[0].PrimaryKey())

	n, err = cursor.Count(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCursor_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("find failure", func(t *testing.T) {
		f := newFixture(t, odm.Definition{}, nil)
		f.coll.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

		cursor, err := f.model.Find(ctx, nil, nil)
		require.NoError(t, err)

		assert.False(t, cursor.Next(ctx))
		assert.True(t, domainerrors.HasCode(cursor.Err(), domainerrors.ErrCodeDriver))
		assert.False(t, cursor.Next(ctx))
	})

	t.Run("iteration failure", func(t *testing.T) {
		f := newFixture(t, odm.Definition{}, nil)
		f.coll.On("Find", mock.Anything, mock.Anything, mock.Anything).
			Return(mocks.NewFailingCursor(assert.AnError), nil).Once()

		cursor, err := f.model.Find(ctx, nil, nil)
		require.NoError(t, err)

		docs, err := cursor.All(ctx)
		assert.Nil(t, docs)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestCursor_QueryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("results are stored then replayed", func(t *testing.T) {
		mr, cacheClient := setupMiniredis(t)
		f := newFixture(t, odm.Definition{}, cacheClient)
		f.model.Cache(time.Minute, 2)

		f.coll.On("Find", mock.Anything, bson.M{"a": 1}, mock.Anything).
			Return(mocks.NewSliceCursor(threeRows()...), nil).Once()

		first, err := f.model.Find(ctx, bson.M{"a": 1}, nil)
		require.NoError(t, err)
		docs, err := first.All(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 3)
		assert.True(t, first.FromCache())
		assert.Equal(t, int32(1), docs[0].Get("n"))

		n, err := first.Count(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, int64(len(docs)), n)

		keys := mr.Keys()
		require.Len(t, keys, 1)
		assert.Regexp(t, `^odm:query:localhost:27017:testdb:items:[0-9a-f]{64}$`, keys[0])
		assert.InDelta(t, time.Minute.Seconds(), mr.TTL(keys[0]).Seconds(), 1)

		second, err := f.model.Find(ctx, bson.M{"a": 1}, nil)
		require.NoError(t, err)
		replayed, err := second.All(ctx)
		require.NoError(t, err)
		require.Len(t, replayed, 3)
		assert.Equal(t, "c", replayed[2].PrimaryKey())
		assert.Equal(t, 0, f.conn.QueryCachingCount())
	})

	t.Run("different queries use different keys", func(t *testing.T) {
		mr, cacheClient := setupMiniredis(t)
		f := newFixture(t, odm.Definition{}, cacheClient)
		f.model.Cache(time.Minute, 2)

		f.coll.On("Find", mock.Anything, mock.Anything, mock.Anything).
			Return(mocks.NewSliceCursor(), nil).Twice()

		c1, err := f.model.Find(ctx, bson.M{"a": 1}, nil)
		require.NoError(t, err)
		_, err = c1.All(ctx)
		require.NoError(t, err)

		c2, err := f.model.Find(ctx, bson.M{"a": 1}, nil)
		require.NoError(t, err)
		_, err = c2.Skip(1).All(ctx)
		require.NoError(t, err)

		assert.Len(t, mr.Keys(), 2)
	})

	t.Run("object ids and their hex strings use different keys", func(t *testing.T) {
		mr, cacheClient := setupMiniredis(t)
		f := newFixture(t, odm.Definition{}, cacheClient)
		f.model.Cache(time.Minute, 2)

		ref := primitive.NewObjectID()
		f.coll.On("Find", mock.Anything, bson.M{"ref": ref}, mock.Anything).
			Return(mocks.NewSliceCursor(bson.M{"_id": "by-oid"}), nil).Once()
		f.coll.On("Find", mock.Anything, bson.M{"ref": ref.Hex()}, mock.Anything).
			Return(mocks.NewSliceCursor(), nil).Once()

		byOID, err := f.model.Find(ctx, bson.M{"ref": ref}, nil)
		require.NoError(t, err)
		docs, err := byOID.All(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 1)

		byHex, err := f.model.Find(ctx, bson.M{"ref": ref.Hex()}, nil)
		require.NoError(t, err)
		docs, err = byHex.All(ctx)
		require.NoError(t, err)
		assert.Empty(t, docs)
		assert.Len(t, mr.Keys(), 2)
	})

	t.Run("dates and their strings use different keys", func(t *testing.T) {
		mr, cacheClient := setupMiniredis(t)
		f := newFixture(t, odm.Definition{}, cacheClient)
		f.model.Cache(time.Minute, 2)

		at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		f.coll.On("Find", mock.Anything, mock.Anything, mock.Anything).
			Return(mocks.NewSliceCursor(), nil).Twice()

		for _, v := range []interface{}{primitive.NewDateTimeFromTime(at), at.Format(time.RFC3339)} {
			c, err := f.model.Find(ctx, bson.M{"at": v}, nil)
			require.NoError(t, err)
			_, err = c.All(ctx)
			require.NoError(t, err)
		}

		assert.Len(t, mr.Keys(), 2)
	})

	t.Run("equal queries share a key regardless of map order", func(t *testing.T) {
		mr, cacheClient := setupMiniredis(t)
		f := newFixture(t, odm.Definition{}, cacheClient)
		f.model.Cache(time.Minute, 3)

		query := func() bson.M {
			return bson.M{"a": 1, "b": bson.M{"y": 2, "x": 1}, "c": "z", "d": []interface{}{bson.M{"q": 1, "p": 2}}}
		}
		f.coll.On("Find", mock.Anything, query(), mock.Anything).
			Return(mocks.NewSliceCursor(bson.M{"_id": "1"}), nil).Once()

		for i := 0; i < 3; i++ {
			c, err := f.model.Find(ctx, query(), nil)
			require.NoError(t, err)
			docs, err := c.All(ctx)
			require.NoError(t, err)
			require.Len(t, docs, 1)
		}

		assert.Len(t, mr.Keys(), 1)
	})

	t.Run("findOne caches misses too", func(t *testing.T) {
		_, cacheClient := setupMiniredis(t)
		f := newFixture(t, odm.Definition{}, cacheClient)
		f.model.Cache(time.Minute, 2)

		f.coll.On("FindOne", mock.Anything, bson.M{"name": "nobody"}, mock.Anything).
			Return(newSingleRow(nil)).Once()

		for i := 0; i < 2; i++ {
			d, err := f.model.FindOne(ctx, bson.M{"name": "nobody"}, nil)
			require.NoError(t, err)
			assert.Nil(t, d)
		}
	})

	t.Run("findOne hit uses the cached row", func(t *testing.T) {
		_, cacheClient := setupMiniredis(t)
		f := newFixture(t, odm.Definition{}, cacheClient)
		f.model.Cache(time.Minute, 2)

		f.coll.On("FindOne", mock.Anything, bson.M{"name": "x"}, mock.Anything).
			Return(newSingleRow(bson.M{"_id": "1", "name": "x"})).Once()

		live, err := f.model.FindOne(ctx, bson.M{"name": "x"}, nil)
		require.NoError(t, err)
		cached, err := f.model.FindOne(ctx, bson.M{"name": "x"}, nil)
		require.NoError(t, err)

		require.NotNil(t, cached)
		assert.Equal(t, live.Attributes(), cached.Attributes())
	})

	t.Run("corrupt entries are dropped", func(t *testing.T) {
		mr, cacheClient := setupMiniredis(t)
		f := newFixture(t, odm.Definition{}, cacheClient)

		f.coll.On("Find", mock.Anything, mock.Anything, mock.Anything).
			Return(mocks.NewSliceCursor(threeRows()...), nil).Once()

		f.model.Cache(time.Minute, 1)
		c1, err := f.model.Find(ctx, bson.M{"a": 1}, nil)
		require.NoError(t, err)
		_, err = c1.All(ctx)
		require.NoError(t, err)

		keys := mr.Keys()
		require.Len(t, keys, 1)
		require.NoError(t, mr.Set(keys[0], "garbage"))

		f.coll.On("Find", mock.Anything, mock.Anything, mock.Anything).
			Return(mocks.NewSliceCursor(threeRows()[:1]...), nil).Once()

		f.model.Cache(time.Minute, 1)
		c2, err := f.model.Find(ctx, bson.M{"a": 1}, nil)
		require.NoError(t, err)
		docs, err := c2.All(ctx)
		require.NoError(t, err)
		assert.Len(t, docs, 1)
	})

	t.Run("writes invalidate the collection", func(t *testing.T) {
		cacheClient := mocks.NewMockCacheClient()
		coll := mocks.NewMockCollection("items")
		db := mocks.NewMockDatabase(testDatabase)
		db.On("Collection", "items").Return(coll)

		conn, err := odm.NewConnection(&odm.ConnectionConfig{
			Database:          db,
			CacheClient:       cacheClient,
			Server:            testServer,
			InvalidateOnWrite: true,
		})
		require.NoError(t, err)
		model, err := odm.NewModel(conn, odm.Definition{CollectionName: "items"})
		require.NoError(t, err)

		coll.On("InsertOne", mock.Anything, mock.Anything).Return(primitive.NewObjectID(), nil).Once()
		cacheClient.On("DeletePattern", mock.Anything, "odm:query:localhost:27017:testdb:items:*").
			Return(int64(2), nil).Once()

		ok, err := model.New().Set("a", 1).Insert(ctx)

		require.NoError(t, err)
		assert.True(t, ok)
		coll.AssertExpectations(t)
		cacheClient.AssertExpectations(t)
	})

	t.Run("disabled without a cache client", func(t *testing.T) {
		f := newFixture(t, odm.Definition{}, nil)
		f.model.Cache(time.Minute, 1)
		f.coll.On("Find", mock.Anything, mock.Anything, mock.Anything).
			Return(mocks.NewSliceCursor(threeRows()...), nil).Once()

		cursor, err := f.model.Find(ctx, nil, nil)
		require.NoError(t, err)
		require.True(t, cursor.Next(ctx))
		assert.False(t, cursor.FromCache())
		assert.Equal(t, 1, f.conn.QueryCachingCount())
	})
}
