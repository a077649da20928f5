package odm_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/unifiedui/mongo-odm/internal/core/cache"
	"github.com/unifiedui/mongo-odm/internal/core/docdb"
	rediscache "github.com/unifiedui/mongo-odm/internal/infrastructure/cache/redis"
	"github.com/unifiedui/mongo-odm/internal/mocks"
	"github.com/unifiedui/mongo-odm/internal/odm"
)

const (
	testServer   = "localhost:27017"
	testDatabase = "testdb"
)

type fixture struct {
	db    *mocks.MockDatabase
	coll  *mocks.MockCollection
	conn  *odm.Connection
	model *odm.Model
}

func newFixture(t *testing.T, def odm.Definition, cacheClient cache.Client) *fixture {
	t.Helper()

	if def.CollectionName == "" {
		def.CollectionName = "items"
	}
	coll := mocks.NewMockCollection(def.CollectionName)
	db := mocks.NewMockDatabase(testDatabase)
	db.On("Collection", def.CollectionName).Return(coll)

	conn, err := odm.NewConnection(&odm.ConnectionConfig{
		Database:    db,
		CacheClient: cacheClient,
		Server:      testServer,
	})
	require.NoError(t, err)

	model, err := odm.NewModel(conn, def)
	require.NoError(t, err)

	t.Cleanup(func() { coll.AssertExpectations(t) })

	return &fixture{db: db, coll: coll, conn: conn, model: model}
}

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, cache.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := rediscache.NewClient(rediscache.Config{
		Host: mr.Host(),
		Port: mr.Port(),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return mr, client
}

func newSingleRow(row bson.M) docdb.SingleResult {
	return mocks.NewSingleResult(row)
}
