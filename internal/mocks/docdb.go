// Package mocks provides mock implementations of the docdb and cache
// boundaries for tests.
package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/unifiedui/mongo-odm/internal/core/docdb"
)

// MockCollection is a mock implementation of docdb.Collection.
type MockCollection struct {
	mock.Mock
	name string
}

// NewMockCollection creates a MockCollection reporting name.
func NewMockCollection(name string) *MockCollection {
	return &MockCollection{name: name}
}

// Name returns the collection name.
func (m *MockCollection) Name() string {
	return m.name
}

// InsertOne inserts a single document.
func (m *MockCollection) InsertOne(ctx context.Context, document interface{}) (interface{}, error) {
	args := m.Called(ctx, document)
	return args.Get(0), args.Error(1)
}

// InsertMany inserts multiple documents.
func (m *MockCollection) InsertMany(ctx context.Context, documents []interface{}) ([]interface{}, error) {
	args := m.Called(ctx, documents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interface{}), args.Error(1)
}

// FindOne finds a single document.
func (m *MockCollection) FindOne(ctx context.Context, filter interface{}, opts *docdb.FindOneOptions) docdb.SingleResult {
	args := m.Called(ctx, filter, opts)
	return args.Get(0).(docdb.SingleResult)
}

// Find finds multiple documents.
func (m *MockCollection) Find(ctx context.Context, filter interface{}, opts *docdb.FindOptions) (docdb.Cursor, error) {
	args := m.Called(ctx, filter, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(docdb.Cursor), args.Error(1)
}

// UpdateOne updates a single document.
func (m *MockCollection) UpdateOne(ctx context.Context, filter interface{}, update interface{}) (*docdb.UpdateResult, error) {
	args := m.Called(ctx, filter, update)
	return updateResult(args)
}

// UpdateMany updates multiple documents.
func (m *MockCollection) UpdateMany(ctx context.Context, filter interface{}, update interface{}) (*docdb.UpdateResult, error) {
	args := m.Called(ctx, filter, update)
	return updateResult(args)
}

// ReplaceOne replaces a single document.
func (m *MockCollection) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}) (*docdb.UpdateResult, error) {
	args := m.Called(ctx, filter, replacement)
	return updateResult(args)
}

func updateResult(args mock.Arguments) (*docdb.UpdateResult, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*docdb.UpdateResult), args.Error(1)
}

// DeleteOne deletes a single document.
func (m *MockCollection) DeleteOne(ctx context.Context, filter interface{}) (*docdb.DeleteResult, error) {
	args := m.Called(ctx, filter)
	return deleteResult(args)
}

// DeleteMany deletes multiple documents.
func (m *MockCollection) DeleteMany(ctx context.Context, filter interface{}) (*docdb.DeleteResult, error) {
	args := m.Called(ctx, filter)
	return deleteResult(args)
}

func deleteResult(args mock.Arguments) (*docdb.DeleteResult, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*docdb.DeleteResult), args.Error(1)
}

// CountDocuments counts documents.
func (m *MockCollection) CountDocuments(ctx context.Context, filter interface{}, opts *docdb.CountOptions) (int64, error) {
	args := m.Called(ctx, filter, opts)
	if fn, ok := args.Get(0).(func(interface{}, *docdb.CountOptions) int64); ok {
		return fn(filter, opts), args.Error(1)
	}
	return args.Get(0).(int64), args.Error(1)
}

// Distinct returns distinct values.
func (m *MockCollection) Distinct(ctx context.Context, field string, filter interface{}) ([]interface{}, error) {
	args := m.Called(ctx, field, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interface{}), args.Error(1)
}

// Aggregate runs a pipeline.
func (m *MockCollection) Aggregate(ctx context.Context, pipeline interface{}) (docdb.Cursor, error) {
	args := m.Called(ctx, pipeline)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(docdb.Cursor), args.Error(1)
}

// CreateIndexes creates indexes.
func (m *MockCollection) CreateIndexes(ctx context.Context, models []docdb.IndexModel) ([]string, error) {
	args := m.Called(ctx, models)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockBucket is a mock implementation of docdb.Bucket.
type MockBucket struct {
	mock.Mock
}

// Upload stores a file.
func (m *MockBucket) Upload(ctx context.Context, filename string, r io.Reader, metadata interface{}) (interface{}, error) {
	args := m.Called(ctx, filename, r, metadata)
	return args.Get(0), args.Error(1)
}

// Open opens a file.
func (m *MockBucket) Open(ctx context.Context, id interface{}) (io.ReadCloser, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

// Find finds files.
func (m *MockBucket) Find(ctx context.Context, filter interface{}) (docdb.Cursor, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(docdb.Cursor), args.Error(1)
}

// Delete removes a file.
func (m *MockBucket) Delete(ctx context.Context, id interface{}) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockDatabase is a mock implementation of docdb.Database.
type MockDatabase struct {
	mock.Mock
	name string
}

// NewMockDatabase creates a MockDatabase reporting name.
func NewMockDatabase(name string) *MockDatabase {
	return &MockDatabase{name: name}
}

// Name returns the database name.
func (m *MockDatabase) Name() string {
	return m.name
}

// Collection returns a collection.
func (m *MockDatabase) Collection(name string) docdb.Collection {
	args := m.Called(name)
	return args.Get(0).(docdb.Collection)
}

// Bucket returns a GridFS bucket.
func (m *MockDatabase) Bucket(prefix string) (docdb.Bucket, error) {
	args := m.Called(prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(docdb.Bucket), args.Error(1)
}

// ListCollectionNames lists collection names.
func (m *MockDatabase) ListCollectionNames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockDocDBClient is a mock implementation of docdb.Client.
type MockDocDBClient struct {
	mock.Mock
	database docdb.Database
}

// NewMockDocDBClient creates a MockDocDBClient serving database.
func NewMockDocDBClient(database docdb.Database) *MockDocDBClient {
	return &MockDocDBClient{database: database}
}

// Database returns the database.
func (m *MockDocDBClient) Database() docdb.Database {
	return m.database
}

// ServerInfo reports the server.
func (m *MockDocDBClient) ServerInfo(ctx context.Context) (docdb.ServerInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(docdb.ServerInfo), args.Error(1)
}

// Ping checks the connection.
func (m *MockDocDBClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close closes the connection.
func (m *MockDocDBClient) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockSingleResult is a mock implementation of docdb.SingleResult.
type MockSingleResult struct {
	mock.Mock
}

// Decode decodes the result.
func (m *MockSingleResult) Decode(v interface{}) error {
	args := m.Called(v)
	return args.Error(0)
}

// Err returns any error.
func (m *MockSingleResult) Err() error {
	args := m.Called()
	return args.Error(0)
}
