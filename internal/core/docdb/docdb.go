// Package docdb defines the document database boundary the ODM is written against.
package docdb

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNoDocuments is returned by SingleResult.Err and Decode when nothing matched.
var ErrNoDocuments = errors.New("docdb: no documents in result")

// SingleResult represents the result of a FindOne operation.
type SingleResult interface {
	// Decode decodes the result into the provided interface.
	Decode(v interface{}) error
	// Err returns any error from the operation.
	Err() error
}

// Cursor represents a cursor for iterating over query results.
type Cursor interface {
	// Next advances the cursor to the next document.
	Next(ctx context.Context) bool
	// Decode decodes the current document.
	Decode(v interface{}) error
	// All decodes all remaining documents.
	All(ctx context.Context, results interface{}) error
	// Err returns any cursor error.
	Err() error
	// Close closes the cursor.
	Close(ctx context.Context) error
}

// FindOptions represents options for Find operations.
type FindOptions struct {
	Limit      int64
	Skip       int64
	Sort       interface{}
	Projection interface{}
	Hint       interface{}
	MaxTime    time.Duration
}

// FindOneOptions represents options for FindOne operations.
type FindOneOptions struct {
	Projection interface{}
	Sort       interface{}
}

// CountOptions represents options for CountDocuments.
type CountOptions struct {
	Limit int64
	Skip  int64
}

// UpdateResult represents the result of an update operation.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedCount int64
	UpsertedID    interface{}
}

// DeleteResult represents the result of a delete operation.
type DeleteResult struct {
	DeletedCount int64
}

// IndexModel describes an index to create.
type IndexModel struct {
	Keys   interface{}
	Name   string
	Unique bool
	Sparse bool
}

// Collection defines the interface for document collection operations.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// InsertOne inserts a single document and returns its id.
	InsertOne(ctx context.Context, document interface{}) (interface{}, error)

	// InsertMany inserts multiple documents.
	InsertMany(ctx context.Context, documents []interface{}) ([]interface{}, error)

	// FindOne finds a single document.
	FindOne(ctx context.Context, filter interface{}, opts *FindOneOptions) SingleResult

	// Find finds multiple documents.
	Find(ctx context.Context, filter interface{}, opts *FindOptions) (Cursor, error)

	// UpdateOne applies an update document to the first match.
	UpdateOne(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error)

	// UpdateMany applies an update document to every match.
	UpdateMany(ctx context.Context, filter interface{}, update interface{}) (*UpdateResult, error)

	// ReplaceOne replaces the first match with replacement.
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}) (*UpdateResult, error)

	// DeleteOne deletes a single document.
	DeleteOne(ctx context.Context, filter interface{}) (*DeleteResult, error)

	// DeleteMany deletes multiple documents.
	DeleteMany(ctx context.Context, filter interface{}) (*DeleteResult, error)

	// CountDocuments counts documents matching the filter.
	CountDocuments(ctx context.Context, filter interface{}, opts *CountOptions) (int64, error)

	// Distinct returns the distinct values of field among matching documents.
	Distinct(ctx context.Context, field string, filter interface{}) ([]interface{}, error)

	// Aggregate runs an aggregation pipeline.
	Aggregate(ctx context.Context, pipeline interface{}) (Cursor, error)

	// CreateIndexes creates the given indexes and returns their names.
	CreateIndexes(ctx context.Context, models []IndexModel) ([]string, error)
}

// Bucket is a GridFS bucket.
type Bucket interface {
	// Upload stores the content of r under filename and returns the file id.
	Upload(ctx context.Context, filename string, r io.Reader, metadata interface{}) (interface{}, error)

	// Open returns a reader over the stored file content.
	Open(ctx context.Context, id interface{}) (io.ReadCloser, error)

	// Find returns the file documents matching filter.
	Find(ctx context.Context, filter interface{}) (Cursor, error)

	// Delete removes the file and its chunks.
	Delete(ctx context.Context, id interface{}) error
}

// Database defines the interface for database operations.
type Database interface {
	// Name returns the database name.
	Name() string

	// Collection returns a collection by name.
	Collection(name string) Collection

	// Bucket returns the GridFS bucket using prefix for its collections.
	Bucket(prefix string) (Bucket, error)

	// ListCollectionNames lists all collection names.
	ListCollectionNames(ctx context.Context) ([]string, error)
}
