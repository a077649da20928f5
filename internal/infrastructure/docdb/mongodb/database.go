// Package mongodb implements the docdb boundary on top of the official MongoDB driver.
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/unifiedui/mongo-odm/internal/core/docdb"
)

// Collection implements the docdb.Collection interface for MongoDB.
type Collection struct {
	collection *mongo.Collection
}

// NewCollection creates a new MongoDB collection wrapper.
func NewCollection(collection *mongo.Collection) *Collection {
	return &Collection{
		collection: collection,
	}
}

// orEmpty substitutes an empty filter for nil, which the driver rejects.
func orEmpty(filter interface{}) interface{} {
	if filter == nil {
		return bson.D{}
	}
	return filter
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.collection.Name()
}

// InsertOne inserts a single document.
func (c *Collection) InsertOne(ctx context.Context, document interface{}) (interface{}, error) {
	result, err := c.collection.InsertOne(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}
	return result.InsertedID, nil
}

// InsertMany inserts multiple documents.
func (c *Collection) InsertMany(ctx context.Context, documents []interface{}) ([]interface{}, error) {
	result, err := c.collection.InsertMany(ctx, documents)
	if err != nil {
		return nil, fmt.Errorf("failed to insert documents: %w", err)
	}
	return result.InsertedIDs, nil
}

// FindOne finds a single document matching the filter.
func (c *Collection) FindOne(ctx context.Context, filter interface{}, opts *docdb.FindOneOptions) docdb.SingleResult {
	findOpts := options.FindOne()
	if opts != nil {
		if opts.Projection != nil {
			findOpts.SetProjection(opts.Projection)
		}
		if opts.Sort != nil {
			findOpts.SetSort(opts.Sort)
		}
	}
	return &SingleResult{
		result: c.collection.FindOne(ctx, orEmpty(filter), findOpts),
	}
}

// Find finds all documents matching the filter.
func (c *Collection) Find(ctx context.Context, filter interface{}, opts *docdb.FindOptions) (docdb.Cursor, error) {
	findOpts := options.Find()
	if opts != nil {
		if opts.Limit > 0 {
			findOpts.SetLimit(opts.Limit)
		}
		if opts.Skip > 0 {
			findOpts.SetSkip(opts.Skip)
		}
		if opts.Sort != nil {
			findOpts.SetSort(opts.Sort)
		}
		if opts.Projection != nil {
			findOpts.SetProjection(opts.Projection)
		}
		if opts.Hint != nil {
			findOpts.SetHint(opts.Hint)
		}
		if opts.MaxTime > 0 {
			findOpts.SetMaxTime(opts.MaxTime)
		}
	}

	cursor, err := c.collection.Find(ctx, orEmpty(filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to find documents: %w", err)
	}

	return &Cursor{cursor: cursor}, nil
}

func toUpdateResult(result *mongo.UpdateResult) *docdb.UpdateResult {
	return &docdb.UpdateResult{
		MatchedCount:  result.MatchedCount,
		ModifiedCount: result.ModifiedCount,
		UpsertedCount: result.UpsertedCount,
		UpsertedID:    result.UpsertedID,
	}
}

// UpdateOne updates a single document matching the filter.
func (c *Collection) UpdateOne(ctx context.Context, filter interface{}, update interface{}) (*docdb.UpdateResult, error) {
	result, err := c.collection.UpdateOne(ctx, orEmpty(filter), update)
	if err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	return toUpdateResult(result), nil
}

// UpdateMany updates all documents matching the filter.
func (c *Collection) UpdateMany(ctx context.Context, filter interface{}, update interface{}) (*docdb.UpdateResult, error) {
	result, err := c.collection.UpdateMany(ctx, orEmpty(filter), update)
	if err != nil {
		return nil, fmt.Errorf("failed to update documents: %w", err)
	}
	return toUpdateResult(result), nil
}

// ReplaceOne replaces a single document matching the filter.
func (c *Collection) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}) (*docdb.UpdateResult, error) {
	result, err := c.collection.ReplaceOne(ctx, orEmpty(filter), replacement)
	if err != nil {
		return nil, fmt.Errorf("failed to replace document: %w", err)
	}
	return toUpdateResult(result), nil
}

// DeleteOne deletes a single document matching the filter.
func (c *Collection) DeleteOne(ctx context.Context, filter interface{}) (*docdb.DeleteResult, error) {
	result, err := c.collection.DeleteOne(ctx, orEmpty(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}

	return &docdb.DeleteResult{
		DeletedCount: result.DeletedCount,
	}, nil
}

// DeleteMany deletes all documents matching the filter.
func (c *Collection) DeleteMany(ctx context.Context, filter interface{}) (*docdb.DeleteResult, error) {
	result, err := c.collection.DeleteMany(ctx, orEmpty(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to delete documents: %w", err)
	}

	return &docdb.DeleteResult{
		DeletedCount: result.DeletedCount,
	}, nil
}

// CountDocuments counts documents matching the filter.
func (c *Collection) CountDocuments(ctx context.Context, filter interface{}, opts *docdb.CountOptions) (int64, error) {
	countOpts := options.Count()
	if opts != nil {
		if opts.Limit > 0 {
			countOpts.SetLimit(opts.Limit)
		}
		if opts.Skip > 0 {
			countOpts.SetSkip(opts.Skip)
		}
	}

	count, err := c.collection.CountDocuments(ctx, orEmpty(filter), countOpts)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// Distinct returns the distinct values for field.
func (c *Collection) Distinct(ctx context.Context, field string, filter interface{}) ([]interface{}, error) {
	values, err := c.collection.Distinct(ctx, field, orEmpty(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to run distinct on %s: %w", field, err)
	}
	return values, nil
}

// Aggregate runs an aggregation pipeline.
func (c *Collection) Aggregate(ctx context.Context, pipeline interface{}) (docdb.Cursor, error) {
	cursor, err := c.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate: %w", err)
	}
	return &Cursor{cursor: cursor}, nil
}

// CreateIndexes creates the given indexes.
func (c *Collection) CreateIndexes(ctx context.Context, models []docdb.IndexModel) ([]string, error) {
	if len(models) == 0 {
		return nil, nil
	}

	indexModels := make([]mongo.IndexModel, 0, len(models))
	for _, m := range models {
		indexOpts := options.Index()
		if m.Unique {
			indexOpts.SetUnique(true)
		}
		if m.Sparse {
			indexOpts.SetSparse(true)
		}
		if m.Name != "" {
			indexOpts.SetName(m.Name)
		}
		indexModels = append(indexModels, mongo.IndexModel{Keys: m.Keys, Options: indexOpts})
	}

	names, err := c.collection.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes on %s: %w", c.collection.Name(), err)
	}
	return names, nil
}

// Database implements the docdb.Database interface for MongoDB.
type Database struct {
	database *mongo.Database
}

// NewDatabase creates a new MongoDB database wrapper.
func NewDatabase(database *mongo.Database) *Database {
	return &Database{
		database: database,
	}
}

// Name returns the database name.
func (d *Database) Name() string {
	return d.database.Name()
}

// Collection returns a collection from the database.
func (d *Database) Collection(name string) docdb.Collection {
	return NewCollection(d.database.Collection(name))
}

// Bucket returns the GridFS bucket named prefix.
func (d *Database) Bucket(prefix string) (docdb.Bucket, error) {
	return NewBucket(d.database, prefix)
}

// ListCollectionNames lists all collection names in the database.
func (d *Database) ListCollectionNames(ctx context.Context) ([]string, error) {
	names, err := d.database.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

// SingleResult wraps a MongoDB single result.
type SingleResult struct {
	result *mongo.SingleResult
}

// Decode decodes the single result into the provided interface.
func (r *SingleResult) Decode(v interface{}) error {
	return translate(r.result.Decode(v))
}

// Err returns any error from the single result.
func (r *SingleResult) Err() error {
	return translate(r.result.Err())
}

func translate(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docdb.ErrNoDocuments
	}
	return err
}

// Cursor wraps a MongoDB cursor.
type Cursor struct {
	cursor *mongo.Cursor
}

// Next advances the cursor.
func (c *Cursor) Next(ctx context.Context) bool {
	return c.cursor.Next(ctx)
}

// Decode decodes the current document.
func (c *Cursor) Decode(v interface{}) error {
	return c.cursor.Decode(v)
}

// All decodes all remaining documents.
func (c *Cursor) All(ctx context.Context, results interface{}) error {
	return c.cursor.All(ctx, results)
}

// Err returns any cursor error.
func (c *Cursor) Err() error {
	return c.cursor.Err()
}

// Close closes the cursor.
func (c *Cursor) Close(ctx context.Context) error {
	return c.cursor.Close(ctx)
}
