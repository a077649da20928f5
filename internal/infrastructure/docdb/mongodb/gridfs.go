package mongodb

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/unifiedui/mongo-odm/internal/core/docdb"
)

// Bucket implements docdb.Bucket over a GridFS bucket.
//
// The driver's GridFS API takes deadlines rather than contexts, and a
// deadline is bucket state. Every call therefore opens its own driver bucket
// carrying the deadline of its context.
type Bucket struct {
	db   *mongo.Database
	opts *options.BucketOptions
	name string
}

// NewBucket opens the GridFS bucket named prefix.
func NewBucket(db *mongo.Database, prefix string) (*Bucket, error) {
	bucketOpts := options.GridFSBucket()
	if prefix != "" {
		bucketOpts.SetName(prefix)
	}
	b := &Bucket{db: db, opts: bucketOpts, name: prefix}
	if _, err := b.open(context.Background(), false); err != nil {
		return nil, err
	}
	return b, nil
}

// open returns a driver bucket bound to the deadline of ctx.
func (b *Bucket) open(ctx context.Context, write bool) (*gridfs.Bucket, error) {
	bucket, err := gridfs.NewBucket(b.db, b.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open gridfs bucket %s: %w", b.name, err)
	}
	d := deadline(ctx)
	if write {
		err = bucket.SetWriteDeadline(d)
	} else {
		err = bucket.SetReadDeadline(d)
	}
	if err != nil {
		return nil, err
	}
	return bucket, nil
}

func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Time{}
}

// Upload stores the content of r.
func (b *Bucket) Upload(ctx context.Context, filename string, r io.Reader, metadata interface{}) (interface{}, error) {
	bucket, err := b.open(ctx, true)
	if err != nil {
		return nil, err
	}
	uploadOpts := options.GridFSUpload()
	if metadata != nil {
		uploadOpts.SetMetadata(metadata)
	}
	id, err := bucket.UploadFromStream(filename, r, uploadOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", filename, err)
	}
	return id, nil
}

// Open returns a reader over the file content.
func (b *Bucket) Open(ctx context.Context, id interface{}) (io.ReadCloser, error) {
	bucket, err := b.open(ctx, false)
	if err != nil {
		return nil, err
	}
	stream, err := bucket.OpenDownloadStream(id)
	if err != nil {
		if err == gridfs.ErrFileNotFound {
			return nil, docdb.ErrNoDocuments
		}
		return nil, fmt.Errorf("failed to open file %v: %w", id, err)
	}
	return stream, nil
}

// Find returns the file documents matching filter.
func (b *Bucket) Find(ctx context.Context, filter interface{}) (docdb.Cursor, error) {
	bucket, err := b.open(ctx, false)
	if err != nil {
		return nil, err
	}
	cursor, err := bucket.Find(orEmpty(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to find files: %w", err)
	}
	return &Cursor{cursor: cursor}, nil
}

// Delete removes a file and its chunks.
func (b *Bucket) Delete(ctx context.Context, id interface{}) error {
	bucket, err := b.open(ctx, true)
	if err != nil {
		return err
	}
	if err := bucket.Delete(id); err != nil {
		if err == gridfs.ErrFileNotFound {
			return docdb.ErrNoDocuments
		}
		return fmt.Errorf("failed to delete file %v: %w", id, err)
	}
	return nil
}
