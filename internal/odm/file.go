package odm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/unifiedui/mongo-odm/internal/core/docdb"
	domainerrors "github.com/unifiedui/mongo-odm/internal/domain/errors"
)

// DefaultFilePrefix is the GridFS collection prefix used when none is given.
const DefaultFilePrefix = "fs"

// File describes a file stored in GridFS.
type File struct {
	ID         interface{} `bson:"_id" json:"id"`
	Filename   string      `bson:"filename" json:"filename"`
	Length     int64       `bson:"length" json:"length"`
	ChunkSize  int32       `bson:"chunkSize" json:"chunkSize"`
	UploadDate time.Time   `bson:"uploadDate" json:"uploadDate"`
	Metadata   bson.M      `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// FileStore keeps files in a GridFS bucket.
type FileStore struct {
	conn   *Connection
	bucket docdb.Bucket
	prefix string
}

// NewFileStore opens the bucket named prefix on conn.
func NewFileStore(conn *Connection, prefix string) (*FileStore, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if prefix == "" {
		prefix = DefaultFilePrefix
	}
	bucket, err := conn.Database().Bucket(prefix)
	if err != nil {
		return nil, domainerrors.NewDriverError("open bucket", err)
	}
	return &FileStore{conn: conn, bucket: bucket, prefix: prefix}, nil
}

// Prefix returns the bucket name.
func (s *FileStore) Prefix() string { return s.prefix }

// Store uploads the content of r and returns the new file id.
func (s *FileStore) Store(ctx context.Context, filename string, r io.Reader, metadata bson.M) (interface{}, error) {
	end := s.conn.beginProfile(fmt.Sprintf("odm.file.%s.store", s.prefix), "odm.file.store")
	defer end()

	var meta interface{}
	if len(metadata) > 0 {
		meta = metadata
	}
	id, err := s.bucket.Upload(ctx, filename, r, meta)
	if err != nil {
		return nil, domainerrors.NewDriverError("store file", err)
	}
	s.conn.logger.Debug().Str("bucket", s.prefix).Str("filename", filename).Interface("id", id).Msg("file stored")
	return id, nil
}

// Find returns the files matching filter.
func (s *FileStore) Find(ctx context.Context, filter bson.M) ([]*File, error) {
	if filter == nil {
		filter = bson.M{}
	}
	cursor, err := s.bucket.Find(ctx, filter)
	if err != nil {
		return nil, domainerrors.NewDriverError("find files", err)
	}
	defer cursor.Close(ctx)

	var files []*File
	for cursor.Next(ctx) {
		var f File
		if err := cursor.Decode(&f); err != nil {
			return nil, domainerrors.NewDriverError("find files", err)
		}
		files = append(files, &f)
	}
	if err := cursor.Err(); err != nil {
		return nil, domainerrors.NewDriverError("find files", err)
	}
	return files, nil
}

// FindOne returns the first file matching filter, or nil.
func (s *FileStore) FindOne(ctx context.Context, filter bson.M) (*File, error) {
	files, err := s.Find(ctx, filter)
	if err != nil || len(files) == 0 {
		return nil, err
	}
	return files[0], nil
}

// Get opens the content of the file with the given id. Hex strings are
// read as ObjectIDs.
func (s *FileStore) Get(ctx context.Context, id interface{}) (io.ReadCloser, error) {
	rc, err := s.bucket.Open(ctx, fileID(id))
	if errors.Is(err, docdb.ErrNoDocuments) {
		return nil, domainerrors.NewNotFoundError("file", fmt.Sprint(id))
	}
	if err != nil {
		return nil, domainerrors.NewDriverError("open file", err)
	}
	return rc, nil
}

// Bytes reads the whole content of the file with the given id.
func (s *FileStore) Bytes(ctx context.Context, id interface{}) ([]byte, error) {
	rc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Delete removes the file and reports whether it existed.
func (s *FileStore) Delete(ctx context.Context, id interface{}) (bool, error) {
	err := s.bucket.Delete(ctx, fileID(id))
	if errors.Is(err, docdb.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, domainerrors.NewDriverError("delete file", err)
	}
	return true, nil
}

func fileID(id interface{}) interface{} {
	if s, ok := id.(string); ok {
		if oid, err := primitive.ObjectIDFromHex(s); err == nil {
			return oid
		}
	}
	return id
}
