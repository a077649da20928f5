// Package logroute stores log entries in a MongoDB collection.
package logroute

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/unifiedui/mongo-odm/internal/core/docdb"
)

const (
	// DefaultCollection is the collection log entries go to when none is configured.
	DefaultCollection = "log"
	// CategoryFieldName is the log event field read as the entry category.
	CategoryFieldName = "category"

	insertTimeout = 5 * time.Second
)

// Entry is the stored form of one log event.
type Entry struct {
	Level    string `bson:"level"`
	Category string `bson:"category"`
	LogTime  int64  `bson:"logtime"`
	Message  string `bson:"message"`
}

// Writer is a zerolog writer inserting every JSON log event as an Entry.
// With a batch size above one, entries are buffered and stored together.
type Writer struct {
	collection docdb.Collection
	category   string
	batchSize  int
	now        func() time.Time

	mu      sync.Mutex
	pending []interface{}
}

// Config holds the configuration for a Writer.
type Config struct {
	Collection docdb.Collection
	// Category is used for events that carry no category field.
	Category string
	// BatchSize is the number of entries stored per insert. Values below
	// two insert every entry on its own.
	BatchSize int
}

// NewWriter creates a new log writer.
func NewWriter(cfg *Config) (*Writer, error) {
	if cfg == nil || cfg.Collection == nil {
		return nil, fmt.Errorf("collection is required")
	}
	category := cfg.Category
	if category == "" {
		category = "application"
	}
	return &Writer{
		collection: cfg.Collection,
		category:   category,
		batchSize:  cfg.BatchSize,
		now:        time.Now,
	}, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel implements zerolog.LevelWriter.
func (w *Writer) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	var event bson.M
	if err := bson.UnmarshalExtJSON(p, false, &event); err != nil {
		return 0, fmt.Errorf("failed to decode log event: %w", err)
	}

	entry := Entry{
		Level:    level.String(),
		Category: w.category,
		LogTime:  w.now().Unix(),
	}
	if s, ok := event[zerolog.LevelFieldName].(string); ok && level == zerolog.NoLevel {
		entry.Level = s
	}
	if s, ok := event[CategoryFieldName].(string); ok && s != "" {
		entry.Category = s
	}
	if s, ok := event[zerolog.MessageFieldName].(string); ok {
		entry.Message = s
	}

	if w.batchSize < 2 {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		defer cancel()
		if _, err := w.collection.InsertOne(ctx, entry); err != nil {
			return 0, fmt.Errorf("failed to store log entry: %w", err)
		}
		return len(p), nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, entry)
	if len(w.pending) < w.batchSize {
		return len(p), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()
	if err := w.flush(ctx); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush stores the buffered entries.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush(ctx)
}

// flush must be called with mu held. Entries are dropped on failure.
func (w *Writer) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	batch := w.pending
	w.pending = nil
	if _, err := w.collection.InsertMany(ctx, batch); err != nil {
		return fmt.Errorf("failed to store %d log entries: %w", len(batch), err)
	}
	return nil
}
