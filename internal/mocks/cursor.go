package mocks

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/unifiedui/mongo-odm/internal/core/docdb"
)

// SliceCursor is a docdb.Cursor over in-memory rows. Rows are decoded
// through a BSON round trip, as the driver would.
type SliceCursor struct {
	rows   []bson.M
	pos    int
	err    error
	Closed bool
}

// NewSliceCursor returns a cursor over rows.
func NewSliceCursor(rows ...bson.M) *SliceCursor {
	return &SliceCursor{rows: rows, pos: -1}
}

// NewFailingCursor returns a cursor whose iteration stops with err.
func NewFailingCursor(err error) *SliceCursor {
	return &SliceCursor{pos: -1, err: err}
}

// Next advances the cursor.
func (c *SliceCursor) Next(ctx context.Context) bool {
	if c.err != nil || c.pos+1 >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

// Decode decodes the current row into v.
func (c *SliceCursor) Decode(v interface{}) error {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return fmt.Errorf("cursor is not positioned on a row")
	}
	return roundTrip(c.rows[c.pos], v)
}

// All decodes the remaining rows into results, a pointer to a slice.
func (c *SliceCursor) All(ctx context.Context, results interface{}) error {
	if c.err != nil {
		return c.err
	}
	start := c.pos + 1
	if start > len(c.rows) {
		start = len(c.rows)
	}
	rest := c.rows[start:]
	c.pos = len(c.rows)
	data, err := bson.Marshal(bson.M{"rows": rest})
	if err != nil {
		return err
	}
	raw := bson.Raw(data)
	return raw.Lookup("rows").Unmarshal(results)
}

// Err returns the iteration error.
func (c *SliceCursor) Err() error {
	return c.err
}

// Close closes the cursor.
func (c *SliceCursor) Close(ctx context.Context) error {
	c.Closed = true
	return nil
}

// SingleResult is a docdb.SingleResult holding at most one row.
type SingleResult struct {
	row bson.M
	err error
}

// NewSingleResult returns a result decoding row, or reporting
// docdb.ErrNoDocuments when row is nil.
func NewSingleResult(row bson.M) *SingleResult {
	if row == nil {
		return &SingleResult{err: docdb.ErrNoDocuments}
	}
	return &SingleResult{row: row}
}

// NewErrSingleResult returns a result failing with err.
func NewErrSingleResult(err error) *SingleResult {
	return &SingleResult{err: err}
}

// Decode decodes the row into v.
func (r *SingleResult) Decode(v interface{}) error {
	if r.err != nil {
		return r.err
	}
	return roundTrip(r.row, v)
}

// Err returns the result error.
func (r *SingleResult) Err() error {
	return r.err
}

func roundTrip(row bson.M, v interface{}) error {
	data, err := bson.Marshal(row)
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, v)
}
