package logroute

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/mongo-odm/internal/mocks"
)

func newTestWriter(t *testing.T, category string) (*Writer, *mocks.MockCollection) {
	t.Helper()

	coll := mocks.NewMockCollection(DefaultCollection)
	w, err := NewWriter(&Config{Collection: coll, Category: category})
	require.NoError(t, err)
	w.now = func() time.Time { return time.Unix(1700000000, 0) }

	t.Cleanup(func() { coll.AssertExpectations(t) })
	return w, coll
}

func TestNewWriter_RequiresCollection(t *testing.T) {
	_, err := NewWriter(nil)
	assert.Error(t, err)

	_, err = NewWriter(&Config{})
	assert.Error(t, err)
}

func TestWriter_StoresEvents(t *testing.T) {
	w, coll := newTestWriter(t, "")
	logger := zerolog.New(w)

	coll.On("InsertOne", mock.Anything, Entry{
		Level:    "warn",
		Category: "odm.query.items.find",
		LogTime:  1700000000,
		Message:  "slow query",
	}).Return(nil, nil).Once()
	coll.On("InsertOne", mock.Anything, Entry{
		Level:    "info",
		Category: "application",
		LogTime:  1700000000,
		Message:  "started",
	}).Return(nil, nil).Once()

	logger.Warn().Str(CategoryFieldName, "odm.query.items.find").Msg("slow query")
	logger.Info().Msg("started")
}

func TestWriter_PlainWrite(t *testing.T) {
	w, coll := newTestWriter(t, "odm")

	coll.On("InsertOne", mock.Anything, mock.MatchedBy(func(e Entry) bool {
		return e.Level == "error" && e.Category == "odm" && e.Message == "boom"
	})).Return(nil, nil).Once()

	p := []byte(`{"level":"error","message":"boom"}`)
	n, err := w.Write(p)

	require.NoError(t, err)
	assert.Equal(t, len(p), n)
}

func TestWriter_Failures(t *testing.T) {
	w, coll := newTestWriter(t, "")

	_, err := w.Write([]byte("not json"))
	assert.Error(t, err)

	coll.On("InsertOne", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()
	_, err = w.Write([]byte(`{"message":"x"}`))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestWriter_Batches(t *testing.T) {
	coll := mocks.NewMockCollection(DefaultCollection)
	w, err := NewWriter(&Config{Collection: coll, BatchSize: 2})
	require.NoError(t, err)
	w.now = func() time.Time { return time.Unix(1700000000, 0) }
	logger := zerolog.New(w)

	entry := func(level, msg string) Entry {
		return Entry{Level: level, Category: "application", LogTime: 1700000000, Message: msg}
	}
	coll.On("InsertMany", mock.Anything, []interface{}{entry("info", "one"), entry("warn", "two")}).
		Return([]interface{}{1, 2}, nil).Once()
	coll.On("InsertMany", mock.Anything, []interface{}{entry("error", "three")}).
		Return([]interface{}{3}, nil).Once()

	logger.Info().Msg("one")
	coll.AssertNotCalled(t, "InsertMany", mock.Anything, mock.Anything)
	logger.Warn().Msg("two")
	logger.Error().Msg("three")

	require.NoError(t, w.Flush(context.Background()))
	require.NoError(t, w.Flush(context.Background()))

	coll.AssertExpectations(t)
	coll.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
}

func TestWriter_BatchFailure(t *testing.T) {
	coll := mocks.NewMockCollection(DefaultCollection)
	w, err := NewWriter(&Config{Collection: coll, BatchSize: 5})
	require.NoError(t, err)

	coll.On("InsertMany", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	_, err = w.Write([]byte(`{"level":"info","message":"x"}`))
	require.NoError(t, err)

	assert.ErrorIs(t, w.Flush(context.Background()), assert.AnError)
	assert.NoError(t, w.Flush(context.Background()))
}
