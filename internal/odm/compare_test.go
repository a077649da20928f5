package odm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/unifiedui/mongo-odm/internal/odm"
)

func TestParseComparison(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		partialMatch bool
		wantOp       string
		wantValue    interface{}
	}{
		{name: "integer", value: "123", wantOp: "", wantValue: int64(123)},
		{name: "zero", value: "0", wantOp: "", wantValue: int64(0)},
		{name: "not equal", value: "<>5", wantOp: "<>", wantValue: int64(5)},
		{name: "less or equal", value: "<=7", wantOp: "<=", wantValue: int64(7)},
		{name: "greater or equal with space", value: "  >=10", wantOp: ">=", wantValue: int64(10)},
		{name: "less", value: "<abc", wantOp: "<", wantValue: "abc"},
		{name: "greater", value: ">2", wantOp: ">", wantValue: int64(2)},
		{name: "equal", value: "=x", wantOp: "=", wantValue: "x"},
		{name: "leading zero stays string", value: "0123", wantOp: "", wantValue: "0123"},
		{name: "negative stays string", value: "-5", wantOp: "", wantValue: "-5"},
		{name: "overflow stays string", value: "99999999999999999999", wantOp: "", wantValue: "99999999999999999999"},
		{name: "plain string", value: "hello", wantOp: "", wantValue: "hello"},
		{name: "partial match", value: "abc", partialMatch: true, wantOp: "", wantValue: primitive.Regex{Pattern: "abc", Options: "i"}},
		{name: "partial match keeps operator", value: "<>foo", partialMatch: true, wantOp: "<>", wantValue: primitive.Regex{Pattern: "foo", Options: "i"}},
		{name: "partial match on digits", value: "12", partialMatch: true, wantOp: "", wantValue: primitive.Regex{Pattern: "12", Options: "i"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, v := odm.ParseComparison(tt.value, tt.partialMatch)
			assert.Equal(t, tt.wantOp, op)
			assert.Equal(t, tt.wantValue, v)
		})
	}
}

func TestComparisonFilter(t *testing.T) {
	assert.Equal(t, bson.M{"$ne": 5}, odm.ComparisonFilter("<>", 5))
	assert.Equal(t, bson.M{"$lte": 5}, odm.ComparisonFilter("<=", 5))
	assert.Equal(t, bson.M{"$gte": 5}, odm.ComparisonFilter(">=", 5))
	assert.Equal(t, bson.M{"$lt": 5}, odm.ComparisonFilter("<", 5))
	assert.Equal(t, bson.M{"$gt": 5}, odm.ComparisonFilter(">", 5))
	assert.Equal(t, 5, odm.ComparisonFilter("=", 5))
	assert.Equal(t, "x", odm.ComparisonFilter("", "x"))
}
