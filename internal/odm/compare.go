package odm

import (
	"regexp"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Comparison operators recognised at the start of a search value.
const (
	OpNotEqual     = "<>"
	OpLessEqual    = "<="
	OpGreaterEqual = ">="
	OpLess         = "<"
	OpGreater      = ">"
	OpEqual        = "="
)

var (
	comparisonPattern = regexp.MustCompile(`(?s)^(?:\s*(<>|<=|>=|<|>|=))?(.*)$`)
	// Unsigned integers without leading zeros.
	integerPattern = regexp.MustCompile(`^([0-9]|[1-9]\d+)$`)
)

// ParseComparison splits a search value into its leading comparison operator
// and the coerced operand. With partialMatch the operand becomes a
// case-insensitive regular expression; otherwise integer strings that fit in
// an int64 become int64 and everything else stays a string.
func ParseComparison(value string, partialMatch bool) (string, interface{}) {
	m := comparisonPattern.FindStringSubmatch(value)
	if m == nil {
		return "", value
	}
	op, rest := m[1], m[2]

	if partialMatch {
		return op, primitive.Regex{Pattern: rest, Options: "i"}
	}
	if integerPattern.MatchString(rest) {
		if n, err := strconv.ParseInt(rest, 10, 64); err == nil {
			return op, n
		}
	}
	return op, rest
}

// ComparisonFilter renders the constraint for op applied to v.
func ComparisonFilter(op string, v interface{}) interface{} {
	switch op {
	case OpNotEqual:
		return bson.M{"$ne": v}
	case OpLessEqual:
		return bson.M{"$lte": v}
	case OpGreaterEqual:
		return bson.M{"$gte": v}
	case OpLess:
		return bson.M{"$lt": v}
	case OpGreater:
		return bson.M{"$gt": v}
	default:
		return v
	}
}

// compareValue builds the constraint used by Criteria.Compare and
// Document.Search for an arbitrary attribute value.
func compareValue(value interface{}, partialMatch bool) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return ComparisonFilter(ParseComparison(v, partialMatch))
	case []interface{}:
		return bson.M{"$in": v}
	case bson.A:
		return bson.M{"$in": []interface{}(v)}
	case []string:
		in := make([]interface{}, len(v))
		for i, s := range v {
			in[i] = s
		}
		return bson.M{"$in": in}
	default:
		return v
	}
}
