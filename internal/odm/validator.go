package odm

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/unifiedui/mongo-odm/internal/core/docdb"
	domainerrors "github.com/unifiedui/mongo-odm/internal/domain/errors"
)

const defaultUniqueMessage = `{attribute} "{value}" has already been taken.`

// UniqueValidator fails when another document already holds the attribute value.
type UniqueValidator struct {
	CaseSensitive bool
	AllowEmpty    bool
	// Model is checked instead of the validated document's model when set.
	Model *Model
	// AttributeName is the field looked up instead of the validated attribute.
	AttributeName string
	// Criteria adds conditions to the lookup.
	Criteria bson.M
	// Message supports the {attribute} and {value} placeholders.
	Message string
}

// NewUniqueValidator returns a case-sensitive validator that skips empty values.
func NewUniqueValidator() *UniqueValidator {
	return &UniqueValidator{CaseSensitive: true, AllowEmpty: true}
}

// Validate implements Validator.
func (v *UniqueValidator) Validate(ctx context.Context, d *Document, attribute string) error {
	value := d.Get(attribute)
	if v.AllowEmpty && isEmptyValue(value) {
		return nil
	}

	model := v.Model
	if model == nil {
		model = d.Model()
	}
	field := v.AttributeName
	if field == "" {
		field = attribute
	}

	filter := cloneMap(v.Criteria)
	if filter == nil {
		filter = bson.M{}
	}
	if s, ok := value.(string); ok && !v.CaseSensitive {
		filter[field] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(s) + "$", Options: "i"}
	} else {
		filter[field] = value
	}

	pk := model.PrimaryKeyField()
	var row bson.M
	res := model.Collection().FindOne(ctx, filter, &docdb.FindOneOptions{Projection: bson.M{pk: 1}})
	if err := res.Decode(&row); err != nil {
		if errors.Is(err, docdb.ErrNoDocuments) {
			return nil
		}
		return domainerrors.NewDriverError("unique validation", err)
	}

	if fmt.Sprint(row[pk]) == fmt.Sprint(d.PrimaryKey()) {
		return nil
	}
	message := v.Message
	if message == "" {
		message = defaultUniqueMessage
	}
	d.AddError(attribute, strings.NewReplacer(
		"{attribute}", attribute,
		"{value}", fmt.Sprint(value),
	).Replace(message))
	return nil
}

func isEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}
