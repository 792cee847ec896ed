package driver

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// TypeConversionError represents an error during type conversion from database types.
type TypeConversionError struct {
	Expected string
	Actual   string
	Field    string
}

func (e *TypeConversionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("type conversion error for field %q: expected %s, got %s", e.Field, e.Expected, e.Actual)
	}
	return fmt.Sprintf("type conversion error: expected %s, got %s", e.Expected, e.Actual)
}

// AsRecordSlice safely converts a transaction result to []*db.Record.
func AsRecordSlice(v any) ([]*db.Record, bool) {
	records, ok := v.([]*db.Record)
	return records, ok
}

// AsDBNode safely converts a record value to dbtype.Node.
func AsDBNode(v any) (dbtype.Node, bool) {
	node, ok := v.(dbtype.Node)
	return node, ok
}

// AsDBRelationship safely converts a record value to dbtype.Relationship.
func AsDBRelationship(v any) (dbtype.Relationship, bool) {
	rel, ok := v.(dbtype.Relationship)
	return rel, ok
}

// AsString safely converts a record value to string.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// AsInt64 safely converts a record value to int64.
func AsInt64(v any) (int64, bool) {
	i, ok := v.(int64)
	return i, ok
}

// AsFloat64 safely converts a record value to float64.
func AsFloat64(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// AsAnySlice safely converts a record value to []any.
func AsAnySlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// MustRecordSlice converts a transaction result to []*db.Record or returns an error.
// A nil result is an empty slice.
func MustRecordSlice(v any, field string) ([]*db.Record, error) {
	if v == nil {
		return nil, nil
	}
	records, ok := AsRecordSlice(v)
	if !ok {
		return nil, &TypeConversionError{Expected: "[]*db.Record", Actual: fmt.Sprintf("%T", v), Field: field}
	}
	return records, nil
}

// MustDBNode converts a record value to dbtype.Node or returns an error.
func MustDBNode(v any, field string) (dbtype.Node, error) {
	node, ok := AsDBNode(v)
	if !ok {
		return dbtype.Node{}, &TypeConversionError{Expected: "dbtype.Node", Actual: fmt.Sprintf("%T", v), Field: field}
	}
	return node, nil
}
