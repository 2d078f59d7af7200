package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQuery is returned when a query cannot be encoded or evaluated.
var ErrInvalidQuery = errors.New("docstore: invalid query")

// System attributes every document carries.
const (
	FieldID        = "$id"
	FieldCreatedAt = "$createdAt"
	FieldUpdatedAt = "$updatedAt"
)

// Query is one list predicate. Predicates passed together are combined with AND.
// The concrete variants are Equal, Search, OrderBy, Limit and CursorAfter.
type Query interface {
	method() string
}

// Equal matches documents whose Field equals any of Values.
type Equal struct {
	Field  string
	Values []any
}

// Search matches documents whose Field contains Text.
type Search struct {
	Field string
	Text  string
}

// OrderBy sorts by Field. Multiple OrderBy predicates apply in order.
type OrderBy struct {
	Field string
	Desc  bool
}

// Limit caps the number of returned documents.
type Limit struct {
	N int
}

// CursorAfter starts the page after the document with ID in the current ordering.
type CursorAfter struct {
	ID string
}

func (Equal) method() string  { return "equal" }
func (Search) method() string { return "search" }
func (o OrderBy) method() string {
	if o.Desc {
		return "orderDesc"
	}
	return "orderAsc"
}
func (Limit) method() string       { return "limit" }
func (CursorAfter) method() string { return "cursorAfter" }

// Eq is shorthand for an Equal predicate.
func Eq(field string, values ...any) Equal {
	return Equal{Field: field, Values: values}
}

// Desc is shorthand for a descending OrderBy.
func Desc(field string) OrderBy {
	return OrderBy{Field: field, Desc: true}
}

// Asc is shorthand for an ascending OrderBy.
func Asc(field string) OrderBy {
	return OrderBy{Field: field}
}

type wireQuery struct {
	Method    string `json:"method"`
	Attribute string `json:"attribute,omitempty"`
	Values    []any  `json:"values,omitempty"`
}

// Validate reports whether q is well formed.
func Validate(q Query) error {
	switch v := q.(type) {
	case Equal:
		if strings.TrimSpace(v.Field) == "" {
			return fmt.Errorf("%w: equal without field", ErrInvalidQuery)
		}
		if len(v.Values) == 0 {
			return fmt.Errorf("%w: equal %q without values", ErrInvalidQuery, v.Field)
		}
	case Search:
		if strings.TrimSpace(v.Field) == "" {
			return fmt.Errorf("%w: search without field", ErrInvalidQuery)
		}
	case OrderBy:
		if strings.TrimSpace(v.Field) == "" {
			return fmt.Errorf("%w: order without field", ErrInvalidQuery)
		}
	case Limit:
		if v.N <= 0 {
			return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidQuery, v.N)
		}
	case CursorAfter:
		if v.ID == "" {
			return fmt.Errorf("%w: cursor without id", ErrInvalidQuery)
		}
	case nil:
		return fmt.Errorf("%w: nil query", ErrInvalidQuery)
	default:
		return fmt.Errorf("%w: unsupported query %T", ErrInvalidQuery, q)
	}
	return nil
}

// Encode serializes q into the JSON query syntax accepted by the Appwrite REST API.
func Encode(q Query) (string, error) {
	if err := Validate(q); err != nil {
		return "", err
	}

	wire := wireQuery{Method: q.method()}
	switch v := q.(type) {
	case Equal:
		wire.Attribute = v.Field
		wire.Values = v.Values
	case Search:
		wire.Attribute = v.Field
		wire.Values = []any{v.Text}
	case OrderBy:
		wire.Attribute = v.Field
	case Limit:
		wire.Values = []any{v.N}
	case CursorAfter:
		wire.Values = []any{v.ID}
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("encode %s query: %w", wire.Method, err)
	}
	return string(payload), nil
}

// EncodeAll serializes every query, failing on the first invalid one.
func EncodeAll(queries []Query) ([]string, error) {
	encoded := make([]string, 0, len(queries))
	for _, q := range queries {
		s, err := Encode(q)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, s)
	}
	return encoded, nil
}
