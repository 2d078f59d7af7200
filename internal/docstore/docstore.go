// Package docstore is a minimal client surface over a remote document database:
// filtered lists, create, partial update and delete scoped to one database.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound matches remote errors for missing documents.
	ErrNotFound = errors.New("docstore: not found")
	// ErrConflict matches remote errors for an already existing document id.
	ErrConflict = errors.New("docstore: conflict")
	// ErrUnauthorized matches remote errors for missing or rejected credentials.
	ErrUnauthorized = errors.New("docstore: unauthorized")
)

// Document is a stored record: system attributes plus free-form data.
type Document struct {
	ID          string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Permissions []string
	Data        map[string]any
}

// ListResult is the envelope returned by list calls. Total counts every match,
// not just the returned page.
type ListResult struct {
	Documents []Document
	Total     int
}

// Store is the CRUD surface shared by every backend.
type Store interface {
	List(ctx context.Context, collection string, queries ...Query) (ListResult, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	// Create stores data under id, or under a generated id when id is empty.
	Create(ctx context.Context, collection, id string, data map[string]any, permissions []string) (Document, error)
	Update(ctx context.Context, collection, id string, data map[string]any) (Document, error)
	Delete(ctx context.Context, collection, id string) error
}

// Incrementer is implemented by stores that can add to a numeric attribute atomically.
// Implementations return errors.ErrUnsupported when the capability is switched off.
type Incrementer interface {
	Increment(ctx context.Context, collection, id, attribute string, by int64) (Document, error)
}

// RemoteError is a non-2xx response from the store.
type RemoteError struct {
	Status  int
	Code    int
	Type    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("docstore: %d %s: %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("docstore: %d: %s", e.Status, e.Message)
}

// Is maps status codes onto the package sentinels.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == 404
	case ErrConflict:
		return e.Status == 409
	case ErrUnauthorized:
		return e.Status == 401 || e.Status == 403
	}
	return false
}

// ReadUser grants read access to a single user.
func ReadUser(userID string) string {
	return fmt.Sprintf(`read("user:%s")`, userID)
}

// WriteUser grants write access to a single user.
func WriteUser(userID string) string {
	return fmt.Sprintf(`write("user:%s")`, userID)
}

// OwnerPermissions restricts a document to its owner.
func OwnerPermissions(userID string) []string {
	return []string{ReadUser(userID), WriteUser(userID)}
}

// String returns the string attribute at field, or "" when absent.
func (d Document) String(field string) string {
	switch v := d.Data[field].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the integer attribute at field. Numeric strings are accepted; any
// other shape reports ok=false.
func (d Document) Int(field string) (int64, bool) {
	switch v := d.Data[field].(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case float32:
		return int64(v), float32(int64(v)) == v
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// UnmarshalJSON splits Appwrite's flat document shape into system attributes and data.
func (d *Document) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	doc := Document{Data: make(map[string]any, len(raw))}
	for key, value := range raw {
		if !strings.HasPrefix(key, "$") {
			doc.Data[key] = value
			continue
		}
		switch key {
		case FieldID:
			doc.ID, _ = value.(string)
		case FieldCreatedAt:
			doc.CreatedAt = parseTimestamp(value)
		case FieldUpdatedAt:
			doc.UpdatedAt = parseTimestamp(value)
		case "$permissions":
			if list, ok := value.([]any); ok {
				for _, p := range list {
					if s, ok := p.(string); ok {
						doc.Permissions = append(doc.Permissions, s)
					}
				}
			}
		}
	}
	*d = doc
	return nil
}

// MarshalJSON writes the document back in the flat shape.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Data)+4)
	for key, value := range d.Data {
		out[key] = value
	}
	out[FieldID] = d.ID
	out[FieldCreatedAt] = d.CreatedAt.UTC().Format(time.RFC3339Nano)
	out[FieldUpdatedAt] = d.UpdatedAt.UTC().Format(time.RFC3339Nano)
	perms := d.Permissions
	if perms == nil {
		perms = []string{}
	}
	out["$permissions"] = perms
	return json.Marshal(out)
}

func parseTimestamp(value any) time.Time {
	s, ok := value.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// NormalizeData round-trips data through JSON so every backend hands back the
// same value shapes (float64 numbers, []any slices, map[string]any objects).
func NormalizeData(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document data: %w", err)
	}
	out := make(map[string]any, len(data))
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode document data: %w", err)
	}
	return out, nil
}
