package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
)

// MemoryStore is an in-process Store with the same query semantics and error
// surface as the remote backends.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*memoryDoc
	seq         int64
	now         func() time.Time
}

type memoryDoc struct {
	doc Document
	seq int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*memoryDoc),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// List evaluates queries against the collection.
func (m *MemoryStore) List(ctx context.Context, collection string, queries ...Query) (ListResult, error) {
	if err := ctx.Err(); err != nil {
		return ListResult{}, err
	}
	for _, q := range queries {
		if err := Validate(q); err != nil {
			return ListResult{}, err
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		orders []OrderBy
		limit  = -1
		cursor string
		docs   []*memoryDoc
	)
	for _, q := range queries {
		switch v := q.(type) {
		case OrderBy:
			orders = append(orders, v)
		case Limit:
			limit = v.N
		case CursorAfter:
			cursor = v.ID
		}
	}

	for _, d := range m.collections[collection] {
		if matchesAll(d.doc, queries) {
			docs = append(docs, d)
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range orders {
			c := compareValues(fieldValue(docs[i].doc, o.Field), fieldValue(docs[j].doc, o.Field))
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return docs[i].seq < docs[j].seq
	})

	total := len(docs)
	if cursor != "" {
		idx := -1
		for i, d := range docs {
			if d.doc.ID == cursor {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ListResult{}, fmt.Errorf("%w: cursor %q not in result set", ErrInvalidQuery, cursor)
		}
		docs = docs[idx+1:]
	}
	if limit >= 0 && len(docs) > limit {
		docs = docs[:limit]
	}

	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, cloneDocument(d.doc))
	}
	return ListResult{Documents: out, Total: total}, nil
}

// Get returns one document.
func (m *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.collections[collection][id]
	if !ok {
		return Document{}, notFound(collection, id)
	}
	return cloneDocument(d.doc), nil
}

// Create stores a new document; a reused id yields a 409 RemoteError.
func (m *MemoryStore) Create(ctx context.Context, collection, id string, data map[string]any, permissions []string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	normalized, err := NormalizeData(data)
	if err != nil {
		return Document{}, err
	}
	if id == "" {
		id = xid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs, ok := m.collections[collection]
	if !ok {
		docs = make(map[string]*memoryDoc)
		m.collections[collection] = docs
	}
	if _, exists := docs[id]; exists {
		return Document{}, &RemoteError{
			Status:  409,
			Code:    409,
			Type:    "document_already_exists",
			Message: fmt.Sprintf("document %s already exists in %s", id, collection),
		}
	}

	m.seq++
	now := m.now()
	doc := Document{
		ID:          id,
		CreatedAt:   now,
		UpdatedAt:   now,
		Permissions: append([]string(nil), permissions...),
		Data:        normalized,
	}
	docs[id] = &memoryDoc{doc: doc, seq: m.seq}
	return cloneDocument(doc), nil
}

// Update merges data into an existing document.
func (m *MemoryStore) Update(ctx context.Context, collection, id string, data map[string]any) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	normalized, err := NormalizeData(data)
	if err != nil {
		return Document{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.collections[collection][id]
	if !ok {
		return Document{}, notFound(collection, id)
	}
	for key, value := range normalized {
		d.doc.Data[key] = value
	}
	d.doc.UpdatedAt = m.now()
	return cloneDocument(d.doc), nil
}

// Delete removes a document.
func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection][id]; !ok {
		return notFound(collection, id)
	}
	delete(m.collections[collection], id)
	return nil
}

// Increment adds by to a numeric attribute under the store lock.
func (m *MemoryStore) Increment(ctx context.Context, collection, id, attribute string, by int64) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.collections[collection][id]
	if !ok {
		return Document{}, notFound(collection, id)
	}
	current, ok := d.doc.Int(attribute)
	if !ok && d.doc.Data[attribute] != nil {
		return Document{}, &RemoteError{
			Status:  400,
			Code:    400,
			Type:    "attribute_type_invalid",
			Message: fmt.Sprintf("attribute %s is not numeric", attribute),
		}
	}
	d.doc.Data[attribute] = float64(current + by)
	d.doc.UpdatedAt = m.now()
	return cloneDocument(d.doc), nil
}

// Len returns the number of documents in collection.
func (m *MemoryStore) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

func notFound(collection, id string) *RemoteError {
	return &RemoteError{
		Status:  404,
		Code:    404,
		Type:    "document_not_found",
		Message: fmt.Sprintf("document %s not found in %s", id, collection),
	}
}

func cloneDocument(d Document) Document {
	out := d
	out.Permissions = append([]string(nil), d.Permissions...)
	out.Data = make(map[string]any, len(d.Data))
	for key, value := range d.Data {
		out.Data[key] = value
	}
	return out
}

func matchesAll(doc Document, queries []Query) bool {
	for _, q := range queries {
		switch v := q.(type) {
		case Equal:
			if !matchesEqual(fieldValue(doc, v.Field), v.Values) {
				return false
			}
		case Search:
			s, ok := fieldValue(doc, v.Field).(string)
			if !ok || !strings.Contains(strings.ToLower(s), strings.ToLower(v.Text)) {
				return false
			}
		}
	}
	return true
}

func matchesEqual(actual any, values []any) bool {
	if actual == nil {
		return false
	}
	for _, want := range values {
		normalized, ok := normalizeScalar(want)
		if !ok {
			continue
		}
		if sameKind(actual, normalized) && compareValues(actual, normalized) == 0 {
			return true
		}
	}
	return false
}

func fieldValue(doc Document, field string) any {
	switch field {
	case FieldID:
		return doc.ID
	case FieldCreatedAt:
		return doc.CreatedAt
	case FieldUpdatedAt:
		return doc.UpdatedAt
	}
	return doc.Data[field]
}

func normalizeScalar(v any) (any, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64, string, bool, time.Time:
		return n, true
	}
	return nil, false
}

func sameKind(a, b any) bool {
	return kindRank(a) == kindRank(b)
}

func kindRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	case time.Time:
		return 4
	}
	return 5
}

// compareValues orders values of the same kind naturally and different kinds by rank.
func compareValues(a, b any) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, b.(string))
	case time.Time:
		return x.Compare(b.(time.Time))
	}
	return 0
}
