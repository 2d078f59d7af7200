package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/xid"

	"github.com/Clark-Hu/moviedeck/internal/docstore"
)

const documentColumns = "id, data, permissions, created_at, updated_at"

var (
	_ docstore.Store       = (*Store)(nil)
	_ docstore.Incrementer = (*Store)(nil)
)

// List evaluates queries against one collection. The match count and the page
// are read in the same snapshot.
func (s *Store) List(ctx context.Context, collection string, queries ...docstore.Query) (docstore.ListResult, error) {
	plan, err := planList(collection, queries)
	if err != nil {
		return docstore.ListResult{}, err
	}

	matched := fmt.Sprintf(`WITH matched AS (
	SELECT %s, row_number() OVER (ORDER BY %s) AS pos
	FROM documents
	WHERE %s
)
`, documentColumns, strings.Join(plan.order, ", "), strings.Join(plan.where, " AND "))
	n := len(plan.args)
	statsSQL := matched + fmt.Sprintf(`SELECT count(*), (SELECT pos FROM matched WHERE id = $%d) FROM matched`, n+1)
	pageSQL := matched + fmt.Sprintf(`SELECT %s FROM matched WHERE pos > $%d ORDER BY pos LIMIT $%d`, documentColumns, n+1, n+2)

	var result docstore.ListResult
	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var (
			total     int64
			cursorPos *int64
		)
		statsArgs := append(plan.args[:n:n], plan.cursor)
		if err := tx.QueryRow(ctx, statsSQL, statsArgs...).Scan(&total, &cursorPos); err != nil {
			return fmt.Errorf("count %s: %w", collection, err)
		}
		result.Total = int(total)

		var start int64
		if plan.cursor != "" {
			if cursorPos == nil {
				return fmt.Errorf("%w: cursor %q not in result set", docstore.ErrInvalidQuery, plan.cursor)
			}
			start = *cursorPos
		}
		var limit any
		if plan.limit >= 0 {
			limit = int64(plan.limit)
		}

		rows, err := tx.Query(ctx, pageSQL, append(plan.args[:n:n], start, limit)...)
		if err != nil {
			return fmt.Errorf("list %s: %w", collection, err)
		}
		docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (docstore.Document, error) {
			return scanDocument(row)
		})
		if err != nil {
			return fmt.Errorf("scan %s: %w", collection, err)
		}
		result.Documents = docs
		return nil
	})
	if err != nil {
		return docstore.ListResult{}, err
	}
	if result.Documents == nil {
		result.Documents = []docstore.Document{}
	}
	return result, nil
}

// Get returns one document.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE collection_id = $1 AND id = $2`,
		collection, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Document{}, notFound(collection, id)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Create inserts a document; a reused id yields a 409 RemoteError.
func (s *Store) Create(ctx context.Context, collection, id string, data map[string]any, permissions []string) (docstore.Document, error) {
	normalized, err := docstore.NormalizeData(data)
	if err != nil {
		return docstore.Document{}, err
	}
	if id == "" {
		id = xid.New().String()
	}
	if permissions == nil {
		permissions = []string{}
	}

	row := s.pool.QueryRow(ctx, `
INSERT INTO documents (collection_id, id, data, permissions)
VALUES ($1, $2, $3, $4)
RETURNING `+documentColumns,
		collection, id, normalized, permissions)
	doc, err := scanDocument(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return docstore.Document{}, &docstore.RemoteError{
				Status:  409,
				Code:    409,
				Type:    "document_already_exists",
				Message: fmt.Sprintf("document %s already exists in %s", id, collection),
			}
		}
		return docstore.Document{}, fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Update merges data into the stored attributes.
func (s *Store) Update(ctx context.Context, collection, id string, data map[string]any) (docstore.Document, error) {
	normalized, err := docstore.NormalizeData(data)
	if err != nil {
		return docstore.Document{}, err
	}

	row := s.pool.QueryRow(ctx, `
UPDATE documents
SET data = data || $3::jsonb, updated_at = now()
WHERE collection_id = $1 AND id = $2
RETURNING `+documentColumns,
		collection, id, normalized)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Document{}, notFound(collection, id)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection_id = $1 AND id = $2`, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(collection, id)
	}
	return nil
}

// Increment adds by to a numeric attribute in a single UPDATE. A missing
// attribute counts as zero.
func (s *Store) Increment(ctx context.Context, collection, id, attribute string, by int64) (docstore.Document, error) {
	row := s.pool.QueryRow(ctx, `
UPDATE documents
SET data = jsonb_set(data, ARRAY[$3::text], to_jsonb(COALESCE((data->>($3::text))::numeric, 0) + $4::numeric)),
    updated_at = now()
WHERE collection_id = $1 AND id = $2
RETURNING `+documentColumns,
		collection, id, attribute, by)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Document{}, notFound(collection, id)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
			return docstore.Document{}, &docstore.RemoteError{
				Status:  400,
				Code:    400,
				Type:    "attribute_type_invalid",
				Message: fmt.Sprintf("attribute %s is not numeric", attribute),
			}
		}
		return docstore.Document{}, fmt.Errorf("increment %s/%s.%s: %w", collection, id, attribute, err)
	}
	return doc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (docstore.Document, error) {
	var doc docstore.Document
	if err := row.Scan(&doc.ID, &doc.Data, &doc.Permissions, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return docstore.Document{}, err
	}
	if doc.Data == nil {
		doc.Data = map[string]any{}
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return doc, nil
}

func notFound(collection, id string) *docstore.RemoteError {
	return &docstore.RemoteError{
		Status:  404,
		Code:    404,
		Type:    "document_not_found",
		Message: fmt.Sprintf("document %s not found in %s", id, collection),
	}
}

// listPlan is the SQL form of a query list: WHERE fragments, ORDER BY terms and
// their positional arguments.
type listPlan struct {
	where  []string
	order  []string
	args   []any
	limit  int
	cursor string
}

func (p *listPlan) arg(v any) string {
	p.args = append(p.args, v)
	return fmt.Sprintf("$%d", len(p.args))
}

func planList(collection string, queries []docstore.Query) (*listPlan, error) {
	p := &listPlan{limit: -1}
	p.where = append(p.where, "collection_id = "+p.arg(collection))

	for _, q := range queries {
		if err := docstore.Validate(q); err != nil {
			return nil, err
		}
		switch v := q.(type) {
		case docstore.Equal:
			clause, err := p.equal(v)
			if err != nil {
				return nil, err
			}
			p.where = append(p.where, clause)
		case docstore.Search:
			if strings.HasPrefix(v.Field, "$") {
				return nil, fmt.Errorf("%w: search on %s is not supported", docstore.ErrInvalidQuery, v.Field)
			}
			p.where = append(p.where, fmt.Sprintf("jsonb_typeof(data->(%s::text)) = 'string' AND data->>(%s::text) ILIKE %s",
				p.arg(v.Field), p.arg(v.Field), p.arg("%"+escapeLike(v.Text)+"%")))
		case docstore.OrderBy:
			// Missing attributes sort lowest, as in the memory store.
			dir := "ASC NULLS FIRST"
			if v.Desc {
				dir = "DESC NULLS LAST"
			}
			p.order = append(p.order, p.column(v.Field)+" "+dir)
		case docstore.Limit:
			p.limit = v.N
		case docstore.CursorAfter:
			p.cursor = v.ID
		}
	}
	p.order = append(p.order, "seq ASC")
	return p, nil
}

func (p *listPlan) equal(q docstore.Equal) (string, error) {
	switch q.Field {
	case docstore.FieldID:
		ids := make([]string, 0, len(q.Values))
		for _, v := range q.Values {
			s, ok := v.(string)
			if !ok {
				return "", fmt.Errorf("%w: %s expects string values", docstore.ErrInvalidQuery, q.Field)
			}
			ids = append(ids, s)
		}
		return "id = ANY(" + p.arg(ids) + "::text[])", nil
	case docstore.FieldCreatedAt, docstore.FieldUpdatedAt:
		return "", fmt.Errorf("%w: equal on %s is not supported", docstore.ErrInvalidQuery, q.Field)
	}

	parts := make([]string, 0, len(q.Values))
	for _, v := range q.Values {
		payload, err := json.Marshal(map[string]any{q.Field: v})
		if err != nil {
			return "", fmt.Errorf("%w: %v", docstore.ErrInvalidQuery, err)
		}
		parts = append(parts, "data @> "+p.arg(string(payload))+"::jsonb")
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

func (p *listPlan) column(field string) string {
	switch field {
	case docstore.FieldID:
		return "id"
	case docstore.FieldCreatedAt:
		return "created_at"
	case docstore.FieldUpdatedAt:
		return "updated_at"
	}
	return "data->(" + p.arg(field) + "::text)"
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
