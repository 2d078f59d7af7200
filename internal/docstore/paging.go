package docstore

import (
	"context"
	"fmt"
)

// DefaultPageSize is used by ListAll when no page size is given.
const DefaultPageSize = 100

// ListAll follows CursorAfter pages until a short page and returns every match.
// Limit and CursorAfter predicates in queries are replaced by the paging ones.
func ListAll(ctx context.Context, s Store, collection string, pageSize int, queries ...Query) ([]Document, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	base := make([]Query, 0, len(queries)+2)
	for _, q := range queries {
		switch q.(type) {
		case Limit, CursorAfter:
			continue
		}
		base = append(base, q)
	}

	var (
		all    []Document
		cursor string
	)
	for page := 0; ; page++ {
		pageQueries := append(base[:len(base):len(base)], Limit{N: pageSize})
		if cursor != "" {
			pageQueries = append(pageQueries, CursorAfter{ID: cursor})
		}

		res, err := s.List(ctx, collection, pageQueries...)
		if err != nil {
			return nil, fmt.Errorf("list %s page %d: %w", collection, page, err)
		}
		all = append(all, res.Documents...)
		if len(res.Documents) < pageSize {
			return all, nil
		}
		cursor = res.Documents[len(res.Documents)-1].ID
	}
}
