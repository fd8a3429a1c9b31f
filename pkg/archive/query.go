package archive

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// documentRows runs query (already scoped to the documents table's
// columns, joined to assignments where a path filter is needed) against
// every shard reader via fan-out and scans each row with documentMapper.
func (s *Store) documentRows(ctx context.Context, query string, p map[string]any) ([]Document, error) {
	return fanOut(s.pool, func(c *conn) ([]Document, error) {
		stmt, err := c.Prepare(ctx, query)
		if err != nil {
			return nil, err
		}
		defer stmt.Close()

		rs, err := stmt.Open(ctx, p)
		if err != nil {
			return nil, err
		}
		defer rs.Close()

		var docs []Document
		for rs.Next() {
			d := documentMapper.scan(rs)
			d.FolderPath = rs.GetText("path")
			docs = append(docs, d)
		}

		return docs, rs.Err()
	})
}

const documentsByPathSelect = `
	SELECT d.id, d.creator, d.created, d.file_name, d.display_name, d.state,
	       d.locker, d.keywords, d.size, a.path AS path
	FROM documents d
	JOIN assignments a ON a.document_id = d.id
`

// Find returns the document at folder/filename, matched exactly and
// case-insensitively.
func (s *Store) Find(ctx context.Context, folder, filename string) ([]Document, error) {
	query := documentsByPathSelect + " WHERE a.path = :path AND LOWER(d.file_name) = LOWER(:name)"

	return s.documentRows(ctx, query, map[string]any{
		"path": strings.ToLower(folder), "name": filename,
	})
}

// FindTitle returns documents at folder whose DisplayName matches display
// exactly once lower-cased.
func (s *Store) FindTitle(ctx context.Context, folder, display string) ([]Document, error) {
	query := documentsByPathSelect + " WHERE a.path = :path AND LOWER(d.display_name) = LOWER(:display)"

	return s.documentRows(ctx, query, map[string]any{
		"path": strings.ToLower(folder), "display": display,
	})
}

// FindKeywords returns documents whose Keywords field contains any of
// words, OR-ed together.
func (s *Store) FindKeywords(ctx context.Context, words []string) ([]Document, error) {
	return s.findLikeAny(ctx, "d.keywords", words)
}

// FindFilenames returns documents whose FileName contains any of words.
func (s *Store) FindFilenames(ctx context.Context, words []string) ([]Document, error) {
	return s.findLikeAny(ctx, "d.file_name", words)
}

func (s *Store) findLikeAny(ctx context.Context, column string, words []string) ([]Document, error) {
	if len(words) == 0 {
		return nil, nil
	}

	clauses := make([]string, len(words))
	params := make(map[string]any, len(words))

	for i, w := range words {
		key := fmt.Sprintf("w%d", i)
		clauses[i] = fmt.Sprintf("%s LIKE :%s", column, key)
		params[key] = "%" + w + "%"
	}

	query := documentsByPathSelect + " WHERE " + strings.Join(clauses, " OR ")

	return s.documentRows(ctx, query, params)
}

// FindFilenameMatch returns documents whose FileName matches expr as a
// regular expression, via SQLite's REGEXP operator.
func (s *Store) FindFilenameMatch(ctx context.Context, expr string) ([]Document, error) {
	query := documentsByPathSelect + " WHERE d.file_name REGEXP :expr"

	return s.documentRows(ctx, query, map[string]any{"expr": expr})
}

// FindDeleted returns soft-deleted documents whose assignment path starts
// with root and is no more than depth path segments below it. depth < 0
// means unbounded, in which case base is treated as 0.
func (s *Store) FindDeleted(ctx context.Context, root string, depth int) ([]Document, error) {
	base := 0
	if depth >= 0 {
		base = len(SplitPath(root))
	}

	maxParts := math.MaxInt32
	if depth >= 0 {
		maxParts = depth
	}

	query := documentsByPathSelect + `
		WHERE d.state = 1 AND a.path LIKE :prefix || '%'
		AND (PARTSCOUNT(a.path, '/') - :base) <= :maxparts
	`

	return s.documentRows(ctx, query, map[string]any{
		"prefix": strings.ToLower(root), "base": base, "maxparts": maxParts,
	})
}

// FindMetaData splits tags on the RS separator, wraps each key in a
// prefix-match FTS token and ANDs them, then runs the resulting MATCH
// query via fan-out against every shard's meta_fts table.
func (s *Store) FindMetaData(ctx context.Context, tags string) ([]string, error) {
	parts := strings.Split(tags, rsSeparator)

	clauses := make([]string, 0, len(parts))

	for _, p := range parts {
		key, _, ok := strings.Cut(p, "=")
		if !ok {
			key = p
		}

		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		clauses = append(clauses, fmt.Sprintf("%q*", key))
	}

	if len(clauses) == 0 {
		return nil, newErr(KindInvalid, "store.find_meta_data", "", fmt.Errorf("empty meta-tag query"))
	}

	match := strings.Join(clauses, " AND ")

	return fanOut(s.pool, func(c *conn) ([]string, error) {
		stmt, err := c.Prepare(ctx, "SELECT owner FROM meta_fts WHERE meta_fts MATCH :match")
		if err != nil {
			return nil, err
		}
		defer stmt.Close()

		rs, err := stmt.Open(ctx, map[string]any{"match": match})
		if err != nil {
			return nil, err
		}
		defer rs.Close()

		var owners []string
		for rs.Next() {
			owners = append(owners, rs.GetText("owner"))
		}

		return owners, rs.Err()
	})
}
