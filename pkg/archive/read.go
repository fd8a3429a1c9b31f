package archive

import (
	"context"
	"fmt"

	"github.com/calvinalkan/docarchive/pkg/archive/delta"
)

// selectContentsDescLocked returns every Content row for documentID ordered
// by SeqID descending: index 0 is the verbatim latest revision.
func selectContentsDescLocked(ctx context.Context, c *conn, documentID string) ([]Content, error) {
	stmt, err := c.Prepare(ctx,
		"SELECT id, owner, document_id, seq_id, checksum, data FROM contents "+
			"WHERE document_id = :id ORDER BY seq_id DESC")
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	rs, err := stmt.Open(ctx, map[string]any{"id": documentID})
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var rows []Content
	for rs.Next() {
		rows = append(rows, contentMapper.scan(rs))
	}

	if err := rs.Err(); err != nil {
		return nil, wrapEngineErr("store.select_contents", err)
	}

	return rows, nil
}

// reconstructAtLocked rebuilds the bytes current as of HistoryEntry
// revision (0 meaning "latest"). Content rows only exist for the
// Created/Revision actions that actually changed bytes (a sparse chain
// over HistoryEntry.SeqID space), so the target is the content row with
// the greatest SeqID not exceeding revision: reconstruction starts at the
// verbatim latest row and applies each intervening patch in descending
// SeqID order until that row is reached.
func reconstructAtLocked(ctx context.Context, c *conn, documentID string, revision int64) ([]byte, string, error) {
	rows, err := selectContentsDescLocked(ctx, c, documentID)
	if err != nil {
		return nil, "", err
	}

	if len(rows) == 0 {
		return nil, "", newErr(KindIntegrity, "store.read", documentID, fmt.Errorf("no content for known document"))
	}

	buf := rows[0].Data
	checksum := rows[0].Checksum

	if revision <= 0 || revision >= rows[0].SeqID {
		return buf, checksum, nil
	}

	for i := 1; i < len(rows); i++ {
		row := rows[i]

		patched, err := delta.Apply(buf, row.Data)
		if err != nil {
			return nil, "", newErr(KindEngine, "store.read.apply_patch", documentID, err)
		}

		buf = patched
		checksum = row.Checksum

		if row.SeqID <= revision {
			break
		}
	}

	return buf, checksum, nil
}

// Read returns the document's bytes. revision == 0 means the latest
// revision; revision == R reconstructs the bytes as of HistoryEntry
// SeqID R.
func (s *Store) Read(ctx context.Context, id string, revision int64) ([]byte, error) {
	sh, err := s.pool.shardFor(id)
	if err != nil {
		return nil, err
	}

	var data []byte

	err = sh.withRead(func(c *conn) error {
		if _, err := loadHeaderUnchecked(ctx, c, id); err != nil {
			return err
		}

		bytes, _, err := reconstructAtLocked(ctx, c, id, revision)
		if err != nil {
			return err
		}

		data = bytes

		return nil
	})

	return data, err
}

// Revisions returns every HistoryEntry for id, in insertion (SeqID) order.
func (s *Store) Revisions(ctx context.Context, id string) ([]HistoryEntry, error) {
	sh, err := s.pool.shardFor(id)
	if err != nil {
		return nil, err
	}

	var entries []HistoryEntry

	err = sh.withRead(func(c *conn) error {
		stmt, err := c.Prepare(ctx,
			"SELECT id, owner, seq_id, created, action, actor, comment, source, target "+
				"FROM history_entries WHERE owner = :id ORDER BY seq_id ASC")
		if err != nil {
			return err
		}
		defer stmt.Close()

		rs, err := stmt.Open(ctx, map[string]any{"id": id})
		if err != nil {
			return err
		}
		defer rs.Close()

		for rs.Next() {
			entries = append(entries, historyMapper.scan(rs))
		}

		return rs.Err()
	})
	if err != nil {
		return nil, wrapEngineErr("store.revisions", err)
	}

	return entries, nil
}

// FoldersForPath reads root's content directly from the in-memory folder
// tree. The tree only ever stores paths, so there is no filename column to
// mix in.
func (s *Store) FoldersForPath(root string) ([]FolderEntry, error) {
	segs := SplitPath(root)

	var (
		self     FolderEntry
		children []FolderEntry
		ok       bool
	)

	if len(segs) == 0 {
		self, children = s.tree.rootEntries()
		ok = true
	} else {
		self, children, ok = s.tree.content(root)
	}

	if !ok {
		return nil, newErr(KindNotFound, "store.folders_for_path", "", fmt.Errorf("no such folder %q", root))
	}

	_ = self

	return children, nil
}

// FoldersOf returns the distinct folder paths id is assigned to, queried
// from its shard.
func (s *Store) FoldersOf(ctx context.Context, id string) ([]string, error) {
	sh, err := s.pool.shardFor(id)
	if err != nil {
		return nil, err
	}

	var paths []string

	err = sh.withRead(func(c *conn) error {
		ps, err := s.documentFolders(ctx, c, id)
		if err != nil {
			return err
		}

		paths = ps

		return nil
	})

	return paths, err
}

// FindByID returns id's header. revision == 0 returns the latest header; a
// revision below the latest sets Revision to that number after checking the
// content chain reaches it, but FileName, DisplayName, Keywords, Size,
// State and Locker keep their latest values.
func (s *Store) FindByID(ctx context.Context, id string, revision int64) (Document, error) {
	sh, err := s.pool.shardFor(id)
	if err != nil {
		return Document{}, err
	}

	var doc Document

	err = sh.withRead(func(c *conn) error {
		header, err := loadHeaderUnchecked(ctx, c, id)
		if err != nil {
			return err
		}

		if revision > 0 && revision < header.Revision {
			// reconstruct only to confirm the revision existed; Size is
			// not adjusted, and the byte payload itself is fetched
			// separately via Read.
			if _, _, err := reconstructAtLocked(ctx, c, id, revision); err != nil {
				return err
			}

			header.Revision = revision
		}

		paths, err := s.documentFolders(ctx, c, id)
		if err != nil {
			return err
		}

		if len(paths) > 0 {
			header.FolderPath = paths[0]
		}

		doc = header

		return nil
	})

	return doc, err
}

// selectAllFolders runs the "all folders" query that the store's
// initialization step fans out over every shard reader.
func selectAllFolders(ctx context.Context, c *conn) ([]folderCount, error) {
	stmt, err := c.Prepare(ctx, "SELECT path, COUNT(*) AS n FROM assignments GROUP BY path")
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	rs, err := stmt.Open(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var rows []folderCount
	for rs.Next() {
		rows = append(rows, folderCount{path: rs.GetText("path"), count: rs.GetInt("n")})
	}

	if err := rs.Err(); err != nil {
		return nil, wrapEngineErr("store.select_all_folders", err)
	}

	return rows, nil
}
