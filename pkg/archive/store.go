package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/calvinalkan/docarchive/pkg/archive/delta"
)

// directoryClassFileName is the reserved FileName that marks a directory-
// class placeholder rather than a regular document. Saves and deletes of a
// row carrying this name update the folder tree's uncounted References
// instead of its counted Documents.
const directoryClassFileName = ".folder"

func isDirectoryClass(doc Document) bool {
	return doc.FileName == directoryClassFileName
}

// rsSeparator is the ASCII Record Separator (0x1E) joining meta-tag
// key=value tokens.
const rsSeparator = "\x1e"

// Store is the document archive orchestrator sitting on top of the
// storage engine, binary delta codec, persistence mapper, shard pool and
// virtual folder tree. It exclusively owns the folder tree and the
// periodic optimizer.
type Store struct {
	cfg       Config
	pool      *shardPool
	tree      *folderTree
	optimizer *optimizer
	fts       *fulltextWorker
}

// Open constructs a Store: it creates the data directory if needed,
// constructs the shard pool, builds the virtual folder tree by fan-out
// over every shard reader, and starts the periodic optimizer. It blocks
// until the folder-tree build completes.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	pool, err := openShardPool(ctx, cfg.DataLocation, cfg.Backends, cfg)
	if err != nil {
		return nil, err
	}

	tree := newFolderTree()

	entries, err := fanOut(pool, func(c *conn) ([]folderCount, error) {
		return selectAllFolders(ctx, c)
	})
	if err != nil {
		_ = pool.close()

		return nil, err
	}

	merged := mergeFolderCounts(entries)
	tree.load(merged)

	s := &Store{
		cfg:       cfg,
		pool:      pool,
		tree:      tree,
		optimizer: startOptimizer(pool, cfg.OptimizeInterval),
	}
	s.fts = startFulltextWorker(&sqliteFulltextSink{pool: pool})

	return s, nil
}

// Close stops the Periodic Optimizer, stops the full-text worker without
// draining its queue and closes every shard's connections.
func (s *Store) Close() error {
	s.optimizer.stop()
	s.fts.stop()

	return s.pool.close()
}

func mergeFolderCounts(rows []folderCount) []folderCount {
	totals := make(map[string]int, len(rows))

	for _, r := range rows {
		totals[r.path] += r.count
	}

	out := make([]folderCount, 0, len(totals))
	for path, count := range totals {
		out = append(out, folderCount{path: path, count: count})
	}

	return out
}

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

// --- header loading -------------------------------------------------------

// loadHeaderUnchecked reads a Document row with no state assertion, used
// internally by Delete/Undelete so they can observe a currently-deleted or
// currently-live row without a checked helper rejecting it first.
func loadHeaderUnchecked(ctx context.Context, c *conn, id string) (Document, error) {
	stmt, err := c.Prepare(ctx, documentMapper.selectSQL())
	if err != nil {
		return Document{}, err
	}
	defer stmt.Close()

	rs, err := stmt.Open(ctx, map[string]any{"id": id})
	if err != nil {
		return Document{}, err
	}
	defer rs.Close()

	if !rs.Next() {
		if err := rs.Err(); err != nil {
			return Document{}, wrapEngineErr("store.load_header", err)
		}

		return Document{}, newErr(KindNotFound, "store.load_header", id, nil)
	}

	doc := documentMapper.scan(rs)

	seq, err := latestSeqIDLocked(ctx, c, id)
	if err != nil {
		return Document{}, err
	}

	doc.Revision = seq

	return doc, nil
}

// loadHeader is the checked counterpart: it additionally requires the
// document be live, matching every mutating operation's default
// expectation except Delete/Undelete.
func loadHeader(ctx context.Context, c *conn, op, id string) (Document, error) {
	doc, err := loadHeaderUnchecked(ctx, c, id)
	if err != nil {
		return Document{}, err
	}

	if doc.State != StateLive {
		return Document{}, newErr(KindLock, op, id, fmt.Errorf("document is deleted"))
	}

	return doc, nil
}

func assertUnlockedOrOwnedBy(doc Document, user string) error {
	if doc.Locker != "" && doc.Locker != user {
		return newErr(KindLock, "store.lock_check", doc.ID, fmt.Errorf("locked by %q", doc.Locker))
	}

	return nil
}

func latestSeqIDLocked(ctx context.Context, c *conn, documentID string) (int64, error) {
	stmt, err := c.Prepare(ctx, "SELECT COALESCE(MAX(seq_id), 0) FROM history_entries WHERE owner = :owner")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	return stmt.ExecuteScalarInt(ctx, map[string]any{"owner": documentID})
}

// --- Save ------------------------------------------------------------------

// Save creates a new document when doc.ID is empty, or applies rename,
// retitle, keyword and/or revision changes to an existing one otherwise.
// data == nil means "no new bytes supplied"; pass an empty, non-nil slice
// to explicitly save a zero-length revision.
func (s *Store) Save(ctx context.Context, doc Document, data []byte, user, comment string) (Document, error) {
	if err := s.assertNotViewonly("store.save", user); err != nil {
		return Document{}, err
	}

	if doc.ID == "" {
		return s.insertDocument(ctx, doc, data, user, comment)
	}

	return s.updateDocument(ctx, doc, data, user, comment)
}

func (s *Store) insertDocument(ctx context.Context, doc Document, data []byte, user, comment string) (Document, error) {
	doc.ID = NewID()
	doc.Creator = user
	doc.Created = time.Now()
	doc.Size = int64(len(data))
	doc.State = StateLive
	doc.Locker = ""

	sh, err := s.pool.shardFor(doc.ID)
	if err != nil {
		return Document{}, err
	}

	histID := NewID()
	path := strings.ToLower(doc.FolderPath)

	err = sh.withWrite(func(c *conn) error {
		q := &batchQueue{}
		q.stage(insertOp(documentMapper, doc))
		q.stage(insertOp(historyMapper, HistoryEntry{
			ID: histID, Owner: doc.ID, SeqID: 1, Created: doc.Created,
			Action: ActionCreated, Actor: user, Comment: comment,
		}))
		q.stage(insertOp(contentMapper, Content{
			ID: NewID(), Owner: histID, DocumentID: doc.ID, SeqID: 1,
			Checksum: checksumOf(data), Data: data,
		}))
		q.stage(insertOp(assignmentMapper, Assignment{
			ID: NewID(), Owner: histID, DocumentID: doc.ID, SeqID: 1, Path: path,
		}))

		return q.flush(ctx, c)
	})
	if err != nil {
		return Document{}, err
	}

	if isDirectoryClass(doc) {
		s.tree.addUncounted(path)
	} else {
		s.tree.add(path)
	}

	doc.FolderPath = path
	doc.Revision = 1

	return doc, nil
}

func (s *Store) updateDocument(ctx context.Context, doc Document, data []byte, user, comment string) (Document, error) {
	sh, err := s.pool.shardFor(doc.ID)
	if err != nil {
		return Document{}, err
	}

	var result Document

	err = sh.withWrite(func(c *conn) error {
		current, err := loadHeader(ctx, c, "store.save", doc.ID)
		if err != nil {
			return err
		}

		if err := assertUnlockedOrOwnedBy(current, user); err != nil {
			return err
		}

		var actions []string

		updated := current

		if doc.FileName != "" && doc.FileName != current.FileName {
			actions = append(actions, ActionRenamed)
			updated.FileName = doc.FileName
		}

		if doc.DisplayName != "" && doc.DisplayName != current.DisplayName {
			actions = append(actions, ActionRetitled)
			updated.DisplayName = doc.DisplayName
		}

		if doc.Keywords != current.Keywords {
			actions = append(actions, ActionKeywords)
			updated.Keywords = doc.Keywords
		}

		if data != nil {
			actions = append(actions, ActionRevision)
			updated.Size = int64(len(data))
		}

		if len(actions) == 0 {
			result = current

			return nil
		}

		newSeq := current.Revision + 1
		histID := NewID()

		q := &batchQueue{}
		q.stage(updateOp(documentMapper, updated))
		q.stage(insertOp(historyMapper, HistoryEntry{
			ID: histID, Owner: doc.ID, SeqID: newSeq, Created: time.Now(),
			Action: strings.Join(actions, ";"), Actor: user, Comment: comment,
		}))

		if data != nil {
			latest, err := latestContentLocked(ctx, c, doc.ID)
			if err != nil {
				return err
			}

			patch, err := delta.Diff(data, latest.Data)
			if err != nil {
				return newErr(KindEngine, "store.save.diff", doc.ID, err)
			}

			q.stage(updateOp(contentMapper, Content{
				ID: latest.ID, Owner: latest.Owner, DocumentID: doc.ID,
				SeqID: latest.SeqID, Checksum: latest.Checksum, Data: patch,
			}))
			q.stage(insertOp(contentMapper, Content{
				ID: NewID(), Owner: histID, DocumentID: doc.ID, SeqID: newSeq,
				Checksum: checksumOf(data), Data: data,
			}))
		}

		if err := q.flush(ctx, c); err != nil {
			return err
		}

		updated.Revision = newSeq
		result = updated

		return nil
	})
	if err != nil {
		return Document{}, err
	}

	return result, nil
}

func latestContentLocked(ctx context.Context, c *conn, documentID string) (Content, error) {
	stmt, err := c.Prepare(ctx,
		"SELECT id, owner, document_id, seq_id, checksum, data FROM contents WHERE document_id = :id ORDER BY seq_id DESC LIMIT 1")
	if err != nil {
		return Content{}, err
	}
	defer stmt.Close()

	rs, err := stmt.Open(ctx, map[string]any{"id": documentID})
	if err != nil {
		return Content{}, err
	}
	defer rs.Close()

	if !rs.Next() {
		if err := rs.Err(); err != nil {
			return Content{}, wrapEngineErr("store.latest_content", err)
		}

		return Content{}, newErr(KindIntegrity, "store.latest_content", documentID, fmt.Errorf("no content for known document"))
	}

	return contentMapper.scan(rs), nil
}

// --- Lock / Unlock -----------------------------------------------------------

func (s *Store) Lock(ctx context.Context, id, user string) error {
	if err := s.assertNotViewonly("store.lock", user); err != nil {
		return err
	}

	sh, err := s.pool.shardFor(id)
	if err != nil {
		return err
	}

	return sh.withWrite(func(c *conn) error {
		doc, err := loadHeader(ctx, c, "store.lock", id)
		if err != nil {
			return err
		}

		if doc.Locker != "" && doc.Locker != user {
			return newErr(KindLock, "store.lock", id, fmt.Errorf("locked by %q", doc.Locker))
		}

		doc.Locker = user
		q := &batchQueue{}
		q.stage(updateOp(documentMapper, doc))

		return q.flush(ctx, c)
	})
}

func (s *Store) Unlock(ctx context.Context, id, user string) error {
	if err := s.assertNotViewonly("store.unlock", user); err != nil {
		return err
	}

	sh, err := s.pool.shardFor(id)
	if err != nil {
		return err
	}

	return sh.withWrite(func(c *conn) error {
		doc, err := loadHeader(ctx, c, "store.unlock", id)
		if err != nil {
			return err
		}

		doc.Locker = ""
		q := &batchQueue{}
		q.stage(updateOp(documentMapper, doc))

		return q.flush(ctx, c)
	})
}

// --- Move / Link / Copy / Associate -----------------------------------------

func (s *Store) loadAssignmentAtPathLocked(ctx context.Context, c *conn, documentID, path string) (Assignment, error) {
	stmt, err := c.Prepare(ctx,
		"SELECT id, owner, document_id, seq_id, assignment_type, assignment_id, path FROM assignments "+
			"WHERE document_id = :doc AND path = :path ORDER BY seq_id DESC LIMIT 1")
	if err != nil {
		return Assignment{}, err
	}
	defer stmt.Close()

	rs, err := stmt.Open(ctx, map[string]any{"doc": documentID, "path": strings.ToLower(path)})
	if err != nil {
		return Assignment{}, err
	}
	defer rs.Close()

	if !rs.Next() {
		if err := rs.Err(); err != nil {
			return Assignment{}, wrapEngineErr("store.load_assignment", err)
		}

		return Assignment{}, newErr(KindNotFound, "store.load_assignment", documentID, fmt.Errorf("no assignment at %q", path))
	}

	return assignmentMapper.scan(rs), nil
}

// Move rewrites the assignment at old to new, appending a Moved history
// entry.
func (s *Store) Move(ctx context.Context, id, oldPath, newPath, user string) error {
	if err := s.assertNotViewonly("store.move", user); err != nil {
		return err
	}

	sh, err := s.pool.shardFor(id)
	if err != nil {
		return err
	}

	var directoryClass bool

	err = sh.withWrite(func(c *conn) error {
		doc, err := loadHeader(ctx, c, "store.move", id)
		if err != nil {
			return err
		}

		directoryClass = isDirectoryClass(doc)

		if err := assertUnlockedOrOwnedBy(doc, user); err != nil {
			return err
		}

		assignment, err := s.loadAssignmentAtPathLocked(ctx, c, id, oldPath)
		if err != nil {
			return err
		}

		newSeq, err := latestSeqIDLocked(ctx, c, id)
		if err != nil {
			return err
		}
		newSeq++

		histID := NewID()
		assignment.Path = strings.ToLower(newPath)

		q := &batchQueue{}
		q.stage(insertOp(historyMapper, HistoryEntry{
			ID: histID, Owner: id, SeqID: newSeq, Created: time.Now(),
			Action: ActionMoved, Actor: user, Source: oldPath, Target: newPath,
		}))
		q.stage(updateOp(assignmentMapper, assignment))

		return q.flush(ctx, c)
	})
	if err != nil {
		return err
	}

	if directoryClass {
		s.tree.addUncounted(newPath)
		s.tree.removeUncounted(oldPath)
	} else {
		s.tree.add(newPath)
		s.tree.remove(oldPath)
	}

	return nil
}

// Link inserts a new Assignment at tgt carrying src's associated-item and
// type, without duplicating the document.
func (s *Store) Link(ctx context.Context, id, src, tgt, user string) error {
	if err := s.assertNotViewonly("store.link", user); err != nil {
		return err
	}

	sh, err := s.pool.shardFor(id)
	if err != nil {
		return err
	}

	var directoryClass bool

	err = sh.withWrite(func(c *conn) error {
		doc, err := loadHeader(ctx, c, "store.link", id)
		if err != nil {
			return err
		}

		if err := assertUnlockedOrOwnedBy(doc, user); err != nil {
			return err
		}

		directoryClass = isDirectoryClass(doc)

		srcAssignment, err := s.loadAssignmentAtPathLocked(ctx, c, id, src)
		if err != nil {
			return err
		}

		newSeq, err := latestSeqIDLocked(ctx, c, id)
		if err != nil {
			return err
		}
		newSeq++

		histID := NewID()

		q := &batchQueue{}
		q.stage(insertOp(historyMapper, HistoryEntry{
			ID: histID, Owner: id, SeqID: newSeq, Created: time.Now(),
			Action: ActionLinked, Actor: user, Source: src, Target: tgt,
		}))
		q.stage(insertOp(assignmentMapper, Assignment{
			ID: NewID(), Owner: histID, DocumentID: id, SeqID: newSeq,
			AssignmentType: srcAssignment.AssignmentType, AssignmentID: srcAssignment.AssignmentID,
			Path: strings.ToLower(tgt),
		}))

		return q.flush(ctx, c)
	})
	if err != nil {
		return err
	}

	if directoryClass {
		s.tree.addUncounted(tgt)
	} else {
		s.tree.add(tgt)
	}

	return nil
}

// Copy clones id's latest content into a new document at tgt. src is
// accepted for interface symmetry with Move/Link but is not used to
// select which assignment's content to clone: the clone always comes from
// the latest content.
func (s *Store) Copy(ctx context.Context, id, src, tgt, user string) (Document, error) {
	if err := s.assertNotViewonly("store.copy", user); err != nil {
		return Document{}, err
	}

	_ = src

	sh, err := s.pool.shardFor(id)
	if err != nil {
		return Document{}, err
	}

	var (
		source Document
		data   []byte
	)

	err = sh.withWrite(func(c *conn) error {
		doc, err := loadHeader(ctx, c, "store.copy", id)
		if err != nil {
			return err
		}

		source = doc

		bytes, _, err := reconstructAtLocked(ctx, c, id, 0)
		if err != nil {
			return err
		}

		data = bytes

		return nil
	})
	if err != nil {
		return Document{}, err
	}

	clone := Document{
		FileName:    source.FileName,
		DisplayName: source.DisplayName,
		Keywords:    source.Keywords,
		FolderPath:  tgt,
	}

	return s.insertDocument(ctx, clone, data, user, "")
}

// Associate finds the assignment at path and sets its associated item and
// type.
func (s *Store) Associate(ctx context.Context, id, path, item, itemType, user string) error {
	if err := s.assertNotViewonly("store.associate", user); err != nil {
		return err
	}

	sh, err := s.pool.shardFor(id)
	if err != nil {
		return err
	}

	return sh.withWrite(func(c *conn) error {
		doc, err := loadHeader(ctx, c, "store.associate", id)
		if err != nil {
			return err
		}

		if err := assertUnlockedOrOwnedBy(doc, user); err != nil {
			return err
		}

		assignment, err := s.loadAssignmentAtPathLocked(ctx, c, id, path)
		if err != nil {
			return err
		}

		assignment.AssignmentID = item
		assignment.AssignmentType = itemType

		q := &batchQueue{}
		q.stage(updateOp(assignmentMapper, assignment))

		return q.flush(ctx, c)
	})
}

// --- Delete / Undelete / Destroy / Rename -----------------------------------

func (s *Store) documentFolders(ctx context.Context, c *conn, id string) ([]string, error) {
	stmt, err := c.Prepare(ctx, "SELECT DISTINCT path FROM assignments WHERE document_id = :id")
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	rs, err := stmt.Open(ctx, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var paths []string

	for rs.Next() {
		paths = append(paths, rs.GetText("path"))
	}

	if err := rs.Err(); err != nil {
		return nil, wrapEngineErr("store.document_folders", err)
	}

	return paths, nil
}

// Delete soft-deletes id: requires it not already deleted and that user
// owns any lock held on it.
func (s *Store) Delete(ctx context.Context, id, user string) error {
	if err := s.assertNotViewonly("store.delete", user); err != nil {
		return err
	}

	sh, err := s.pool.shardFor(id)
	if err != nil {
		return err
	}

	var (
		directoryClass bool
		folders        []string
	)

	err = sh.withWrite(func(c *conn) error {
		doc, err := loadHeaderUnchecked(ctx, c, id)
		if err != nil {
			return err
		}

		if doc.State != StateLive {
			return newErr(KindLock, "store.delete", id, fmt.Errorf("already deleted"))
		}

		if err := assertUnlockedOrOwnedBy(doc, user); err != nil {
			return err
		}

		directoryClass = isDirectoryClass(doc)

		paths, err := s.documentFolders(ctx, c, id)
		if err != nil {
			return err
		}

		folders = paths
		doc.State = StateDeleted

		newSeq := doc.Revision + 1

		q := &batchQueue{}
		q.stage(updateOp(documentMapper, doc))
		q.stage(insertOp(historyMapper, HistoryEntry{
			ID: NewID(), Owner: id, SeqID: newSeq, Created: time.Now(),
			Action: ActionDeleted, Actor: user,
		}))

		return q.flush(ctx, c)
	})
	if err != nil {
		return err
	}

	for _, p := range folders {
		if directoryClass {
			s.tree.removeUncounted(p)
		} else {
			s.tree.remove(p)
		}
	}

	return nil
}

// Undelete reverses a soft delete: requires the document currently be
// deleted.
func (s *Store) Undelete(ctx context.Context, id, user string) error {
	if err := s.assertNotViewonly("store.undelete", user); err != nil {
		return err
	}

	sh, err := s.pool.shardFor(id)
	if err != nil {
		return err
	}

	var (
		directoryClass bool
		folders        []string
	)

	err = sh.withWrite(func(c *conn) error {
		doc, err := loadHeaderUnchecked(ctx, c, id)
		if err != nil {
			return err
		}

		if doc.State != StateDeleted {
			return newErr(KindLock, "store.undelete", id, fmt.Errorf("not deleted"))
		}

		if err := assertUnlockedOrOwnedBy(doc, user); err != nil {
			return err
		}

		directoryClass = isDirectoryClass(doc)

		paths, err := s.documentFolders(ctx, c, id)
		if err != nil {
			return err
		}

		folders = paths
		doc.State = StateLive

		newSeq := doc.Revision + 1

		q := &batchQueue{}
		q.stage(updateOp(documentMapper, doc))
		q.stage(insertOp(historyMapper, HistoryEntry{
			ID: NewID(), Owner: id, SeqID: newSeq, Created: time.Now(),
			Action: ActionRecovered, Actor: user,
		}))

		return q.flush(ctx, c)
	})
	if err != nil {
		return err
	}

	for _, p := range folders {
		if directoryClass {
			s.tree.addUncounted(p)
		} else {
			s.tree.add(p)
		}
	}

	return nil
}

// UndeleteMany undeletes each of ids in turn, stopping at the first one
// that fails. It is a convenience wrapper around Undelete for callers
// restoring a batch of documents from the recycle bin in one request.
func (s *Store) UndeleteMany(ctx context.Context, ids []string, user string) error {
	for _, id := range ids {
		if err := s.Undelete(ctx, id, user); err != nil {
			return err
		}
	}

	return nil
}

// Destroy hard-deletes the Document row; deferred foreign keys cascade to
// its history, content and assignment rows.
func (s *Store) Destroy(ctx context.Context, id, user string) error {
	if err := s.assertNotViewonly("store.destroy", user); err != nil {
		return err
	}

	sh, err := s.pool.shardFor(id)
	if err != nil {
		return err
	}

	var (
		directoryClass bool
		folders        []string
	)

	err = sh.withWrite(func(c *conn) error {
		doc, err := loadHeaderUnchecked(ctx, c, id)
		if err != nil {
			return err
		}

		if err := assertUnlockedOrOwnedBy(doc, user); err != nil {
			return err
		}

		directoryClass = isDirectoryClass(doc)

		paths, err := s.documentFolders(ctx, c, id)
		if err != nil {
			return err
		}

		folders = paths

		stmt, err := c.Prepare(ctx, documentMapper.deleteSQL())
		if err != nil {
			return err
		}
		defer stmt.Close()

		_, err = stmt.Execute(ctx, map[string]any{"id": id})

		return err
	})
	if err != nil {
		return err
	}

	for _, p := range folders {
		if directoryClass {
			s.tree.removeUncounted(p)
		} else {
			s.tree.remove(p)
		}
	}

	return nil
}

// Rename updates DisplayName and appends a Retitled history entry.
func (s *Store) Rename(ctx context.Context, id, user, display string) error {
	if err := s.assertNotViewonly("store.rename", user); err != nil {
		return err
	}

	sh, err := s.pool.shardFor(id)
	if err != nil {
		return err
	}

	return sh.withWrite(func(c *conn) error {
		doc, err := loadHeader(ctx, c, "store.rename", id)
		if err != nil {
			return err
		}

		if err := assertUnlockedOrOwnedBy(doc, user); err != nil {
			return err
		}

		doc.DisplayName = display
		newSeq := doc.Revision + 1

		q := &batchQueue{}
		q.stage(updateOp(documentMapper, doc))
		q.stage(insertOp(historyMapper, HistoryEntry{
			ID: NewID(), Owner: id, SeqID: newSeq, Created: time.Now(),
			Action: ActionRetitled, Actor: user,
		}))

		return q.flush(ctx, c)
	})
}

// --- Keywords / meta-tags ----------------------------------------------------

// AssignKeywords overwrites Keywords with the given free-text string.
func (s *Store) AssignKeywords(ctx context.Context, id, user, keywords string) error {
	if err := s.assertNotViewonly("store.assign_keywords", user); err != nil {
		return err
	}

	sh, err := s.pool.shardFor(id)
	if err != nil {
		return err
	}

	return sh.withWrite(func(c *conn) error {
		doc, err := loadHeader(ctx, c, "store.assign_keywords", id)
		if err != nil {
			return err
		}

		if err := assertUnlockedOrOwnedBy(doc, user); err != nil {
			return err
		}

		doc.Keywords = keywords
		newSeq := doc.Revision + 1

		q := &batchQueue{}
		q.stage(updateOp(documentMapper, doc))
		q.stage(insertOp(historyMapper, HistoryEntry{
			ID: NewID(), Owner: id, SeqID: newSeq, Created: time.Now(),
			Action: ActionKeywords, Actor: user,
		}))

		return q.flush(ctx, c)
	})
}

// AssignMetaData registers tags (RS-separated key=value tokens) against
// id: each key is registered in the shard's global meta-tag set, the tokens
// are appended to id's existing tags, and the merged string is queued for
// the full-text sink.
func (s *Store) AssignMetaData(ctx context.Context, id, user, tags string) error {
	return s.writeMetaData(ctx, id, user, tags, false)
}

// ReplaceMetaData replaces id's meta-tag associations wholesale; an empty
// tags string clears them.
func (s *Store) ReplaceMetaData(ctx context.Context, id, user, tags string) error {
	return s.writeMetaData(ctx, id, user, tags, true)
}

func (s *Store) writeMetaData(ctx context.Context, id, user, tags string, replace bool) error {
	if err := s.assertNotViewonly("store.meta_data", user); err != nil {
		return err
	}

	sh, err := s.pool.shardFor(id)
	if err != nil {
		return err
	}

	var final string

	err = sh.withWrite(func(c *conn) error {
		doc, err := loadHeader(ctx, c, "store.meta_data", id)
		if err != nil {
			return err
		}

		if err := assertUnlockedOrOwnedBy(doc, user); err != nil {
			return err
		}

		if err := registerMetaTagKeysLocked(ctx, c, tags); err != nil {
			return err
		}

		if replace {
			final = tags

			return upsertMetaFTSLocked(ctx, c, id, tags)
		}

		existing, err := currentMetaTagsLocked(ctx, c, id)
		if err != nil {
			return err
		}

		final = mergeMetaTags(existing, tags)

		return upsertMetaFTSLocked(ctx, c, id, final)
	})
	if err != nil {
		return err
	}

	s.fts.enqueue(fulltextJob{documentID: id, tags: final})

	return nil
}

func mergeMetaTags(existing, added string) string {
	if existing == "" {
		return added
	}

	if added == "" {
		return existing
	}

	return existing + rsSeparator + added
}

func currentMetaTagsLocked(ctx context.Context, c *conn, id string) (string, error) {
	stmt, err := c.Prepare(ctx, "SELECT tags FROM meta_fts WHERE owner = :owner")
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	rs, err := stmt.Open(ctx, map[string]any{"owner": id})
	if err != nil {
		return "", err
	}
	defer rs.Close()

	if !rs.Next() {
		return "", rs.Err()
	}

	return rs.GetText("tags"), nil
}

func upsertMetaFTSLocked(ctx context.Context, c *conn, id, tags string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM meta_fts WHERE owner = :owner",
		params(map[string]any{"owner": id})...); err != nil {
		return wrapEngineErr("store.meta_fts.delete", err)
	}

	if tags == "" {
		return nil
	}

	if _, err := c.db.ExecContext(ctx, "INSERT INTO meta_fts (owner, tags) VALUES (:owner, :tags)",
		params(map[string]any{"owner": id, "tags": tags})...); err != nil {
		return wrapEngineErr("store.meta_fts.insert", err)
	}

	return nil
}

func registerMetaTagKeysLocked(ctx context.Context, c *conn, tags string) error {
	if tags == "" {
		return nil
	}

	for _, token := range strings.Split(tags, rsSeparator) {
		key, _, ok := strings.Cut(token, "=")
		if !ok || key == "" {
			continue
		}

		if _, err := c.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO meta_tags (id, name) VALUES (:id, :name)",
			params(map[string]any{"id": NewID(), "name": key})...); err != nil {
			return wrapEngineErr("store.meta_tags.register", err)
		}
	}

	return nil
}

// ListMetaTags returns every registered meta-tag key across every shard.
func (s *Store) ListMetaTags(ctx context.Context) ([]string, error) {
	rows, err := fanOut(s.pool, func(c *conn) ([]string, error) {
		stmt, err := c.Prepare(ctx, "SELECT name FROM meta_tags")
		if err != nil {
			return nil, err
		}
		defer stmt.Close()

		rs, err := stmt.Open(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer rs.Close()

		var names []string
		for rs.Next() {
			names = append(names, rs.GetText("name"))
		}

		return names, rs.Err()
	})
	if err != nil {
		return nil, err
	}

	return dedupeStrings(rows), nil
}

// ListMetaTagsOf returns the meta-tag keys currently registered against id.
func (s *Store) ListMetaTagsOf(ctx context.Context, id string) ([]string, error) {
	sh, err := s.pool.shardFor(id)
	if err != nil {
		return nil, err
	}

	var names []string

	err = sh.withRead(func(c *conn) error {
		tags, err := currentMetaTagsLocked(ctx, c, id)
		if err != nil {
			return err
		}

		for _, token := range strings.Split(tags, rsSeparator) {
			key, _, ok := strings.Cut(token, "=")
			if ok && key != "" {
				names = append(names, key)
			}
		}

		return nil
	})

	return names, err
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))

	for _, s := range in {
		if !seen[s] {
			seen[s] = true

			out = append(out, s)
		}
	}

	return out
}

// Stats reports, per shard, the live and total document counts —
// operational surface for monitoring and backup tooling.
type Stats struct {
	Shard     int
	LiveDocs  int64
	TotalDocs int64
}

func (s *Store) Stats(ctx context.Context) ([]Stats, error) {
	out := make([]Stats, len(s.pool.all()))

	for i, sh := range s.pool.all() {
		i, sh := i, sh

		err := sh.withRead(func(c *conn) error {
			total, err := scalarInt(ctx, c, "SELECT COUNT(*) FROM documents")
			if err != nil {
				return err
			}

			live, err := scalarInt(ctx, c, "SELECT COUNT(*) FROM documents WHERE state = 0")
			if err != nil {
				return err
			}

			out[i] = Stats{Shard: sh.index, LiveDocs: live, TotalDocs: total}

			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func scalarInt(ctx context.Context, c *conn, query string) (int64, error) {
	row := c.db.QueryRowContext(ctx, query)

	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, wrapEngineErr("store.stats", err)
	}

	return n, nil
}
