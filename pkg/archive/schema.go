package archive

import (
	"context"
	"fmt"
)

// schemaStatements is the idempotent DDL applied to every shard writer on
// open: the document, history, content and assignment tables, their
// indexes, the meta-tag FTS virtual table, and the trigger that keeps it
// in sync with document deletion. Every foreign key defers its CASCADE
// check to commit time so a save can insert a Document, its HistoryEntry,
// Content and Assignment rows in any convenient order within one
// transaction.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id           TEXT PRIMARY KEY,
		creator      TEXT NOT NULL,
		created      INTEGER NOT NULL,
		file_name    TEXT NOT NULL,
		display_name TEXT NOT NULL,
		state        INTEGER NOT NULL,
		locker       TEXT NOT NULL DEFAULT '',
		keywords     TEXT NOT NULL DEFAULT '',
		size         INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS history_entries (
		id      TEXT PRIMARY KEY,
		owner   TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE DEFERRABLE INITIALLY DEFERRED,
		seq_id  INTEGER NOT NULL,
		created INTEGER NOT NULL,
		action  TEXT NOT NULL,
		actor   TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		source  TEXT NOT NULL DEFAULT '',
		target  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_history_owner_seq ON history_entries(owner, seq_id)`,

	`CREATE TABLE IF NOT EXISTS assignments (
		id              TEXT PRIMARY KEY,
		owner           TEXT NOT NULL REFERENCES history_entries(id) ON DELETE CASCADE DEFERRABLE INITIALLY DEFERRED,
		document_id     TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE DEFERRABLE INITIALLY DEFERRED,
		seq_id          INTEGER NOT NULL,
		assignment_type TEXT NOT NULL DEFAULT '',
		assignment_id   TEXT NOT NULL DEFAULT '',
		path            TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_document ON assignments(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_path ON assignments(path)`,

	`CREATE TABLE IF NOT EXISTS contents (
		id          TEXT PRIMARY KEY,
		owner       TEXT NOT NULL REFERENCES history_entries(id) ON DELETE CASCADE DEFERRABLE INITIALLY DEFERRED,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE DEFERRABLE INITIALLY DEFERRED,
		seq_id      INTEGER NOT NULL,
		checksum    TEXT NOT NULL,
		data        BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contents_document_seq ON contents(document_id, seq_id DESC)`,

	`CREATE TABLE IF NOT EXISTS meta_tags (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS meta_fts USING fts5(owner UNINDEXED, tags)`,

	`CREATE TRIGGER IF NOT EXISTS trg_meta_fts_cleanup AFTER DELETE ON documents BEGIN
		DELETE FROM meta_fts WHERE owner = old.id;
	END`,
}

// ensureSchema applies schemaStatements against a shard writer. Running it
// twice is a no-op: every statement is already idempotent ("create if
// missing"); there is no schema migration support.
func ensureSchema(ctx context.Context, c *conn) error {
	for i, stmt := range schemaStatements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return wrapEngineErr(fmt.Sprintf("schema.statement[%d]", i), err)
		}
	}

	return nil
}
