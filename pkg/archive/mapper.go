package archive

import (
	"context"
	"fmt"
	"strings"
)

// entityMapper declares, for one entity type, its table name, its column
// list (Id first), how to bind a domain value to named SQL parameters, and
// how to materialise a row back. It synthesises the four default
// statements every entity needs: insert (all columns), update (all but Id,
// WHERE Id = :id), delete (WHERE Id = :id), select (all columns, WHERE
// Id = :id).
type entityMapper[T any] struct {
	table   string
	columns []string // Id first
	bind    func(T) map[string]any
	scan    func(*ResultSet) T
}

func (m *entityMapper[T]) insertSQL() string {
	placeholders := make([]string, len(m.columns))
	for i, c := range m.columns {
		placeholders[i] = ":" + c
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		m.table, strings.Join(m.columns, ", "), strings.Join(placeholders, ", "))
}

func (m *entityMapper[T]) updateSQL() string {
	sets := make([]string, 0, len(m.columns)-1)
	for _, c := range m.columns[1:] {
		sets = append(sets, fmt.Sprintf("%s = :%s", c, c))
	}

	return fmt.Sprintf("UPDATE %s SET %s WHERE id = :id", m.table, strings.Join(sets, ", "))
}

func (m *entityMapper[T]) deleteSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE id = :id", m.table)
}

func (m *entityMapper[T]) selectSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE id = :id", strings.Join(m.columns, ", "), m.table)
}

var documentMapper = &entityMapper[Document]{
	table:   "documents",
	columns: []string{"id", "creator", "created", "file_name", "display_name", "state", "locker", "keywords", "size"},
	bind: func(d Document) map[string]any {
		return map[string]any{
			"id": d.ID, "creator": d.Creator, "created": ticksFromTime(d.Created),
			"file_name": d.FileName, "display_name": d.DisplayName, "state": int(d.State),
			"locker": d.Locker, "keywords": d.Keywords, "size": d.Size,
		}
	},
	scan: func(rs *ResultSet) Document {
		return Document{
			ID: rs.GetText("id"), Creator: rs.GetText("creator"), Created: timeFromTicks(rs.GetI64("created")),
			FileName: rs.GetText("file_name"), DisplayName: rs.GetText("display_name"),
			State: State(rs.GetInt("state")), Locker: rs.GetText("locker"),
			Keywords: rs.GetText("keywords"), Size: rs.GetI64("size"),
		}
	},
}

var historyMapper = &entityMapper[HistoryEntry]{
	table:   "history_entries",
	columns: []string{"id", "owner", "seq_id", "created", "action", "actor", "comment", "source", "target"},
	bind: func(h HistoryEntry) map[string]any {
		return map[string]any{
			"id": h.ID, "owner": h.Owner, "seq_id": h.SeqID, "created": ticksFromTime(h.Created),
			"action": h.Action, "actor": h.Actor, "comment": h.Comment, "source": h.Source, "target": h.Target,
		}
	},
	scan: func(rs *ResultSet) HistoryEntry {
		return HistoryEntry{
			ID: rs.GetText("id"), Owner: rs.GetText("owner"), SeqID: rs.GetI64("seq_id"),
			Created: timeFromTicks(rs.GetI64("created")), Action: rs.GetText("action"),
			Actor: rs.GetText("actor"), Comment: rs.GetText("comment"),
			Source: rs.GetText("source"), Target: rs.GetText("target"),
		}
	},
}

var assignmentMapper = &entityMapper[Assignment]{
	table:   "assignments",
	columns: []string{"id", "owner", "document_id", "seq_id", "assignment_type", "assignment_id", "path"},
	bind: func(a Assignment) map[string]any {
		return map[string]any{
			"id": a.ID, "owner": a.Owner, "document_id": a.DocumentID, "seq_id": a.SeqID,
			"assignment_type": a.AssignmentType, "assignment_id": a.AssignmentID, "path": strings.ToLower(a.Path),
		}
	},
	scan: func(rs *ResultSet) Assignment {
		return Assignment{
			ID: rs.GetText("id"), Owner: rs.GetText("owner"), DocumentID: rs.GetText("document_id"),
			SeqID: rs.GetI64("seq_id"), AssignmentType: rs.GetText("assignment_type"),
			AssignmentID: rs.GetText("assignment_id"), Path: rs.GetText("path"),
		}
	},
}

var contentMapper = &entityMapper[Content]{
	table:   "contents",
	columns: []string{"id", "owner", "document_id", "seq_id", "checksum", "data"},
	bind: func(c Content) map[string]any {
		return map[string]any{
			"id": c.ID, "owner": c.Owner, "document_id": c.DocumentID,
			"seq_id": c.SeqID, "checksum": c.Checksum, "data": c.Data,
		}
	},
	scan: func(rs *ResultSet) Content {
		return Content{
			ID: rs.GetText("id"), Owner: rs.GetText("owner"), DocumentID: rs.GetText("document_id"),
			SeqID: rs.GetI64("seq_id"), Checksum: rs.GetText("checksum"), Data: rs.GetBlob("data"),
		}
	},
}

var metaTagMapper = &entityMapper[MetaTag]{
	table:   "meta_tags",
	columns: []string{"id", "name"},
	bind: func(t MetaTag) map[string]any {
		return map[string]any{"id": t.ID, "name": t.Name}
	},
	scan: func(rs *ResultSet) MetaTag {
		return MetaTag{ID: rs.GetText("id"), Name: rs.GetText("name")}
	},
}

// op is one staged write, already rendered to SQL text and named
// parameters. batchQueue groups ops by SQL text so a single prepared
// statement serves every op sharing that text, which is effectively one
// cached mapper-statement pair per entity type per flush.
type op struct {
	sql    string
	params map[string]any
}

// batchQueue collects staged inserts, updates and deletes across entity
// types and flushes them inside a single transaction. Zero value is ready
// to use.
type batchQueue struct {
	ops []op
}

func insertOp[T any](m *entityMapper[T], v T) op {
	return op{sql: m.insertSQL(), params: m.bind(v)}
}

func updateOp[T any](m *entityMapper[T], v T) op {
	return op{sql: m.updateSQL(), params: m.bind(v)}
}

func deleteOp(m interface{ deleteSQL() string }, id string) op {
	return op{sql: m.deleteSQL(), params: map[string]any{"id": id}}
}

func (q *batchQueue) stage(ops ...op) {
	q.ops = append(q.ops, ops...)
}

// flush opens a transaction on c, prepares one statement per distinct SQL
// text (the mapper-statement cache), executes every staged op in order, and
// commits. Any failure rolls back.
func (q *batchQueue) flush(ctx context.Context, c *conn) error {
	if len(q.ops) == 0 {
		return nil
	}

	tx, err := c.Begin(ctx)
	if err != nil {
		return err
	}

	stmtCache := make(map[string]*Statement)

	defer func() {
		for _, s := range stmtCache {
			_ = s.Close()
		}
	}()

	for _, o := range q.ops {
		stmt, ok := stmtCache[o.sql]
		if !ok {
			stmt, err = tx.Prepare(ctx, o.sql)
			if err != nil {
				_ = tx.Rollback()

				return err
			}

			stmtCache[o.sql] = stmt
		}

		if _, err := stmt.Execute(ctx, o.params); err != nil {
			_ = tx.Rollback()

			return err
		}
	}

	return tx.Commit()
}
