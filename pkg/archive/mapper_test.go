package archive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_EntityMapper_InsertSQL_ListsAllColumns(t *testing.T) {
	t.Parallel()

	got := metaTagMapper.insertSQL()
	assert.Equal(t, "INSERT INTO meta_tags (id, name) VALUES (:id, :name)", got)
}

func Test_EntityMapper_UpdateSQL_OmitsIDFromSetClause(t *testing.T) {
	t.Parallel()

	got := metaTagMapper.updateSQL()
	assert.Equal(t, "UPDATE meta_tags SET name = :name WHERE id = :id", got)
	assert.NotContains(t, got, "id = :id,")
}

func Test_EntityMapper_DeleteSQL_FiltersByID(t *testing.T) {
	t.Parallel()

	got := metaTagMapper.deleteSQL()
	assert.Equal(t, "DELETE FROM meta_tags WHERE id = :id", got)
}

func Test_EntityMapper_SelectSQL_FiltersByID(t *testing.T) {
	t.Parallel()

	got := metaTagMapper.selectSQL()
	assert.Equal(t, "SELECT id, name FROM meta_tags WHERE id = :id", got)
}

func Test_InsertOp_UpdateOp_DeleteOp_BindParamsFromMapper(t *testing.T) {
	t.Parallel()

	tag := MetaTag{ID: "t1", Name: "author"}

	insert := insertOp(metaTagMapper, tag)
	assert.Equal(t, metaTagMapper.insertSQL(), insert.sql)
	assert.Equal(t, "author", insert.params["name"])

	update := updateOp(metaTagMapper, tag)
	assert.Equal(t, metaTagMapper.updateSQL(), update.sql)

	del := deleteOp(metaTagMapper, "t1")
	assert.Equal(t, metaTagMapper.deleteSQL(), del.sql)
	assert.Equal(t, "t1", del.params["id"])
}

func Test_BatchQueue_Flush_NoOpsIsNoop(t *testing.T) {
	t.Parallel()

	var q batchQueue

	err := q.flush(context.Background(), nil)
	require.NoError(t, err, "flushing an empty queue must not touch the connection")
}

func Test_BatchQueue_Flush_InsertsAcrossEntityTypesInOneTransaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	c, err := openConn(ctx, modeOpenOrCreate, ":memory:", false, pragmaConfig{foreignKeys: true})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, ensureSchema(ctx, c))

	doc := Document{ID: "doc1", Creator: "alice", Created: time.Now(), FileName: "a.txt", DisplayName: "A"}
	tag := MetaTag{ID: "tag1", Name: "author"}

	var q batchQueue
	q.stage(insertOp(documentMapper, doc), insertOp(metaTagMapper, tag))

	require.NoError(t, q.flush(ctx, c))

	stmt, err := c.Prepare(ctx, documentMapper.selectSQL())
	require.NoError(t, err)
	defer stmt.Close()

	rs, err := stmt.Open(ctx, map[string]any{"id": "doc1"})
	require.NoError(t, err)
	defer rs.Close()

	require.True(t, rs.Next(), "inserted document row should be selectable")
	assert.Equal(t, "alice", rs.GetText("creator"))
	require.NoError(t, rs.Err())
}

func Test_BatchQueue_Flush_RollsBackOnFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	c, err := openConn(ctx, modeOpenOrCreate, ":memory:", false, pragmaConfig{foreignKeys: true})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, ensureSchema(ctx, c))

	doc := Document{ID: "doc1", Creator: "alice", Created: time.Now(), FileName: "a.txt", DisplayName: "A"}

	var q batchQueue
	q.stage(insertOp(documentMapper, doc), insertOp(documentMapper, doc)) // duplicate id -> PK violation

	require.Error(t, q.flush(ctx, c))

	stmt, err := c.Prepare(ctx, documentMapper.selectSQL())
	require.NoError(t, err)
	defer stmt.Close()

	rs, err := stmt.Open(ctx, map[string]any{"id": "doc1"})
	require.NoError(t, err)
	defer rs.Close()

	assert.False(t, rs.Next(), "rolled back transaction should leave no row behind")
}
