package archive_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/docarchive/pkg/archive"
)

func Test_Backup_Restore_RoundTripsDocumentBytes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dataDir := filepath.Join(t.TempDir(), "data")
	backupDir := filepath.Join(t.TempDir(), "backup")

	cfg := archive.Config{DataLocation: dataDir, Backends: 2}

	s, err := archive.Open(ctx, cfg)
	require.NoError(t, err)

	created, err := s.Save(ctx, archive.Document{FileName: "a.txt", FolderPath: "/d"}, []byte("hello"), "alice", "")
	require.NoError(t, err)

	require.NoError(t, s.Backup(ctx, backupDir))
	require.NoError(t, s.Close())

	require.NoError(t, archive.Restore(cfg, backupDir))

	reopened, err := archive.Open(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Read(ctx, created.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func Test_Restore_IntoInMemoryLocation_IsRejected(t *testing.T) {
	t.Parallel()

	err := archive.Restore(archive.Config{DataLocation: ":memory:"}, t.TempDir())
	assert.Error(t, err)
}

func Test_RebuildFulltext_SucceedsAgainstEmptyIndex(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	assert.NoError(t, s.RebuildFulltext(context.Background()))
}
