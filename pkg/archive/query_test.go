package archive_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/docarchive/pkg/archive"
)

func Test_Find_MatchesFolderAndFileNameCaseInsensitively(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, archive.Document{FileName: "Invoice.PDF", FolderPath: "/acct"}, []byte("v1"), "alice", "")
	require.NoError(t, err)

	got, err := s.Find(ctx, "/acct", "invoice.pdf")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Invoice.PDF", got[0].FileName)
}

func Test_FindTitle_MatchesDisplayNameCaseInsensitively(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, archive.Document{FileName: "a.pdf", DisplayName: "Quarterly Report", FolderPath: "/acct"}, []byte("v1"), "alice", "")
	require.NoError(t, err)

	got, err := s.FindTitle(ctx, "/acct", "quarterly report")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func Test_FindKeywords_MatchesAnyOfMultipleWords(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Save(ctx, archive.Document{FileName: "a.pdf", FolderPath: "/acct"}, []byte("v1"), "alice", "")
	require.NoError(t, err)
	require.NoError(t, s.AssignKeywords(ctx, created.ID, "alice", "invoice tax"))

	got, err := s.FindKeywords(ctx, []string{"tax", "nonexistent"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func Test_FindKeywords_WithNoWords_ReturnsNil(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.FindKeywords(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func Test_FindFilenames_MatchesSubstring(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, archive.Document{FileName: "report-2024.pdf", FolderPath: "/acct"}, []byte("v1"), "alice", "")
	require.NoError(t, err)

	got, err := s.FindFilenames(ctx, []string{"2024"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func Test_FindFilenameMatch_UsesRegexpOperator(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, archive.Document{FileName: "invoice-0042.pdf", FolderPath: "/acct"}, []byte("v1"), "alice", "")
	require.NoError(t, err)

	got, err := s.FindFilenameMatch(ctx, `^invoice-\d+\.pdf$`)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	none, err := s.FindFilenameMatch(ctx, `^nomatch$`)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func Test_FindDeleted_RespectsDepthBound(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	shallow, err := s.Save(ctx, archive.Document{FileName: "a.pdf", FolderPath: "/acct"}, []byte("v1"), "alice", "")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, shallow.ID, "alice"))

	deep, err := s.Save(ctx, archive.Document{FileName: "b.pdf", FolderPath: "/acct/2024/q1"}, []byte("v1"), "alice", "")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, deep.ID, "alice"))

	got, err := s.FindDeleted(ctx, "/acct", 0)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, d := range got {
		ids = append(ids, d.ID)
	}

	assert.Contains(t, ids, shallow.ID)
	assert.NotContains(t, ids, deep.ID, "depth 0 should exclude the deeper document")
}

func Test_FindDeleted_WithNegativeDepth_IsUnbounded(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	deep, err := s.Save(ctx, archive.Document{FileName: "b.pdf", FolderPath: "/acct/2024/q1"}, []byte("v1"), "alice", "")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, deep.ID, "alice"))

	got, err := s.FindDeleted(ctx, "/acct", -1)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, d := range got {
		ids = append(ids, d.ID)
	}

	assert.Contains(t, ids, deep.ID)
}

func Test_FindMetaData_MatchesOnPrefixOfEachKey(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Save(ctx, archive.Document{FileName: "a.pdf", FolderPath: "/acct"}, []byte("v1"), "alice", "")
	require.NoError(t, err)
	require.NoError(t, s.AssignMetaData(ctx, created.ID, "alice", "author=alice\x1estatus=final"))

	got, err := s.FindMetaData(ctx, "author=alice")
	require.NoError(t, err)
	assert.Contains(t, got, created.ID)
}

func Test_FindMetaData_WithEmptyQuery_ReturnsError(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.FindMetaData(ctx, "")
	assert.Error(t, err)
}
