package archive_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/docarchive/pkg/archive"
)

func Test_NewID_ReturnsDistinctCanonicalUUIDs(t *testing.T) {
	t.Parallel()

	a := archive.NewID()
	b := archive.NewID()

	assert.Len(t, a, 36, "id should be canonical UUID text")
	assert.NotEqual(t, a, b, "two calls should never collide")
}

func Test_SplitPath_NormalizesVariantForms(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		path string
		want []string
	}{
		{name: "LeadingSlash", path: "/a/b/c", want: []string{"a", "b", "c"}},
		{name: "NoLeadingSlash", path: "a/b/c", want: []string{"a", "b", "c"}},
		{name: "TrailingAndDoubleSlash", path: "a//b/c/", want: []string{"a", "b", "c"}},
		{name: "MixedCase", path: "/Alpha/Beta", want: []string{"alpha", "beta"}},
		{name: "EmptyPath", path: "", want: []string{}},
		{name: "RootSlash", path: "/", want: []string{}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got := archive.SplitPath(testCase.path)

			diff := cmp.Diff(testCase.want, got)
			assert.Empty(t, diff, "SplitPath(%q) mismatch", testCase.path)
		})
	}
}

func Test_JoinPath_IsInverseOfSplitPath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		segs []string
		want string
	}{
		{name: "Empty", segs: nil, want: "/"},
		{name: "Single", segs: []string{"a"}, want: "/a"},
		{name: "Multiple", segs: []string{"a", "b", "c"}, want: "/a/b/c"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got := archive.JoinPath(testCase.segs)
			require.Equal(t, testCase.want, got)
		})
	}
}

func Test_JoinPath_SplitPath_RoundTrips(t *testing.T) {
	t.Parallel()

	path := "/alpha/beta/gamma"

	got := archive.JoinPath(archive.SplitPath(path))
	assert.Equal(t, path, got)
}

