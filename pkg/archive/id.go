package archive

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a new identifier in canonical UUID v4 textual form, used
// for every entity's Id column.
func NewID() string {
	return uuid.New().String()
}

// ticksEpochOffset is the number of .NET ticks (100ns units) between
// 0001-01-01T00:00:00Z, the .NET DateTime epoch, and the Unix epoch.
const ticksEpochOffset = 621_355_968_000_000_000

// ticksFromTime converts t to the .NET-epoch tick timestamp stored for
// Document.Created and HistoryEntry.Created.
func ticksFromTime(t time.Time) int64 {
	return t.UTC().UnixNano()/100 + ticksEpochOffset
}

// timeFromTicks is the inverse of ticksFromTime.
func timeFromTicks(ticks int64) time.Time {
	nanos := (ticks - ticksEpochOffset) * 100

	return time.Unix(0, nanos).UTC()
}

// SplitPath splits a virtual folder path into its non-empty, lower-cased
// segments. "/a/b/c", "a/b/c" and "a//b/c/" all yield ["a","b","c"]; the
// root path ("", "/") yields an empty slice.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")

	segs := make([]string, 0, len(parts))

	for _, p := range parts {
		if p == "" {
			continue
		}

		segs = append(segs, strings.ToLower(p))
	}

	return segs
}

// JoinPath is the inverse of SplitPath: it renders segs as a canonical,
// leading-slash virtual folder path.
func JoinPath(segs []string) string {
	if len(segs) == 0 {
		return "/"
	}

	return "/" + strings.Join(segs, "/")
}
