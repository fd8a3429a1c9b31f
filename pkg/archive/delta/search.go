package delta

import "bytes"

// matchLen returns the length of the common prefix of old and next.
func matchLen(old, next []byte) int64 {
	n := len(old)
	if len(next) < n {
		n = len(next)
	}

	i := 0
	for i < n && old[i] == next[i] {
		i++
	}

	return int64(i)
}

// search binary-searches the suffix array sa for the position in old whose
// suffix shares the longest prefix with next, scanning the range [st, en].
// It returns the match length and the matching offset in old.
func search(sa []int64, old []byte, next []byte, st, en int64) (length int64, pos int64) {
	if en-st < 2 {
		lenSt := matchLen(sliceFrom(old, sa[st]), next)
		lenEn := matchLen(sliceFrom(old, sa[en]), next)

		if lenSt > lenEn {
			return lenSt, sa[st]
		}

		return lenEn, sa[en]
	}

	mid := st + (en-st)/2

	if bytes.Compare(sliceFrom(old, sa[mid]), boundedSlice(next, len(old)-int(sa[mid]))) < 0 {
		return search(sa, old, next, mid, en)
	}

	return search(sa, old, next, st, mid)
}

// sliceFrom returns old[off:], or an empty slice if off is out of range.
func sliceFrom(old []byte, off int64) []byte {
	if off < 0 || off >= int64(len(old)) {
		return nil
	}

	return old[off:]
}

// boundedSlice returns next truncated to at most n bytes (n may be negative,
// in which case the whole slice is returned, matching memcmp's behavior of
// comparing only the shared, possibly-zero-length prefix).
func boundedSlice(next []byte, n int) []byte {
	if n < 0 || n > len(next) {
		return next
	}

	return next[:n]
}
