package delta

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
)

// Apply applies a BSDIFF40 patch to old, reproducing the new byte sequence
// the patch was created from.
//
// Reads one control triple (diffLen, extraLen, seek) at a time from the
// decompressed ctrl stream: diffLen bytes are read from the diff stream and
// added byte-wise to the corresponding run of old (advancing oldpos by
// diffLen), extraLen raw bytes are copied verbatim from the extra stream,
// and oldpos is then seeked by the signed seek value. Any triple that would
// write past the declared new length is rejected.
func Apply(old, patch []byte) ([]byte, error) {
	if len(patch) < headerSize {
		return nil, ErrInvalidPatch
	}

	h, err := decodeHeader(patch[:headerSize])
	if err != nil {
		return nil, err
	}

	rest := patch[headerSize:]
	if int64(len(rest)) < h.ctrlBzipLen+h.diffBzipLen {
		return nil, ErrInvalidPatch
	}

	ctrlBlock := rest[:h.ctrlBzipLen]
	diffBlock := rest[h.ctrlBzipLen : h.ctrlBzipLen+h.diffBzipLen]
	extraBlock := rest[h.ctrlBzipLen+h.diffBzipLen:]

	ctrlR, err := bzipReader(ctrlBlock)
	if err != nil {
		return nil, fmt.Errorf("delta: open ctrl stream: %w", err)
	}

	diffR, err := bzipReader(diffBlock)
	if err != nil {
		return nil, fmt.Errorf("delta: open diff stream: %w", err)
	}

	extraR, err := bzipReader(extraBlock)
	if err != nil {
		return nil, fmt.Errorf("delta: open extra stream: %w", err)
	}

	out := make([]byte, h.newSize)

	var oldpos, newpos int64

	oldsize := int64(len(old))

	for newpos < h.newSize {
		var triple [24]byte

		if _, err := io.ReadFull(ctrlR, triple[:]); err != nil {
			return nil, fmt.Errorf("delta: read control triple: %w", err)
		}

		diffLen := getOfft(triple[0:8])
		extraLen := getOfft(triple[8:16])
		seek := getOfft(triple[16:24])

		if diffLen < 0 || extraLen < 0 {
			return nil, ErrInvalidPatch
		}

		if newpos+diffLen > h.newSize {
			return nil, ErrInvalidPatch
		}

		if _, err := io.ReadFull(diffR, out[newpos:newpos+diffLen]); err != nil {
			return nil, fmt.Errorf("delta: read diff bytes: %w", err)
		}

		for i := int64(0); i < diffLen; i++ {
			if p := oldpos + i; p >= 0 && p < oldsize {
				out[newpos+i] += old[p]
			}
		}

		newpos += diffLen
		oldpos += diffLen

		if newpos+extraLen > h.newSize {
			return nil, ErrInvalidPatch
		}

		if _, err := io.ReadFull(extraR, out[newpos:newpos+extraLen]); err != nil {
			return nil, fmt.Errorf("delta: read extra bytes: %w", err)
		}

		newpos += extraLen
		oldpos += seek
	}

	return out, nil
}

// bzipReader opens a decompressing reader over a single BSDIFF40 block.
// Both ok and stream-end completion states from the underlying decoder are
// accepted since blocks are read to exact, pre-declared lengths rather than
// to EOF.
func bzipReader(block []byte) (io.Reader, error) {
	r, err := bzip2.NewReader(bytes.NewReader(block), nil)
	if err != nil {
		return nil, err
	}

	return r, nil
}
