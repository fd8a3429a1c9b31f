package delta

import (
	"bytes"
	"fmt"

	"github.com/dsnet/compress/bzip2"
)

// bzipLevel is the compression level used for all three patch streams.
const bzipLevel = 9

// Diff computes a BSDIFF40 patch that transforms old into new.
//
// The algorithm scans new left to right, using the suffix array of old to
// find the longest matching substring at each position (search, guided by a
// binary search over the sorted suffixes). A match window stays open while
// its quality keeps pace with a running score of incidental matches against
// the previous window's offset; once the window closes, the accumulated
// region is resolved into a forward extension, a backward extension from
// the next window, an overlap split between them, a byte-wise diff over the
// forward extension, and a trailing block of literal bytes.
func Diff(old, newData []byte) ([]byte, error) {
	sa := suffixSort(old)

	var ctrlBuf, diffBuf, extraBuf bytes.Buffer

	oldsize := int64(len(old))
	newsize := int64(len(newData))

	var scan, pos, length int64

	var lastScan, lastPos, lastOffset int64

	for scan < newsize {
		oldScore := int64(0)
		scan += length
		scsc := scan

		for ; scan < newsize; scan++ {
			length, pos = search(sa, old, newData[scan:], 0, oldsize)

			for ; scsc < scan+length; scsc++ {
				if scsc+lastOffset >= 0 && scsc+lastOffset < oldsize &&
					old[scsc+lastOffset] == newData[scsc] {
					oldScore++
				}
			}

			if (length == oldScore && length != 0) || length > oldScore+8 {
				break
			}

			if scan+lastOffset >= 0 && scan+lastOffset < oldsize &&
				old[scan+lastOffset] == newData[scan] {
				oldScore--
			}
		}

		if length != oldScore || scan == newsize {
			var s, sf, lenf int64

			for i := int64(0); lastScan+i < scan && lastPos+i < oldsize; i++ {
				if old[lastPos+i] == newData[lastScan+i] {
					s++
				}

				if s*2-i > sf*2-lenf {
					sf = s
					lenf = i + 1
				}
			}

			var lenb int64

			if scan < newsize {
				var sb int64
				s = 0

				for i := int64(1); scan >= lastScan+i && pos >= i; i++ {
					if old[pos-i] == newData[scan-i] {
						s++
					}

					if s*2-i > sb*2-lenb {
						sb = s
						lenb = i
					}
				}
			}

			if lastScan+lenf > scan-lenb {
				overlap := (lastScan + lenf) - (scan - lenb)

				var ss, lens int64
				s = 0

				for i := int64(0); i < overlap; i++ {
					if newData[lastScan+lenf-overlap+i] == old[lastPos+lenf-overlap+i] {
						s++
					}

					if newData[scan-lenb+i] == old[pos-lenb+i] {
						s--
					}

					if s > ss {
						ss = s
						lens = i + 1
					}
				}

				lenf += lens - overlap
				lenb -= lens
			}

			for i := int64(0); i < lenf; i++ {
				diffBuf.WriteByte(newData[lastScan+i] - old[lastPos+i])
			}

			extraLen := (scan - lenb) - (lastScan + lenf)
			extraBuf.Write(newData[lastScan+lenf : lastScan+lenf+extraLen])

			var triple [24]byte
			putOfft(triple[0:8], lenf)
			putOfft(triple[8:16], extraLen)
			putOfft(triple[16:24], (pos-lenb)-(lastPos+lenf))
			ctrlBuf.Write(triple[:])

			lastScan = scan - lenb
			lastPos = pos - lenb
			lastOffset = pos - scan
		}
	}

	ctrlBzip, err := bzipCompress(ctrlBuf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("delta: compress ctrl block: %w", err)
	}

	diffBzip, err := bzipCompress(diffBuf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("delta: compress diff block: %w", err)
	}

	extraBzip, err := bzipCompress(extraBuf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("delta: compress extra block: %w", err)
	}

	out := encodeHeader(int64(len(ctrlBzip)), int64(len(diffBzip)), newsize)
	out = append(out, ctrlBzip...)
	out = append(out, diffBzip...)
	out = append(out, extraBzip...)

	return out, nil
}

func bzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzipLevel})
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()

		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
