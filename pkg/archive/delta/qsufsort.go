// Package delta implements the BSDIFF40 binary diff and patch codec used to
// store document revisions as reverse deltas.
package delta

// suffixSort builds the suffix array of old using the qsufsort algorithm
// (Itoh-Tanaka style doubling search): a bucket sort establishes initial
// ranks, then repeated refinement passes double the compared prefix length
// each round until every suffix has a unique rank. Returns I, the suffix
// array (I[k] is the starting offset of the k-th smallest suffix of old),
// sized len(old)+1 with I[0] always the sentinel empty suffix.
//
// Buffers are typed as int64 throughout, sized oldsize+1, so large documents
// don't overflow an int32 offset. The bucket pass and the doubling loop stay
// in separate functions, mirroring the structure of the reference algorithm.
func suffixSort(old []byte) []int64 {
	oldsize := int64(len(old))

	sa, inv := initialRanks(old, oldsize)

	for h := int64(1); sa[0] != -(oldsize + 1); h += h {
		length := int64(0)

		i := int64(0)
		for i < oldsize+1 {
			if sa[i] < 0 {
				length -= sa[i]
				i -= sa[i]
			} else {
				if length != 0 {
					sa[i-length] = -length
				}

				length = inv[sa[i]] + 1 - i
				split(sa, inv, i, length, h)
				i += length
				length = 0
			}
		}

		if length != 0 {
			sa[i-length] = -length
		}
	}

	for i := int64(0); i < oldsize+1; i++ {
		sa[inv[i]] = i
	}

	return sa
}

// initialRanks builds the suffix array and rank array (I, V) via a counting
// sort on the first byte of each suffix, matching the reference qsufsort
// setup: I[0] holds oldsize (the sentinel empty suffix), V[i] holds the
// bucket rank of the byte at position i, and singleton buckets are marked
// with -1 so the doubling loop can skip over already-sorted runs.
func initialRanks(old []byte, oldsize int64) (sa []int64, inv []int64) {
	sa = make([]int64, oldsize+1)
	inv = make([]int64, oldsize+1)

	var buckets [256]int64

	for i := int64(0); i < oldsize; i++ {
		buckets[old[i]]++
	}

	for i := 1; i < 256; i++ {
		buckets[i] += buckets[i-1]
	}

	for i := 255; i > 0; i-- {
		buckets[i] = buckets[i-1]
	}

	buckets[0] = 0

	for i := int64(0); i < oldsize; i++ {
		buckets[old[i]]++
		sa[buckets[old[i]]] = i
	}

	sa[0] = oldsize

	for i := int64(0); i < oldsize; i++ {
		inv[i] = buckets[old[i]]
	}

	inv[oldsize] = 0

	for i := 1; i < 256; i++ {
		if buckets[i] == buckets[i-1]+1 {
			sa[buckets[i]] = -1
		}
	}

	sa[0] = -1

	return sa, inv
}

// split refines the suffix array over the range [start, start+length) using
// rank-at-offset-h as the sort key, the core three-way partition of
// qsufsort's doubling search (Itoh-Tanaka). It mutates sa and inv in place.
func split(sa, inv []int64, start, length, h int64) {
	if length < 16 {
		for k := start; k < start+length; {
			j := int64(1)
			x := inv[sa[k]+h]

			for i := int64(1); k+i < start+length; i++ {
				if inv[sa[k+i]+h] < x {
					x = inv[sa[k+i]+h]
					j = 0
				}

				if inv[sa[k+i]+h] == x {
					sa[k+j], sa[k+i] = sa[k+i], sa[k+j]
					j++
				}
			}

			for i := int64(0); i < j; i++ {
				inv[sa[k+i]] = k + j - 1
			}

			if j == 1 {
				sa[k] = -1
			}

			k += j
		}

		return
	}

	x := inv[sa[start+length/2]+h]

	jj := int64(0)
	kk := int64(0)

	for i := start; i < start+length; i++ {
		if inv[sa[i]+h] < x {
			jj++
		}

		if inv[sa[i]+h] == x {
			kk++
		}
	}

	jj += start
	kk += jj

	i := start
	j := int64(0)
	k := int64(0)

	for i < jj {
		switch {
		case inv[sa[i]+h] < x:
			i++
		case inv[sa[i]+h] == x:
			sa[i], sa[jj+j] = sa[jj+j], sa[i]
			j++
		default:
			sa[i], sa[kk+k] = sa[kk+k], sa[i]
			k++
		}
	}

	for jj+j < kk {
		if inv[sa[jj+j]+h] == x {
			j++
		} else {
			sa[jj+j], sa[kk+k] = sa[kk+k], sa[jj+j]
			k++
		}
	}

	if jj > start {
		split(sa, inv, start, jj-start, h)
	}

	for i := int64(0); i < kk-jj; i++ {
		inv[sa[jj+i]] = kk - 1
	}

	if jj == kk-1 {
		sa[jj] = -1
	}

	if start+length > kk {
		split(sa, inv, kk, start+length-kk, h)
	}
}
