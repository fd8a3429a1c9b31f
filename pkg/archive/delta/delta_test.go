package delta_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/docarchive/pkg/archive/delta"
)

func TestDiffApplyRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		old  []byte
		new  []byte
	}{
		{"both empty", nil, nil},
		{"old empty", nil, []byte("hello world")},
		{"new empty", []byte("hello world"), nil},
		{"identical", []byte("abcdefgh"), []byte("abcdefgh")},
		{"small edit", []byte("0123456789"), []byte("0123456789a")},
		{
			"three chunks",
			bytes.Repeat([]byte("0123456789"), 3),
			append(append([]byte{}, []byte("0123456789")...), append([]byte("9876543210"), []byte("0123456789")...)...),
		},
		{"single byte", []byte("x"), []byte("y")},
		{"shrink", []byte("abcdefghijklmnop"), []byte("abc")},
		{"grow", []byte("abc"), []byte("abcdefghijklmnop")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			patch, err := delta.Diff(tc.old, tc.new)
			require.NoError(t, err)

			got, err := delta.Apply(tc.old, patch)
			require.NoError(t, err)
			require.Equal(t, tc.new, got)
		})
	}
}

func TestDiffApplyRoundTripRandom(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 25; i++ {
		old := randomBytes(rng, rng.Intn(2000))
		newData := mutate(rng, old)

		patch, err := delta.Diff(old, newData)
		require.NoError(t, err)

		got, err := delta.Apply(old, patch)
		require.NoError(t, err)
		require.Equal(t, newData, got)
	}
}

func TestApplyRejectsBadHeader(t *testing.T) {
	t.Parallel()

	_, err := delta.Apply([]byte("old"), []byte("not a patch"))
	require.ErrorIs(t, err, delta.ErrInvalidPatch)
}

func TestApplyRejectsTruncatedBlocks(t *testing.T) {
	t.Parallel()

	patch, err := delta.Diff([]byte("0123456789"), []byte("0123456789abcdef"))
	require.NoError(t, err)

	_, err = delta.Apply([]byte("0123456789"), patch[:len(patch)-1])
	require.Error(t, err)
}

func randomBytes(rng *rand.Rand, n int) []byte {
	buf := make([]byte, n)
	_, _ = rng.Read(buf)

	return buf
}

// mutate returns a copy of old with a handful of random insert/delete/flip
// edits applied, simulating a realistic revision.
func mutate(rng *rand.Rand, old []byte) []byte {
	out := append([]byte{}, old...)

	edits := rng.Intn(5)
	for i := 0; i < edits; i++ {
		switch rng.Intn(3) {
		case 0: // flip a byte
			if len(out) == 0 {
				continue
			}

			out[rng.Intn(len(out))] = byte(rng.Intn(256))
		case 1: // insert
			pos := rng.Intn(len(out) + 1)
			chunk := randomBytes(rng, rng.Intn(50))
			out = append(out[:pos:pos], append(chunk, out[pos:]...)...)
		case 2: // delete
			if len(out) == 0 {
				continue
			}

			pos := rng.Intn(len(out))
			n := rng.Intn(len(out) - pos)
			out = append(out[:pos], out[pos+n:]...)
		}
	}

	return out
}
