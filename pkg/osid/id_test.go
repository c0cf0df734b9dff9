package osid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCompareOrdersByAuthorThenIndex(t *testing.T) {
	a := New(uuid.MustParse("00000000-0000-0000-0000-000000000001"), 5)
	b := New(uuid.MustParse("00000000-0000-0000-0000-000000000001"), 6)
	c := New(uuid.MustParse("00000000-0000-0000-0000-000000000002"), 0)

	assert.True(t, Less(a, b))
	assert.True(t, Less(b, c))
	assert.Equal(t, 0, Compare(a, a))
}

func TestZeroIdIsNilUUIDIndexZero(t *testing.T) {
	assert.Equal(t, uuid.UUID{}, Zero.Author)
	assert.Equal(t, uint64(0), Zero.Index)
}

func TestNextHashDeterministic(t *testing.T) {
	author := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	id := New(author, 1)
	h1 := NextHash(ZeroHash, id)
	h2 := NextHash(ZeroHash, id)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, ZeroHash, h1)
}

// TestConvergenceUnderPermutation mirrors spec §8: two peers applying the same Ids in the
// same canonical (sorted) order converge to an equal hash, regardless of
// what order they originally arrived in.
func TestConvergenceUnderPermutation(t *testing.T) {
	author := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	ids := []Id{New(author, 1), New(author, 2), New(author, 3)}

	permutations := [][]int{
		{0, 1, 2},
		{2, 1, 0},
		{1, 0, 2},
	}
	var hashes []Hash
	for _, perm := range permutations {
		permuted := make([]Id, len(ids))
		for i, p := range perm {
			permuted[i] = ids[p]
		}
		// Canonical application always sorts by Id first.
		sorted := append([]Id(nil), permuted...)
		for i := 0; i < len(sorted); i++ {
			for j := i + 1; j < len(sorted); j++ {
				if Less(sorted[j], sorted[i]) {
					sorted[i], sorted[j] = sorted[j], sorted[i]
				}
			}
		}
		hashes = append(hashes, FoldHashes(ZeroHash, sorted))
	}
	for i := 1; i < len(hashes); i++ {
		require.Equal(t, hashes[0], hashes[i])
	}
}

func TestLatestIndexesObserve(t *testing.T) {
	li := make(LatestIndexes)
	a := uuid.New()
	li.Observe(New(a, 3))
	li.Observe(New(a, 1))
	li.Observe(New(a, 7))
	assert.Equal(t, uint64(7), li[a])
	assert.Equal(t, uint64(7), li.Max())
}

func TestRapidCompareIsTotalOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := New(uuid.UUID(rapid.ArrayOf(16, rapid.Byte()).Draw(t, "a")), rapid.Uint64().Draw(t, "ai"))
		b := New(uuid.UUID(rapid.ArrayOf(16, rapid.Byte()).Draw(t, "b")), rapid.Uint64().Draw(t, "bi"))
		c1 := Compare(a, b)
		c2 := Compare(b, a)
		if c1 != -c2 {
			t.Fatalf("asymmetry: Compare(a,b)=%d Compare(b,a)=%d", c1, c2)
		}
	})
}
