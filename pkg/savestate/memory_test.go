package savestate

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"

	"github.com/mattsp1290/osmosis-store/pkg/action"
	"github.com/mattsp1290/osmosis-store/pkg/errors"
	"github.com/mattsp1290/osmosis-store/pkg/jsonpath"
	"github.com/mattsp1290/osmosis-store/pkg/jsonsource"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setAction(t *testing.T, path string, value any) action.ScalarAction {
	t.Helper()
	cp, err := jsonpath.Compile(path, nil)
	require.NoError(t, err)
	return action.ScalarAction{Kind: action.Set, Target: cp, Value: value}
}

func pendingSet(t *testing.T, author uuid.UUID, index uint64, path string, value any) PendingOp {
	t.Helper()
	return PendingOp{ID: osid.New(author, index), Action: setAction(t, path, value)}
}

// TestSavePointLadderWidths reproduces spec §8's worked example: one peer
// inserting 8 ops one at a time produces exactly three save points at
// widths [4, 4, 4] — nothing is merged, because compactLadder only
// triggers once a 4th save point exists on the ladder.
func TestSavePointLadderWidths(t *testing.T) {
	s := New(nil)
	author := uuid.New()

	for i := uint64(1); i <= 8; i++ {
		_, err := s.Insert([]PendingOp{pendingSet(t, author, i, "$.n", i)})
		require.NoError(t, err)
	}

	points := s.SavePoints()
	require.Len(t, points, 3)
	for _, sp := range points {
		assert.Equal(t, 4, sp.Width)
	}
	assert.True(t, osid.Equal(points[0].ID, osid.Zero))
	assert.True(t, osid.Equal(points[1].ID, osid.New(author, 4)))
	assert.True(t, osid.Equal(points[2].ID, osid.New(author, 8)))
}

func TestSavePointLadderCompactsOnFourthRung(t *testing.T) {
	s := New(nil)
	author := uuid.New()

	for i := uint64(1); i <= 12; i++ {
		_, err := s.Insert([]PendingOp{pendingSet(t, author, i, "$.n", i)})
		require.NoError(t, err)
	}

	points := s.SavePoints()
	require.Len(t, points, 3)
	assert.Equal(t, 8, points[1].Width)
	assert.Equal(t, 4, points[2].Width)
}

func TestInsertOutOfOrderRewindsAndReplays(t *testing.T) {
	s := New(nil)
	author := uuid.New()

	_, err := s.Insert([]PendingOp{pendingSet(t, author, 1, "$.a", 1.0)})
	require.NoError(t, err)
	_, err = s.Insert([]PendingOp{pendingSet(t, author, 3, "$.c", 3.0)})
	require.NoError(t, err)

	// Inserting index 2 out of causal order must rewind to before it,
	// then replay 2 and 3 together.
	_, err = s.Insert([]PendingOp{pendingSet(t, author, 2, "$.b", 2.0)})
	require.NoError(t, err)

	src := s.Source()
	for _, tc := range []struct {
		path string
		want any
	}{
		{"$.a", 1.0}, {"$.b", 2.0}, {"$.c", 3.0},
	} {
		cp, err := jsonpath.Compile(tc.path, nil)
		require.NoError(t, err)
		p, ok := jsonpath.Resolve(src, cp)
		require.True(t, ok)
		v, ok := jsonsource.ComposeRead(src, p)
		require.True(t, ok)
		assert.Equal(t, tc.want, v)
	}
}

func TestRewindDropsAndReturnsLaterOps(t *testing.T) {
	s := New(nil)
	author := uuid.New()

	for i := uint64(1); i <= 6; i++ {
		_, err := s.Insert([]PendingOp{pendingSet(t, author, i, "$.n", i)})
		require.NoError(t, err)
	}

	dropped, err := s.Rewind(osid.New(author, 4))
	require.NoError(t, err)
	require.Len(t, dropped, 2)
	assert.Equal(t, uint64(5), dropped[0].ID.Index)
	assert.Equal(t, uint64(6), dropped[1].ID.Index)

	summary := s.StateSummary()
	assert.Equal(t, uint64(4), summary.LatestIndexes[author])
}

func TestRewindPastOldestSavePointFails(t *testing.T) {
	s := New(nil)
	author := uuid.New()
	for i := uint64(1); i <= 8; i++ {
		_, err := s.Insert([]PendingOp{pendingSet(t, author, i, "$.n", i)})
		require.NoError(t, err)
	}

	points := s.SavePoints()
	require.NoError(t, s.GarbageCollect(points[1].ID))

	_, err := s.Rewind(osid.Zero)
	require.ErrorIs(t, err, errors.ErrRewindPastOldestSavePoint)
}

func TestGarbageCollectFlattensBelowCutoff(t *testing.T) {
	s := New(nil)
	author := uuid.New()

	for i := uint64(1); i <= 12; i++ {
		_, err := s.Insert([]PendingOp{pendingSet(t, author, i, "$.n", i)})
		require.NoError(t, err)
	}
	before := s.SavePoints()
	require.Len(t, before, 3)

	err := s.GarbageCollect(before[1].ID)
	require.NoError(t, err)

	after := s.SavePoints()
	require.Len(t, after, 2)
	assert.True(t, osid.Equal(after[0].ID, before[1].ID))

	ops := s.OpsRange(nil, nil)
	for _, op := range ops {
		assert.False(t, osid.Less(op.ID, before[1].ID))
	}
}

// TestConvergenceIsOrderIndependent exercises spec §8's headline
// invariant: two stores that apply the same set of single-author ops,
// delivered in different (but still per-author-causal) batch groupings,
// converge on the same rolling state hash and the same live values.
func TestConvergenceIsOrderIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		author := uuid.New()
		n := rapid.IntRange(1, 24).Draw(t, "n")

		ops := make([]PendingOp, n)
		for i := 0; i < n; i++ {
			idx := uint64(i + 1)
			cp, err := jsonpath.Compile("$.n", nil)
			if err != nil {
				t.Fatal(err)
			}
			ops[i] = PendingOp{
				ID:     osid.New(author, idx),
				Action: action.ScalarAction{Kind: action.Set, Target: cp, Value: float64(idx)},
			}
		}

		a := New(nil)
		for _, op := range ops {
			if _, err := a.Insert([]PendingOp{op}); err != nil {
				t.Fatal(err)
			}
		}

		b := New(nil)
		batchSize := rapid.IntRange(1, n).Draw(t, "batchSize")
		for i := 0; i < len(ops); i += batchSize {
			end := i + batchSize
			if end > len(ops) {
				end = len(ops)
			}
			if _, err := b.Insert(ops[i:end]); err != nil {
				t.Fatal(err)
			}
		}

		if a.StateSummary().Hash != b.StateSummary().Hash {
			t.Fatalf("hash diverged: %x vs %x", a.StateSummary().Hash, b.StateSummary().Hash)
		}

		cp, err := jsonpath.Compile("$.n", nil)
		if err != nil {
			t.Fatal(err)
		}
		pa, ok := jsonpath.Resolve(a.Source(), cp)
		if !ok {
			t.Fatal("path unresolved on a")
		}
		pb, ok := jsonpath.Resolve(b.Source(), cp)
		if !ok {
			t.Fatal("path unresolved on b")
		}
		va, _ := jsonsource.ComposeRead(a.Source(), pa)
		vb, _ := jsonsource.ComposeRead(b.Source(), pb)
		if va != vb {
			t.Fatalf("value diverged: %v vs %v", va, vb)
		}
	})
}
