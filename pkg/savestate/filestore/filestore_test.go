package filestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mattsp1290/osmosis-store/pkg/action"
	"github.com/mattsp1290/osmosis-store/pkg/jsonpath"
	"github.com/mattsp1290/osmosis-store/pkg/jsonsource"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
	"github.com/mattsp1290/osmosis-store/pkg/savestate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setOp(t *testing.T, author uuid.UUID, index uint64, path string, value float64) savestate.PendingOp {
	t.Helper()
	cp, err := jsonpath.Compile(path, nil)
	require.NoError(t, err)
	return savestate.PendingOp{
		ID:     osid.New(author, index),
		Action: action.ScalarAction{Kind: action.Set, Target: cp, Value: value},
	}
}

func TestOpenOnEmptyDirCreatesGenesis(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	points := s.SavePoints()
	require.Len(t, points, 1)
	assert.True(t, osid.Equal(points[0].ID, osid.Zero))
}

// TestWarmStartAfterCloseRecoversLiveState writes enough ops to force a
// save point past genesis, closes the store (flushing every queued
// write), reopens it, and checks the live tree, ladder, and rolling hash
// all match what was there before the restart — spec §6's flat-file
// backend durability requirement.
func TestWarmStartAfterCloseRecoversLiveState(t *testing.T) {
	dir := t.TempDir()
	author := uuid.New()

	s, err := Open(dir, nil)
	require.NoError(t, err)

	for i := uint64(1); i <= 6; i++ {
		_, err := s.Insert([]savestate.PendingOp{setOp(t, author, i, "$.n", float64(i))})
		require.NoError(t, err)
	}
	s.SetMetadata(map[string]any{"peer": author.String()})

	wantSummary := s.StateSummary()
	wantPoints := s.SavePoints()
	require.NoError(t, s.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	gotSummary := reopened.StateSummary()
	assert.Equal(t, wantSummary.Hash, gotSummary.Hash)
	assert.Equal(t, wantSummary.LatestIndexes, gotSummary.LatestIndexes)

	gotPoints := reopened.SavePoints()
	require.Len(t, gotPoints, len(wantPoints))
	for i := range wantPoints {
		assert.True(t, osid.Equal(wantPoints[i].ID, gotPoints[i].ID))
		assert.Equal(t, wantPoints[i].Hash, gotPoints[i].Hash)
	}

	cp, err := jsonpath.Compile("$.n", nil)
	require.NoError(t, err)
	src := reopened.Source()
	p, ok := jsonpath.Resolve(src, cp)
	require.True(t, ok)
	v, ok := jsonsource.ComposeRead(src, p)
	require.True(t, ok)
	assert.Equal(t, float64(6), v)

	meta, ok := reopened.Metadata().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, author.String(), meta["peer"])
}

func TestSavePointFilesAreNamedPerSpec(t *testing.T) {
	dir := t.TempDir()
	author := uuid.New()

	s, err := Open(dir, nil)
	require.NoError(t, err)
	for i := uint64(1); i <= 4; i++ {
		_, err := s.Insert([]savestate.PendingOp{setOp(t, author, i, "$.n", float64(i))})
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var sawSavePoint bool
	for _, e := range entries {
		if filepath.Ext(e.Name()) == savePointExt {
			sawSavePoint = true
			assert.Equal(t, savePointPre, e.Name()[:len(savePointPre)])
		}
	}
	assert.True(t, sawSavePoint, "expected at least one savepoint-*.msgpack file")
}
