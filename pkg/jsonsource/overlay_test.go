package jsonsource

import (
	"testing"

	"github.com/google/uuid"
	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func id(n uint64) osid.Id {
	return osid.New(uuid.MustParse("00000000-0000-0000-0000-000000000001"), n)
}

func TestRootDefaultsToEmptyObject(t *testing.T) {
	src := New(nil)
	n, ok := src.GetByPath(binarypath.Root)
	require.True(t, ok)
	assert.Equal(t, KindObject, n.Kind)
	assert.Empty(t, n.Keys)
}

func TestSetByPathAndGetByID(t *testing.T) {
	src := New(nil)
	foo := binarypath.Encode(binarypath.Key("foo"))
	i := id(1)
	src.SetByPath(binarypath.Root, Object([]string{"foo"}), nil)
	src.SetByPath(foo, String("bar"), &i)

	n, ok := src.GetByPath(foo)
	require.True(t, ok)
	assert.Equal(t, "bar", n.Str)

	byID, ok := src.GetByID(i)
	require.True(t, ok)
	assert.Equal(t, "bar", byID.Str)

	p, ok := src.GetPathByID(i)
	require.True(t, ok)
	assert.Equal(t, binarypath.Path(foo), p)

	assert.Equal(t, []osid.Id{i}, src.GetIDsByPath(foo))
}

func TestOverlayShadowsParentWithTombstone(t *testing.T) {
	parent := New(nil)
	fooPath := binarypath.Encode(binarypath.Key("foo"))
	parent.SetByPath(binarypath.Root, Object([]string{"foo"}), nil)
	parent.SetByPath(fooPath, String("bar"), nil)

	child := New(parent)
	_, existed := child.DeleteByPath(fooPath)
	assert.True(t, existed)

	_, ok := child.GetByPath(fooPath)
	assert.False(t, ok, "tombstone in child shadows parent value")

	_, ok = parent.GetByPath(fooPath)
	assert.True(t, ok, "parent is unaffected by child's tombstone")
}

func TestDeleteByPathUnlinksDescendantIDsRecursively(t *testing.T) {
	src := New(nil)
	arrPath := binarypath.Encode(binarypath.Key("arr"))
	elem0 := binarypath.Append(arrPath, binarypath.Int(0))
	elem1 := binarypath.Append(arrPath, binarypath.Int(1))
	idArr, id0, id1 := id(1), id(2), id(3)

	src.SetByPath(binarypath.Root, Object([]string{"arr"}), nil)
	src.SetByPath(arrPath, Array(2), &idArr)
	src.SetByPath(elem0, Number(1), &id0)
	src.SetByPath(elem1, Number(2), &id1)

	_, existed := src.DeleteByPath(arrPath)
	require.True(t, existed)

	for _, i := range []osid.Id{idArr, id0, id1} {
		_, ok := src.GetPathByID(i)
		assert.False(t, ok, "id %v should be unlinked after recursive delete", i)
	}
}

func TestMergeChildLastWriteWinsAndDropsTombstones(t *testing.T) {
	parent := New(nil)
	fooPath := binarypath.Encode(binarypath.Key("foo"))
	barPath := binarypath.Encode(binarypath.Key("bar"))
	parent.SetByPath(binarypath.Root, Object([]string{"foo", "bar"}), nil)
	parent.SetByPath(fooPath, String("old"), nil)
	parent.SetByPath(barPath, String("keepme"), nil)

	child := New(parent)
	child.SetByPath(fooPath, String("new"), nil)
	child.DeleteByPath(barPath)

	parent.MergeChild(child)

	n, ok := parent.GetByPath(fooPath)
	require.True(t, ok)
	assert.Equal(t, "new", n.Str)

	_, ok = parent.GetByPath(barPath)
	assert.False(t, ok, "merged tombstone removes key outright from parent")
}

func TestDecomposeAndComposeRoundTrip(t *testing.T) {
	src := New(nil)
	val := map[string]any{
		"a": float64(1),
		"b": []any{float64(2), "three", nil},
	}
	DecomposeWrite(src, binarypath.Root, val, nil)

	out, ok := ComposeRead(src, binarypath.Root)
	require.True(t, ok)
	assert.True(t, DeepEqualValue(val, out))
}
