package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileDotAndBracketKeys(t *testing.T) {
	cp, err := Compile(`$.foo.bar["baz"]`, nil)
	require.NoError(t, err)
	require.Len(t, cp.Segments, 3)
	assert.Equal(t, SegKey, cp.Segments[0].Kind)
	assert.Equal(t, "foo", cp.Segments[0].Key)
	assert.Equal(t, "bar", cp.Segments[1].Key)
	assert.Equal(t, "baz", cp.Segments[2].Key)
}

func TestCompileWildcardAndIndex(t *testing.T) {
	cp, err := Compile(`$.items[*][2]`, nil)
	require.NoError(t, err)
	require.Len(t, cp.Segments, 3)
	assert.Equal(t, SegKey, cp.Segments[0].Kind)
	assert.Equal(t, SegWildcard, cp.Segments[1].Kind)
	assert.Equal(t, SegIndex, cp.Segments[2].Kind)
	assert.Equal(t, 2, cp.Segments[2].Index)
}

func TestCompileMultiKeyAndMultiIndex(t *testing.T) {
	cp, err := Compile(`$['a','b'][0,1,2]`, nil)
	require.NoError(t, err)
	require.Len(t, cp.Segments, 2)
	assert.Equal(t, SegMultiKey, cp.Segments[0].Kind)
	assert.Equal(t, []string{"a", "b"}, cp.Segments[0].MultiKeys)
	assert.Equal(t, SegMultiIndex, cp.Segments[1].Kind)
	assert.Equal(t, []int{0, 1, 2}, cp.Segments[1].MultiIndices)
}

func TestCompileSlice(t *testing.T) {
	cp, err := Compile(`$.items[1:5:2]`, nil)
	require.NoError(t, err)
	require.Len(t, cp.Segments, 2)
	require.Equal(t, SegSlice, cp.Segments[1].Kind)
	require.NotNil(t, cp.Segments[1].Slice.From)
	require.NotNil(t, cp.Segments[1].Slice.To)
	assert.Equal(t, 1, *cp.Segments[1].Slice.From)
	assert.Equal(t, 5, *cp.Segments[1].Slice.To)
	assert.Equal(t, 2, cp.Segments[1].Slice.Step)
}

func TestCompileRecursive(t *testing.T) {
	cp, err := Compile(`$..bar`, nil)
	require.NoError(t, err)
	require.Len(t, cp.Segments, 1)
	require.Equal(t, SegRecursive, cp.Segments[0].Kind)
	require.Len(t, cp.Segments[0].Recursive, 1)
	assert.Equal(t, SegKey, cp.Segments[0].Recursive[0].Kind)
	assert.Equal(t, "bar", cp.Segments[0].Recursive[0].Key)
}

func TestCompileFilter(t *testing.T) {
	cp, err := Compile(`$.items[?(@.price < 10)]`, nil)
	require.NoError(t, err)
	require.Len(t, cp.Segments, 2)
	require.Equal(t, SegFilter, cp.Segments[1].Kind)
	require.NotNil(t, cp.Segments[1].Filter)
	assert.Equal(t, ExprBinary, cp.Segments[1].Filter.Kind)
	assert.Equal(t, "<", cp.Segments[1].Filter.BinaryOp)
}

func TestCompileExprIndex(t *testing.T) {
	cp, err := Compile(`$.items[(@.length-1)]`, nil)
	require.NoError(t, err)
	require.Len(t, cp.Segments, 2)
	require.Equal(t, SegExprIndex, cp.Segments[1].Kind)
	require.Len(t, cp.Segments[1].ExprIndices, 1)
}

func TestCompileVariableInterpolation(t *testing.T) {
	cp, err := Compile(`$.items[$idx].name`, map[string]any{"idx": 3})
	require.NoError(t, err)
	require.Len(t, cp.Segments, 3)
	assert.Equal(t, SegIndex, cp.Segments[1].Kind)
	assert.Equal(t, 3, cp.Segments[1].Index)
}

func TestCompileUndefinedVariableErrors(t *testing.T) {
	_, err := Compile(`$.items[$missing]`, nil)
	assert.Error(t, err)
}
