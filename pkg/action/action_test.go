package action

import (
	"testing"

	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/jsonpath"
	"github.com/mattsp1290/osmosis-store/pkg/jsonsource"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func literalTarget(t *testing.T, raw string) jsonpath.CompiledPath {
	t.Helper()
	cp, err := jsonpath.Compile(raw, nil)
	require.NoError(t, err)
	return cp
}

func apply(t *testing.T, src jsonsource.MutableSource, a ScalarAction) ([]Change, []Failure) {
	t.Helper()
	changes, failures := Compile(src, a)
	ApplyChanges(src, changes, osid.New(osid.Zero.Author, 1))
	return changes, failures
}

func TestSetWritesValueAndHoleFills(t *testing.T) {
	src := jsonsource.New(nil)
	jsonsource.DecomposeWrite(src, binarypath.Root, map[string]any{"items": []any{}}, nil)

	changes, failures := apply(t, src, ScalarAction{Kind: Set, Target: literalTarget(t, "$.items[2]"), Value: "hi"})
	assert.Empty(t, failures)
	require.Len(t, changes, 3) // Put null at 0, Put null at 1, Put "hi" at 2

	node, ok := src.GetByPath(binarypath.Encode(binarypath.Key("items")))
	require.True(t, ok)
	assert.Equal(t, 3, node.Length)

	v, ok := jsonsource.ComposeRead(src, binarypath.Encode(binarypath.Key("items"), binarypath.Int(2)))
	require.True(t, ok)
	assert.Equal(t, "hi", v)
}

func TestDeleteCompactsArray(t *testing.T) {
	src := jsonsource.New(nil)
	jsonsource.DecomposeWrite(src, binarypath.Root, map[string]any{
		"items": []any{"a", "b", "c"},
	}, nil)

	_, failures := apply(t, src, ScalarAction{Kind: Delete, Target: literalTarget(t, "$.items[0]")})
	assert.Empty(t, failures)

	itemsPath := binarypath.Encode(binarypath.Key("items"))
	node, ok := src.GetByPath(itemsPath)
	require.True(t, ok)
	assert.Equal(t, 2, node.Length)

	v, ok := jsonsource.ComposeRead(src, itemsPath)
	require.True(t, ok)
	assert.Equal(t, []any{"b", "c"}, v)
}

func TestDeleteRootIsRejected(t *testing.T) {
	src := jsonsource.New(nil)
	jsonsource.DecomposeWrite(src, binarypath.Root, map[string]any{}, nil)
	_, failures := apply(t, src, ScalarAction{Kind: Delete, Target: literalTarget(t, "$")})
	require.Len(t, failures, 1)
}

func TestAddRequiresNumber(t *testing.T) {
	src := jsonsource.New(nil)
	jsonsource.DecomposeWrite(src, binarypath.Root, map[string]any{"n": float64(5), "s": "x"}, nil)

	_, failures := apply(t, src, ScalarAction{Kind: Add, Target: literalTarget(t, "$.n"), Delta: 3})
	assert.Empty(t, failures)
	v, ok := jsonsource.ComposeRead(src, binarypath.Encode(binarypath.Key("n")))
	require.True(t, ok)
	assert.Equal(t, float64(8), v)

	_, failures = apply(t, src, ScalarAction{Kind: Add, Target: literalTarget(t, "$.s"), Delta: 3})
	assert.NotEmpty(t, failures)
}

func TestInitArrayTouchesWhenAlreadyArray(t *testing.T) {
	src := jsonsource.New(nil)
	jsonsource.DecomposeWrite(src, binarypath.Root, map[string]any{"items": []any{}}, nil)

	changes, failures := apply(t, src, ScalarAction{Kind: InitArray, Target: literalTarget(t, "$.items")})
	assert.Empty(t, failures)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeTouch, changes[0].Kind)
}

func TestInitObjectCreatesWhenMissing(t *testing.T) {
	src := jsonsource.New(nil)
	jsonsource.DecomposeWrite(src, binarypath.Root, map[string]any{}, nil)

	changes, failures := apply(t, src, ScalarAction{Kind: InitObject, Target: literalTarget(t, "$.config")})
	assert.Empty(t, failures)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangePut, changes[0].Kind)

	v, ok := jsonsource.ComposeRead(src, binarypath.Encode(binarypath.Key("config")))
	require.True(t, ok)
	assert.Equal(t, map[string]any{}, v)
}

func TestInsertBeforeShiftsElements(t *testing.T) {
	src := jsonsource.New(nil)
	jsonsource.DecomposeWrite(src, binarypath.Root, map[string]any{"items": []any{"a", "b", "c"}}, nil)

	_, failures := apply(t, src, ScalarAction{Kind: InsertBefore, Target: literalTarget(t, "$.items[1]"), Value: "x"})
	assert.Empty(t, failures)

	v, ok := jsonsource.ComposeRead(src, binarypath.Encode(binarypath.Key("items")))
	require.True(t, ok)
	assert.Equal(t, []any{"a", "x", "b", "c"}, v)
}

func TestInsertAfterShiftsElements(t *testing.T) {
	src := jsonsource.New(nil)
	jsonsource.DecomposeWrite(src, binarypath.Root, map[string]any{"items": []any{"a", "b", "c"}}, nil)

	_, failures := apply(t, src, ScalarAction{Kind: InsertAfter, Target: literalTarget(t, "$.items[1]"), Value: "x"})
	assert.Empty(t, failures)

	v, ok := jsonsource.ComposeRead(src, binarypath.Encode(binarypath.Key("items")))
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b", "x", "c"}, v)
}

func TestInsertUniqueTouchesOnDuplicate(t *testing.T) {
	src := jsonsource.New(nil)
	jsonsource.DecomposeWrite(src, binarypath.Root, map[string]any{"tags": []any{"a", "b"}}, nil)

	changes, failures := apply(t, src, ScalarAction{Kind: InsertUnique, Target: literalTarget(t, "$.tags"), Value: "a"})
	assert.Empty(t, failures)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeTouch, changes[0].Kind)

	changes, failures = apply(t, src, ScalarAction{Kind: InsertUnique, Target: literalTarget(t, "$.tags"), Value: "c"})
	assert.Empty(t, failures)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangePut, changes[0].Kind)

	v, ok := jsonsource.ComposeRead(src, binarypath.Encode(binarypath.Key("tags")))
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b", "c"}, v)
}

func TestMoveRelocatesAndCompactsSource(t *testing.T) {
	src := jsonsource.New(nil)
	jsonsource.DecomposeWrite(src, binarypath.Root, map[string]any{
		"items": []any{"a", "b", "c"},
		"dest":  map[string]any{},
	}, nil)

	_, failures := apply(t, src, ScalarAction{
		Kind:        Move,
		Target:      literalTarget(t, "$.items[0]"),
		Destination: literalTarget(t, "$.dest.first"),
	})
	assert.Empty(t, failures)

	items, ok := jsonsource.ComposeRead(src, binarypath.Encode(binarypath.Key("items")))
	require.True(t, ok)
	assert.Equal(t, []any{"b", "c"}, items)

	moved, ok := jsonsource.ComposeRead(src, binarypath.Encode(binarypath.Key("dest"), binarypath.Key("first")))
	require.True(t, ok)
	assert.Equal(t, "a", moved)
}

func TestCopyWritesToMultipleDestinations(t *testing.T) {
	src := jsonsource.New(nil)
	jsonsource.DecomposeWrite(src, binarypath.Root, map[string]any{
		"source": map[string]any{"a": float64(1)},
		"d1":     map[string]any{},
		"d2":     map[string]any{},
	}, nil)

	_, failures := apply(t, src, ScalarAction{
		Kind:         Copy,
		Target:       literalTarget(t, "$.source"),
		Destinations: []jsonpath.CompiledPath{literalTarget(t, "$.d1.copy"), literalTarget(t, "$.d2.copy")},
	})
	assert.Empty(t, failures)

	v1, ok := jsonsource.ComposeRead(src, binarypath.Encode(binarypath.Key("d1"), binarypath.Key("copy")))
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": float64(1)}, v1)

	v2, ok := jsonsource.ComposeRead(src, binarypath.Encode(binarypath.Key("d2"), binarypath.Key("copy")))
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": float64(1)}, v2)
}

func TestTransactionDiscardsChangesOnAnyFailure(t *testing.T) {
	src := jsonsource.New(nil)
	jsonsource.DecomposeWrite(src, binarypath.Root, map[string]any{"n": float64(1), "s": "x"}, nil)

	changes, failures := Compile(src, ScalarAction{
		Kind: Transaction,
		SubActions: []ScalarAction{
			{Kind: Set, Target: literalTarget(t, "$.n"), Value: float64(2)},
			{Kind: Add, Target: literalTarget(t, "$.s"), Delta: 1}, // fails: not a number
		},
	})
	assert.Nil(t, changes)
	assert.NotEmpty(t, failures)

	v, ok := jsonsource.ComposeRead(src, binarypath.Encode(binarypath.Key("n")))
	require.True(t, ok)
	assert.Equal(t, float64(1), v, "live source must be untouched since Compile never mutates it")
}

func TestTransactionSucceedsAppliesAllSubActions(t *testing.T) {
	src := jsonsource.New(nil)
	jsonsource.DecomposeWrite(src, binarypath.Root, map[string]any{"n": float64(1)}, nil)

	changes, failures := Compile(src, ScalarAction{
		Kind: Transaction,
		SubActions: []ScalarAction{
			{Kind: Add, Target: literalTarget(t, "$.n"), Delta: 1},
			{Kind: Multiply, Target: literalTarget(t, "$.n"), Delta: 10},
		},
	})
	assert.Empty(t, failures)
	ApplyChanges(src, changes, osid.New(osid.Zero.Author, 1))

	v, ok := jsonsource.ComposeRead(src, binarypath.Encode(binarypath.Key("n")))
	require.True(t, ok)
	assert.Equal(t, float64(20), v)
}
