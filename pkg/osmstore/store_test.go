package osmstore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/google/uuid"

	"github.com/mattsp1290/osmosis-store/pkg/action"
	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/jsonpath"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
	"github.com/mattsp1290/osmosis-store/pkg/savestate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDispatchSetThenQueryOnce(t *testing.T) {
	store := New(savestate.New(nil))

	result, err := store.Dispatch(Request{Kind: action.Set, Target: "$.name", Value: "ada"})
	require.NoError(t, err)
	require.Len(t, result.Ops, 1)
	assert.Empty(t, result.Failures)

	values, err := store.QueryOnce("$.name", nil)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "ada", values[0])
}

func TestDispatchAssignsContiguousIndexesPerRequest(t *testing.T) {
	store := New(savestate.New(nil))

	_, err := store.Dispatch(Request{Kind: action.Set, Target: "$.items", Value: []any{"a", "b"}})
	require.NoError(t, err)
	result, err := store.Dispatch(Request{Kind: action.Set, Target: "$.items[*]", Value: "x"})
	require.NoError(t, err)

	// $.items[*] against a two-element array fans out to two ops whose
	// indexes follow one another.
	require.Len(t, result.Ops, 2)
	assert.Equal(t, result.Ops[0].Index+1, result.Ops[1].Index)
}

func TestDispatchDeleteRootFails(t *testing.T) {
	store := New(savestate.New(nil))
	result, err := store.Dispatch(Request{Kind: action.Delete, Target: "$"})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
}

func TestMergeOpsDeliversToMatchingSubscription(t *testing.T) {
	store := New(savestate.New(nil))

	var mu sync.Mutex
	var seen [][]any
	received := make(chan struct{}, 8)

	cancel, err := store.Subscribe("$.counter", nil, func(values []any) {
		mu.Lock()
		seen = append(seen, values)
		mu.Unlock()
		received <- struct{}{}
	})
	require.NoError(t, err)
	defer cancel.Cancel()

	<-received // initial fire on subscribe

	remote := uuid.New()
	cp, err := jsonpath.Compile("$.counter", nil)
	require.NoError(t, err)
	mergeResult, err := store.MergeOps([]savestate.PendingOp{{
		ID:     osid.New(remote, 1),
		Action: action.ScalarAction{Kind: action.Set, Target: cp, Value: 1.0},
	}})
	require.NoError(t, err)
	require.Len(t, mergeResult.Ops, 1)

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("subscription did not fire after a matching merge")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, []any{1.0}, seen[1])
}

func TestSubscriptionDoesNotFireForUnrelatedPath(t *testing.T) {
	store := New(savestate.New(nil))

	received := make(chan struct{}, 8)
	cancel, err := store.Subscribe("$.a", nil, func([]any) { received <- struct{}{} })
	require.NoError(t, err)
	defer cancel.Cancel()
	<-received // initial fire

	_, err = store.Dispatch(Request{Kind: action.Set, Target: "$.b", Value: 1.0})
	require.NoError(t, err)

	select {
	case <-received:
		t.Fatal("subscription on $.a fired for a write to $.b")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelIsIdempotentAndStopsDelivery(t *testing.T) {
	store := New(savestate.New(nil))

	received := make(chan struct{}, 8)
	cancel, err := store.Subscribe("$.a", nil, func([]any) { received <- struct{}{} })
	require.NoError(t, err)
	<-received

	cancel.Cancel()
	cancel.Cancel() // idempotent

	_, err = store.Dispatch(Request{Kind: action.Set, Target: "$.a", Value: 1.0})
	require.NoError(t, err)

	select {
	case <-received:
		t.Fatal("cancelled subscription still fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func compiledKey(t *testing.T, name string) jsonpath.CompiledPath {
	t.Helper()
	cp, err := jsonpath.Compile("$."+name, nil)
	require.NoError(t, err)
	return cp
}

func TestCouldMatchExactKeyPrefix(t *testing.T) {
	cp := compiledKey(t, "a")
	assert.True(t, couldMatch(cp, binarypath.Encode(binarypath.Key("a"))))
	assert.False(t, couldMatch(cp, binarypath.Encode(binarypath.Key("b"))))
}

func TestCouldMatchAncestorWriteMatchesDescendantQuery(t *testing.T) {
	cp, err := jsonpath.Compile("$.a.b", nil)
	require.NoError(t, err)
	// A write to $.a (shorter than the query) conservatively matches.
	assert.True(t, couldMatch(cp, binarypath.Encode(binarypath.Key("a"))))
}

func TestCouldMatchWildcardAlwaysMatchesAtThatSegment(t *testing.T) {
	cp, err := jsonpath.Compile("$.items[*]", nil)
	require.NoError(t, err)
	assert.True(t, couldMatch(cp, binarypath.Encode(binarypath.Key("items"), binarypath.Int(0))))
	assert.True(t, couldMatch(cp, binarypath.Encode(binarypath.Key("items"), binarypath.Int(7))))
	assert.False(t, couldMatch(cp, binarypath.Encode(binarypath.Key("other"), binarypath.Int(0))))
}
