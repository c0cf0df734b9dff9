package osmstore

import (
	"sync/atomic"

	"github.com/mattsp1290/osmosis-store/pkg/jsonpath"
)

// Callback receives the current values matched by a subscription's query —
// always a list, even for a singular path (spec §6: "never a single
// value").
type Callback func(values []any)

// subscription is a registered live query (spec §4.9): a compiled path plus
// the callback to invoke whenever merge_ops touches a path it could match.
type subscription struct {
	id        uint64
	compiled  jsonpath.CompiledPath
	callback  Callback
	cancelled atomic.Bool
}

// Cancellation is the handle returned by Subscribe. Cancel is synchronous
// and idempotent (spec §5): once it returns, the callback will not fire
// again, though a delivery already in flight when Cancel is called is
// allowed to complete (no partial results, no panic either way).
type Cancellation struct {
	store *Store
	sub   *subscription
}

// Cancel unregisters the subscription. Safe to call more than once.
func (c Cancellation) Cancel() {
	if c.sub.cancelled.CompareAndSwap(false, true) {
		c.store.removeSubscription(c.sub.id)
	}
}
