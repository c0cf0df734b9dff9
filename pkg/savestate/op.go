// Package savestate implements the operation log and save-point ladder
// described by spec §4.7: insert/rewind with causal replay, a logarithmic
// ladder of snapshot save-points, and peer metadata. SaveState is the
// single interface the rest of the store depends on; pkg/savestate holds
// the in-memory implementation, pkg/savestate/filestore a flat-file one.
package savestate

import (
	"github.com/mattsp1290/osmosis-store/pkg/action"
	"github.com/mattsp1290/osmosis-store/pkg/errors"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
)

// PendingOp is an already-Id-assigned action awaiting insertion — what
// Store.dispatch hands to SaveState.Insert, and what Rewind hands back as
// the "dropped" set so a caller can replay it.
type PendingOp struct {
	ID     osid.Id
	Action action.ScalarAction
}

// Op is one causal unit appended to the log exactly once — an action's
// compiled form, recorded alongside the Changes it produced.
type Op struct {
	ID      osid.Id
	Action  action.ScalarAction
	Changes []action.Change
}

// FailureRecord is a Failure attached to the Op that produced it, as kept
// in the log's parallel failures list.
type FailureRecord struct {
	OpID    osid.Id
	Failure errors.Failure
}

// StateSummary is the store's convergence commitment: the rolling hash
// plus the highest index observed per author (SPEC_FULL §13 promotes this
// to a first-class, loggable type rather than an anonymous tuple).
type StateSummary struct {
	Hash          osid.Hash
	LatestIndexes osid.LatestIndexes
}

// Clone returns a structurally independent copy.
func (s StateSummary) Clone() StateSummary {
	return StateSummary{Hash: s.Hash, LatestIndexes: s.LatestIndexes.Clone()}
}
