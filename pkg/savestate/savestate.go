package savestate

import (
	"github.com/mattsp1290/osmosis-store/pkg/action"
	"github.com/mattsp1290/osmosis-store/pkg/errors"
	"github.com/mattsp1290/osmosis-store/pkg/jsonsource"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
)

// InsertResult is the outcome of a batch Insert: every Change produced by
// every op in the batch, plus every Failure recorded against them.
type InsertResult struct {
	Changes  []action.Change
	Failures []errors.Failure
}

// SaveState is the log + snapshot-ladder contract consumed by the Store
// (spec §4.7 / §6). The in-memory backend (memory.go) and the flat-file
// backend (pkg/savestate/filestore) both implement it.
type SaveState interface {
	// Source returns a read-only view of the live tree, as it stands after
	// every applied op. Store uses it to compile and evaluate JSONPath
	// queries before an Insert call mutates anything. The returned Source
	// must not be retained across a call to Insert/Rewind/GarbageCollect —
	// those may replace the underlying overlay entirely.
	Source() jsonsource.Source

	// Insert dedups by Id, sorts by Id, rewinds and replays if any op's Id
	// is not strictly after the current tail, then applies the batch in
	// causal order, updating the rolling state hash per op.
	Insert(ops []PendingOp) (InsertResult, error)

	// OpsRange returns the sorted slice of the log between lo and hi
	// (inclusive), bounds optional.
	OpsRange(lo, hi *osid.Id) []Op

	// FailuresRange is OpsRange's counterpart for recorded failures.
	FailuresRange(lo, hi *osid.Id) []FailureRecord

	// Rewind resets the live state to the nearest save point with
	// ID <= id, drops every op with Id > id, and replays ops with
	// sp.ID < Id <= id. It returns the dropped ops (Id > id) so the
	// caller may choose to replay them. Returns
	// errors.ErrRewindPastOldestSavePoint if no qualifying save point
	// exists.
	Rewind(id osid.Id) ([]PendingOp, error)

	// SavePoints returns the ordered ladder of save points.
	SavePoints() []SavePointInfo

	// Metadata returns the opaque peer-supplied blob, or nil if unset.
	Metadata() any

	// SetMetadata replaces the metadata blob.
	SetMetadata(v any)

	// InitMetadata runs init and stores its result iff no metadata has
	// been set yet, then returns the (possibly freshly-initialized)
	// metadata. Used by on-disk backends to lazily create a peer id on
	// first run.
	InitMetadata(init func() any) any

	// StateSummary returns the current {hash, latestIndexes}.
	StateSummary() StateSummary

	// GarbageCollect drops ops, failures, and save points strictly below
	// id; the save point at or just above id becomes the new base.
	GarbageCollect(id osid.Id) error
}
