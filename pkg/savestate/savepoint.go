package savestate

import (
	"github.com/mattsp1290/osmosis-store/pkg/jsonsource"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
)

// savePointMinWidth is the ladder's minimum width W0 (spec §4.7).
const savePointMinWidth = 4

// savePoint is a checkpoint of the live JsonSource after applying every op
// with Id <= ID. Width is the ladder's power-of-two-style merge weight;
// Snapshot is the frozen overlay itself, chained to the previous
// save-point's Snapshot as its parent (spec §9's "arena with a parent
// index" — here a parent *pointer instead, since Go overlays are
// heap-allocated, not arena-indexed, but the reparent/mergeChild
// operations are the same O(1)/O(entries) shape the design notes call
// for).
type savePoint struct {
	ID            osid.Id
	Width         int
	Hash          osid.Hash
	LatestIndexes osid.LatestIndexes
	Snapshot      *jsonsource.OverlayJsonSource
}

// SavePointInfo is the read-only view of a save point exposed to callers —
// it deliberately omits the internal overlay pointer.
type SavePointInfo struct {
	ID            osid.Id
	Width         int
	Hash          osid.Hash
	LatestIndexes osid.LatestIndexes
}

func (sp *savePoint) info() SavePointInfo {
	return SavePointInfo{ID: sp.ID, Width: sp.Width, Hash: sp.Hash, LatestIndexes: sp.LatestIndexes.Clone()}
}

// flattenOverlay returns a brand-new, parentless overlay holding the full
// composed state that o (plus its ancestor chain) represents. Used by
// garbage_collect to cut a save point loose from everything below it
// without losing any inherited data. Non-destructive: o and its ancestors
// are left exactly as they were (only Snapshot copies are merged).
func flattenOverlay(o *jsonsource.OverlayJsonSource) *jsonsource.OverlayJsonSource {
	if o.Parent() == nil {
		return o.Snapshot()
	}
	parent, ok := o.Parent().(*jsonsource.OverlayJsonSource)
	if !ok {
		// A non-overlay parent can only be the never-written genesis
		// source, which has no data of its own to flatten.
		return o.Snapshot()
	}
	flat := flattenOverlay(parent)
	flat.MergeChild(o.Snapshot())
	return flat
}
