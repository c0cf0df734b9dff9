package jsonsource

import (
	"sort"

	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
	"github.com/mattsp1290/osmosis-store/pkg/sortedmap"
)

func pathLess(a, b binarypath.Path) bool { return binarypath.Compare(a, b) < 0 }

type valueEntry struct {
	node Node
	tomb bool
}

type pathEntry struct {
	path binarypath.Path
	tomb bool
}

// OverlayJsonSource is a copy-on-write layer over an optional parent
// Source, with tombstones shadowing parent entries until merged. Every
// concrete JsonSource in this package is an OverlayJsonSource; the
// root-most one simply has a nil parent (spec §4.4).
type OverlayJsonSource struct {
	parent      Source
	pathToValue *sortedmap.Map[binarypath.Path, valueEntry]
	pathToIds   *sortedmap.Map[binarypath.Path, []osid.Id]
	idToPath    *sortedmap.Map[osid.Id, pathEntry]
}

// New creates an overlay atop parent (which may be nil for the genesis
// source).
func New(parent Source) *OverlayJsonSource {
	return &OverlayJsonSource{
		parent:      parent,
		pathToValue: sortedmap.New[binarypath.Path, valueEntry](pathLess),
		pathToIds:   sortedmap.New[binarypath.Path, []osid.Id](pathLess),
		idToPath:    sortedmap.New[osid.Id, pathEntry](osid.Less),
	}
}

var _ MutableSource = (*OverlayJsonSource)(nil)

// Parent returns the overlay's parent source, or nil if this is the root.
func (o *OverlayJsonSource) Parent() Source { return o.parent }

// Reparent rewrites the overlay's parent pointer — used when a save-point
// in the middle of the ladder is merged away and its neighbors must point
// through the merged chain instead.
func (o *OverlayJsonSource) Reparent(parent Source) { o.parent = parent }

func (o *OverlayJsonSource) GetByPath(p binarypath.Path) (Node, bool) {
	if e, ok := o.pathToValue.Get(p); ok {
		if e.tomb {
			return Node{}, false
		}
		return e.node, true
	}
	if o.parent != nil {
		return o.parent.GetByPath(p)
	}
	if len(p) == 0 {
		return EmptyObject(), true
	}
	return Node{}, false
}

func (o *OverlayJsonSource) GetByID(id osid.Id) (Node, bool) {
	p, ok := o.GetPathByID(id)
	if !ok {
		return Node{}, false
	}
	return o.GetByPath(p)
}

func (o *OverlayJsonSource) GetPathByID(id osid.Id) (binarypath.Path, bool) {
	if e, ok := o.idToPath.Get(id); ok {
		if e.tomb {
			return nil, false
		}
		return e.path, true
	}
	if o.parent != nil {
		return o.parent.GetPathByID(id)
	}
	return nil, false
}

func (o *OverlayJsonSource) GetIDsByPath(p binarypath.Path) []osid.Id {
	if ids, ok := o.pathToIds.Get(p); ok {
		return ids
	}
	if o.parent != nil {
		return o.parent.GetIDsByPath(p)
	}
	return nil
}

// mergedIDEntries composes self's idToPath over the full ancestor chain,
// self taking priority (including tombstones, which shadow a live parent
// entry).
func (o *OverlayJsonSource) mergedIDEntries() map[osid.Id]pathEntry {
	merged := make(map[osid.Id]pathEntry)
	if o.parent != nil {
		for id, p := range o.parent.IDsAfter(osid.Zero) {
			merged[id] = pathEntry{path: p}
		}
	}
	o.idToPath.Range(func(id osid.Id, e pathEntry) bool {
		merged[id] = e
		return true
	})
	return merged
}

func (o *OverlayJsonSource) IDsAfter(after osid.Id) func(yield func(osid.Id, binarypath.Path) bool) {
	return func(yield func(osid.Id, binarypath.Path) bool) {
		merged := o.mergedIDEntries()
		ids := make([]osid.Id, 0, len(merged))
		for id := range merged {
			if osid.Less(after, id) {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return osid.Less(ids[i], ids[j]) })
		for _, id := range ids {
			e := merged[id]
			if e.tomb {
				continue
			}
			if !yield(id, e.path) {
				return
			}
		}
	}
}

func (o *OverlayJsonSource) SetByPath(p binarypath.Path, node Node, id *osid.Id) {
	o.pathToValue.Set(p, valueEntry{node: node})
	if id != nil {
		o.AddIDToPath(p, *id)
	}
}

func (o *OverlayJsonSource) AddIDToPath(p binarypath.Path, id osid.Id) {
	existing := o.GetIDsByPath(p)
	o.pathToIds.Set(p, addID(existing, id))
	o.idToPath.Set(id, pathEntry{path: p})
}

func (o *OverlayJsonSource) SetIDsByPath(p binarypath.Path, ids []osid.Id) {
	stored := append([]osid.Id(nil), ids...)
	o.pathToIds.Set(p, stored)
	for _, id := range stored {
		o.idToPath.Set(id, pathEntry{path: p})
	}
}

// DeleteByPath implements spec §4.4's three-step overlay delete: recurse
// into descendants first, unlink every id that owned the subtree
// (recursively — SPEC_FULL §13 resolves the source's "TODO: unlink ids of
// removed subtrees" by doing this unconditionally), then tombstone or
// remove the path itself depending on whether a parent is present.
func (o *OverlayJsonSource) DeleteByPath(p binarypath.Path) (Node, bool) {
	node, existed := o.GetByPath(p)
	if !existed {
		return Node{}, false
	}
	o.deleteRecursive(p, node)
	return node, true
}

func (o *OverlayJsonSource) deleteRecursive(p binarypath.Path, node Node) {
	switch node.Kind {
	case KindArray:
		for i := 0; i < node.Length; i++ {
			childPath := binarypath.Append(p, binarypath.Int(uint32(i)))
			if childNode, ok := o.GetByPath(childPath); ok {
				o.deleteRecursive(childPath, childNode)
			}
		}
	case KindObject:
		for _, k := range node.Keys {
			childPath := binarypath.Append(p, binarypath.Key(k))
			if childNode, ok := o.GetByPath(childPath); ok {
				o.deleteRecursive(childPath, childNode)
			}
		}
	}

	for _, id := range o.GetIDsByPath(p) {
		o.idToPath.Set(id, pathEntry{tomb: true})
	}
	o.pathToIds.Set(p, nil)

	if o.parent != nil {
		o.pathToValue.Set(p, valueEntry{tomb: true})
	} else {
		o.pathToValue.Delete(p)
	}
}

// MergeChild folds child's three maps into o (o is child's current
// parent), last-write-wins. Per spec, a tombstone in child causes o to
// drop the key outright rather than retain a tombstone marker — valid
// because merges fold bottom-up toward the base of the save-point ladder.
// After the merge, child is reset to an empty, parentless overlay and must
// not be used again.
func (o *OverlayJsonSource) MergeChild(child *OverlayJsonSource) {
	child.pathToValue.Range(func(p binarypath.Path, e valueEntry) bool {
		if e.tomb {
			o.pathToValue.Delete(p)
		} else {
			o.pathToValue.Set(p, e)
		}
		return true
	})
	child.pathToIds.Range(func(p binarypath.Path, ids []osid.Id) bool {
		if ids == nil {
			o.pathToIds.Delete(p)
		} else {
			o.pathToIds.Set(p, ids)
		}
		return true
	})
	child.idToPath.Range(func(id osid.Id, e pathEntry) bool {
		if e.tomb {
			o.idToPath.Delete(id)
		} else {
			o.idToPath.Set(id, e)
		}
		return true
	})

	child.parent = nil
	child.pathToValue = sortedmap.New[binarypath.Path, valueEntry](pathLess)
	child.pathToIds = sortedmap.New[binarypath.Path, []osid.Id](pathLess)
	child.idToPath = sortedmap.New[osid.Id, pathEntry](osid.Less)
}

// Snapshot returns a structurally independent copy of this overlay's own
// (non-parent) maps — used by the save-point ladder to freeze a point in
// time without holding live references into the mutable working overlay.
func (o *OverlayJsonSource) Snapshot() *OverlayJsonSource {
	clone := &OverlayJsonSource{
		parent:      o.parent,
		pathToValue: o.pathToValue.Clone(),
		pathToIds:   o.pathToIds.Clone(),
		idToPath:    o.idToPath.Clone(),
	}
	return clone
}
