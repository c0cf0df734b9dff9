package action

import (
	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/jsonsource"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
)

// ApplyChanges mutates dst with every change in order, attributing id to
// every value a Put or Touch writes. This is the bridge between the
// action compiler's pure, read-only Compile and an actual JsonSource
// mutation: SaveState calls it once per op during insert/rewind replay.
func ApplyChanges(dst jsonsource.MutableSource, changes []Change, id osid.Id) {
	for _, c := range changes {
		ApplyChange(dst, c, id)
	}
}

// ApplyChange applies a single Change to dst.
func ApplyChange(dst jsonsource.MutableSource, c Change, id osid.Id) {
	switch c.Kind {
	case ChangePut:
		growParentForWrite(dst, c.Path)
		jsonsource.DecomposeWrite(dst, c.Path, c.Value, &id)
	case ChangeDelete:
		applyDelete(dst, c.Path)
	case ChangeTouch:
		dst.AddIDToPath(c.Path, id)
	case ChangeMove:
		moveSubtree(dst, c.From, c.To)
		growParentForWrite(dst, c.To)
		shrinkParentAfterRemoval(dst, c.From)
	}
}

// growParentForWrite ensures path's parent structural marker (object key
// set or array length) accounts for path, extending it if necessary. A
// Put or a Move destination may target a not-yet-present key or a
// one-past-the-end array index; the action compiler's hole-filling already
// emitted the intervening Puts, so only path's own immediate parent slot
// ever needs to grow here.
func growParentForWrite(dst jsonsource.MutableSource, path binarypath.Path) {
	parentPath, last, ok, err := binarypath.Split(path)
	if !ok || err != nil {
		return
	}
	parent, exists := dst.GetByPath(parentPath)
	if !exists {
		return
	}
	if last.IsString() {
		if parent.Kind == jsonsource.KindObject && !parent.HasKey(last.Str()) {
			dst.SetByPath(parentPath, parent.WithKeyAdded(last.Str()), nil)
		}
		return
	}
	if parent.Kind == jsonsource.KindArray {
		idx := int(last.IntValue())
		if idx >= parent.Length {
			dst.SetByPath(parentPath, jsonsource.Array(idx+1), nil)
		}
	}
}

// shrinkParentAfterRemoval updates path's parent structural marker after
// path's value has been removed (by delete or by relocation via Move): an
// object loses the key outright; an array only shrinks when path named its
// trailing index — every other removal is expected to have already been
// compacted by the caller (Delete/Move always emit the shifting Moves
// before the final removal).
func shrinkParentAfterRemoval(dst jsonsource.MutableSource, path binarypath.Path) {
	parentPath, last, ok, err := binarypath.Split(path)
	if !ok || err != nil {
		return
	}
	parent, exists := dst.GetByPath(parentPath)
	if !exists {
		return
	}
	if last.IsString() {
		if parent.Kind == jsonsource.KindObject && parent.HasKey(last.Str()) {
			dst.SetByPath(parentPath, parent.WithKeyRemoved(last.Str()), nil)
		}
		return
	}
	if parent.Kind == jsonsource.KindArray {
		idx := int(last.IntValue())
		if idx == parent.Length-1 {
			dst.SetByPath(parentPath, jsonsource.Array(parent.Length-1), nil)
		}
	}
}

func applyDelete(dst jsonsource.MutableSource, path binarypath.Path) {
	dst.DeleteByPath(path)
	shrinkParentAfterRemoval(dst, path)
}

// moveSubtree relocates the value (and every id owning any node within
// it) from `from` to `to`, then removes `from`. Ids are relocated rather
// than unlinked: copy each node and its owning ids to the new path first,
// clear the id association at the old path, and only then delete — so
// OverlayJsonSource.DeleteByPath's recursive id-unlink finds nothing left
// to tombstone at the vacated location.
func moveSubtree(dst jsonsource.MutableSource, from, to binarypath.Path) {
	relocate(dst, from, to)
	dst.DeleteByPath(from)
}

func relocate(dst jsonsource.MutableSource, from, to binarypath.Path) {
	node, ok := dst.GetByPath(from)
	if !ok {
		return
	}
	ids := dst.GetIDsByPath(from)
	dst.SetByPath(to, node, nil)
	if len(ids) > 0 {
		dst.SetIDsByPath(to, ids)
	}
	dst.SetIDsByPath(from, nil)

	switch node.Kind {
	case jsonsource.KindArray:
		for i := 0; i < node.Length; i++ {
			relocate(dst, binarypath.Append(from, binarypath.Int(uint32(i))), binarypath.Append(to, binarypath.Int(uint32(i))))
		}
	case jsonsource.KindObject:
		for _, k := range node.Keys {
			relocate(dst, binarypath.Append(from, binarypath.Key(k)), binarypath.Append(to, binarypath.Key(k)))
		}
	}
}
