// Package jsonsource implements the path-addressed JSON tree storage
// described by spec §4.4: a read/write JsonSource interface plus a
// copy-on-write OverlayJsonSource with tombstones, layered atop an optional
// parent.
package jsonsource

import (
	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
)

// Source is the read-only view over a decomposed JSON tree.
type Source interface {
	// GetByPath resolves a path to its node. A tombstoned or never-written
	// path (other than root) returns (Node{}, false).
	GetByPath(p binarypath.Path) (Node, bool)

	// GetByID resolves an Id to the node at its current path.
	GetByID(id osid.Id) (Node, bool)

	// GetPathByID resolves an Id to its current path, if the Id still owns
	// one (not tombstoned).
	GetPathByID(id osid.Id) (binarypath.Path, bool)

	// GetIDsByPath returns the ids currently "owning" path p.
	GetIDsByPath(p binarypath.Path) []osid.Id

	// IDsAfter lazily scans (Id, Path) pairs for every id strictly greater
	// than after, in Id order.
	IDsAfter(after osid.Id) func(yield func(osid.Id, binarypath.Path) bool)
}

// MutableSource adds the write operations.
type MutableSource interface {
	Source

	// SetByPath writes node at p, optionally attributing an owning id.
	SetByPath(p binarypath.Path, node Node, id *osid.Id)

	// DeleteByPath removes the subtree at p (tombstoning if a parent layer
	// is present) and returns the node that was there, if any.
	DeleteByPath(p binarypath.Path) (Node, bool)

	// AddIDToPath records id as (additionally) owning path p.
	AddIDToPath(p binarypath.Path, id osid.Id)

	// SetIDsByPath replaces the full id set owning path p.
	SetIDsByPath(p binarypath.Path, ids []osid.Id)
}

// containsID reports whether ids contains id.
func containsID(ids []osid.Id, id osid.Id) bool {
	for _, existing := range ids {
		if osid.Equal(existing, id) {
			return true
		}
	}
	return false
}

func addID(ids []osid.Id, id osid.Id) []osid.Id {
	if containsID(ids, id) {
		return ids
	}
	return append(append([]osid.Id(nil), ids...), id)
}
