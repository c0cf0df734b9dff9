package savestate

import (
	"fmt"

	"github.com/mattsp1290/osmosis-store/pkg/jsonsource"
	"github.com/mattsp1290/osmosis-store/pkg/logging"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
)

// RestoredSavePoint is one ladder rung as reconstructed from durable
// storage — the same shape savePoint carries internally, exported so an
// on-disk backend (pkg/savestate/filestore) can hand a warm-started
// ladder back to InMemory without replaying every op since genesis.
type RestoredSavePoint struct {
	ID            osid.Id
	Width         int
	Hash          osid.Hash
	LatestIndexes osid.LatestIndexes
	Snapshot      *jsonsource.OverlayJsonSource
}

// Restore builds an InMemory whose save-point ladder is exactly points
// (oldest first, points[0] becoming the retained base) and whose live
// state is points' last entry with tail replayed on top of it. Used by
// on-disk backends to resume from their newest persisted save point
// instead of replaying the whole op history from genesis.
func Restore(log logging.Logger, points []RestoredSavePoint, tail []PendingOp, opts ...Option) (*InMemory, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("savestate: Restore requires at least one save point")
	}
	if log == nil {
		log = logging.NoOp()
	}

	savePoints := make([]*savePoint, len(points))
	for i, p := range points {
		savePoints[i] = &savePoint{
			ID:            p.ID,
			Width:         p.Width,
			Hash:          p.Hash,
			LatestIndexes: p.LatestIndexes.Clone(),
			Snapshot:      p.Snapshot,
		}
	}
	newest := savePoints[len(savePoints)-1]

	s := &InMemory{
		log:           log,
		hooks:         noopHooks{},
		savePoints:    savePoints,
		live:          jsonsource.New(newest.Snapshot),
		hash:          newest.Hash,
		latestIndexes: newest.LatestIndexes.Clone(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mu.Lock()
	s.applyBatch(tail)
	s.mu.Unlock()

	return s, nil
}
