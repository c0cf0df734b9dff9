package savestate

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mattsp1290/osmosis-store/pkg/action"
	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/errors"
	"github.com/mattsp1290/osmosis-store/pkg/jsonsource"
	"github.com/mattsp1290/osmosis-store/pkg/logging"
	"github.com/mattsp1290/osmosis-store/pkg/metrics"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
)

type noopHooks struct{}

func (noopHooks) OpApplied(string)  {}
func (noopHooks) OpFailure(string)  {}
func (noopHooks) Rewind(int)        {}
func (noopHooks) SavePoints(int)    {}
func (noopHooks) SavePointMerged()  {}
func (noopHooks) GarbageCollected() {}

// Option configures an InMemory at construction time.
type Option func(*InMemory)

// WithHooks wires h's recorders into every Insert/Rewind/GarbageCollect
// call, typically backed by (*metrics.Metrics).AsHooks().
func WithHooks(h metrics.Hooks) Option {
	return func(s *InMemory) { s.hooks = h }
}

// InMemory is the in-memory SaveState backend (spec §6): everything lives
// in Go slices/maps for the op log and failures, and a chain of
// OverlayJsonSource snapshots for the save-point ladder. Safe for
// concurrent use — every method takes the single internal mutex, matching
// the spec's single-threaded-cooperative model (§5): callers never
// observe a partially-applied batch.
type InMemory struct {
	mu sync.Mutex

	log   logging.Logger
	hooks metrics.Hooks

	ops      []Op
	failures []FailureRecord

	savePoints []*savePoint
	live       *jsonsource.OverlayJsonSource

	hash          osid.Hash
	latestIndexes osid.LatestIndexes
	sinceLastSP   int

	metadata   any
	metadataSet bool
}

// New creates an empty InMemory SaveState: a single ZERO_ID save point
// over a genesis (parentless) overlay, and a live overlay atop it.
func New(log logging.Logger, opts ...Option) *InMemory {
	if log == nil {
		log = logging.NoOp()
	}
	base := jsonsource.New(nil)
	genesis := &savePoint{
		ID:            osid.Zero,
		Width:         savePointMinWidth,
		Hash:          osid.ZeroHash,
		LatestIndexes: osid.LatestIndexes{},
		Snapshot:      base,
	}
	s := &InMemory{
		log:           log,
		hooks:         noopHooks{},
		savePoints:    []*savePoint{genesis},
		live:          jsonsource.New(base),
		hash:          osid.ZeroHash,
		latestIndexes: osid.LatestIndexes{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ SaveState = (*InMemory)(nil)

// Source returns the live overlay. Callers must treat it as read-only and
// must not hold onto it across a mutating call — Insert/Rewind/GarbageCollect
// may swap s.live out for a new overlay entirely.
func (s *InMemory) Source() jsonsource.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *InMemory) opIndex(id osid.Id) (int, bool) {
	i := sort.Search(len(s.ops), func(i int) bool { return !osid.Less(s.ops[i].ID, id) })
	if i < len(s.ops) && osid.Equal(s.ops[i].ID, id) {
		return i, true
	}
	return i, false
}

// Insert implements spec §4.7's insert contract.
func (s *InMemory) Insert(pending []PendingOp) (InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deduped := make([]PendingOp, 0, len(pending))
	for _, p := range pending {
		if _, exists := s.opIndex(p.ID); !exists {
			deduped = append(deduped, p)
		}
	}
	sort.Slice(deduped, func(i, j int) bool { return osid.Less(deduped[i].ID, deduped[j].ID) })
	if len(deduped) == 0 {
		return InsertResult{}, nil
	}

	minNew := deduped[0].ID
	var toApply []PendingOp
	if len(s.ops) > 0 && !osid.Less(s.ops[len(s.ops)-1].ID, minNew) {
		existing := s.resetForInsertBefore(minNew)
		toApply = mergeByID(existing, deduped)
	} else {
		toApply = deduped
	}

	return s.applyBatch(toApply), nil
}

// resetForInsertBefore finds the newest save point strictly before
// minNew, resets live/hash/latestIndexes/savePoints to it, and returns
// every previously-applied op with Id > that save point's Id (the set
// that must be replayed alongside the new batch).
func (s *InMemory) resetForInsertBefore(minNew osid.Id) []PendingOp {
	j := len(s.savePoints) - 1
	for j > 0 && !osid.Less(s.savePoints[j].ID, minNew) {
		j--
	}
	sp := s.savePoints[j]

	replayStart := sort.Search(len(s.ops), func(i int) bool { return osid.Less(sp.ID, s.ops[i].ID) })
	replay := make([]PendingOp, 0, len(s.ops)-replayStart)
	for _, op := range s.ops[replayStart:] {
		replay = append(replay, PendingOp{ID: op.ID, Action: op.Action})
	}

	keepFailuresUpTo := sp.ID
	keptFailures := s.failures[:0:0]
	for _, f := range s.failures {
		if !osid.Less(keepFailuresUpTo, f.OpID) {
			keptFailures = append(keptFailures, f)
		}
	}

	s.ops = append([]Op(nil), s.ops[:replayStart]...)
	s.failures = keptFailures
	s.savePoints = s.savePoints[:j+1]
	s.live = jsonsource.New(sp.Snapshot)
	s.hash = sp.Hash
	s.latestIndexes = sp.LatestIndexes.Clone()
	s.sinceLastSP = 0

	return replay
}

func mergeByID(a, b []PendingOp) []PendingOp {
	out := make([]PendingOp, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if osid.Less(a[i].ID, b[j].ID) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// applyBatch applies ops (already in causal order) against s.live,
// updating the log, failures, rolling hash, and save-point ladder.
func (s *InMemory) applyBatch(ops []PendingOp) InsertResult {
	var result InsertResult
	for _, p := range ops {
		changes, failures := action.Compile(s.live, p.Action)
		action.ApplyChanges(s.live, changes, p.ID)

		s.ops = append(s.ops, Op{ID: p.ID, Action: p.Action, Changes: changes})
		s.hooks.OpApplied(p.Action.Kind.String())
		for _, f := range failures {
			ef := errors.Failure{Kind: f.Kind, OpID: p.ID, Path: pathString(f.Path), Reason: f.Reason}
			s.failures = append(s.failures, FailureRecord{OpID: p.ID, Failure: ef})
			result.Failures = append(result.Failures, ef)
			s.hooks.OpFailure(f.Kind.String())
		}
		result.Changes = append(result.Changes, changes...)

		s.hash = osid.NextHash(s.hash, p.ID)
		s.latestIndexes.Observe(p.ID)
		s.sinceLastSP++

		s.log.Info("op applied",
			logging.OpID(p.ID.String()),
			logging.Index(p.ID.Index),
			logging.StateHash(s.hash.String()),
			logging.Int("changes", len(changes)),
			logging.Int("failures", len(failures)),
		)

		s.considerSavePoint(p.ID)
	}
	return result
}

// pathString renders a binarypath.Path as a slash-separated string for
// diagnostics (errors.Failure.Path, log fields). Falls back to a raw hex
// dump if the path turns out to be malformed — this only ever feeds
// human-facing output, never a decision.
func pathString(p binarypath.Path) string {
	if len(p) == 0 {
		return "/"
	}
	indices, err := binarypath.Decode(p)
	if err != nil {
		return fmt.Sprintf("<malformed:%x>", []byte(p))
	}
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = idx.String()
	}
	return "/" + strings.Join(parts, "/")
}

// considerSavePoint implements the save-point ladder (spec §4.7): add a
// candidate once W0 ops have accrued since the last save point, then run
// a backward compaction pass.
func (s *InMemory) considerSavePoint(lastID osid.Id) {
	last := s.savePoints[len(s.savePoints)-1]
	if s.sinceLastSP < savePointMinWidth || !osid.Less(last.ID, lastID) {
		return
	}

	snapshot := s.live.Snapshot()
	newSP := &savePoint{
		ID:            lastID,
		Width:         savePointMinWidth,
		Hash:          s.hash,
		LatestIndexes: s.latestIndexes.Clone(),
		Snapshot:      snapshot,
	}
	s.savePoints = append(s.savePoints, newSP)
	s.live = jsonsource.New(snapshot)
	s.sinceLastSP = 0
	s.hooks.SavePoints(len(s.savePoints))

	s.log.Info("save point added",
		logging.SavePointID(lastID.String()),
		logging.StateHash(newSP.Hash.String()),
		logging.Int("ladder_size", len(s.savePoints)),
	)

	s.compactLadder()
}

// compactLadder runs spec §4.7's compaction pass: scanning from the tail
// backward, whenever sp[i].Width == sp[i+2].Width, sp[i+1] is removed:
// sp[i+2]'s overlay is folded into sp[i+1]'s (sp[i+1] is its overlay
// parent, the direction OverlayJsonSource.MergeChild supports), the
// combined overlay becomes sp[i+2]'s snapshot, whatever sat on top of
// sp[i+2] is reparented onto it, and sp[i]'s width doubles. Every
// surviving save point keeps its own ID, hash and composed state. This
// only triggers once a 4th save point exists — with exactly three, nothing
// merges (verified against the spec §8 scenario: 8 ops by one peer leaves
// three save points at widths [4,4,4]).
func (s *InMemory) compactLadder() {
	for {
		n := len(s.savePoints)
		if n < 4 {
			return
		}
		merged := false
		for i := n - 3; i >= 0; i-- {
			if s.savePoints[i].Width == s.savePoints[i+2].Width {
				folded := s.savePoints[i+1].Snapshot
				folded.MergeChild(s.savePoints[i+2].Snapshot)
				s.savePoints[i+2].Snapshot = folded
				if i+3 < len(s.savePoints) {
					s.savePoints[i+3].Snapshot.Reparent(folded)
				} else {
					s.live.Reparent(folded)
				}
				s.savePoints[i].Width *= 2

				s.log.Info("save point merged",
					logging.SavePointID(s.savePoints[i+1].ID.String()),
					logging.Int("new_width", s.savePoints[i].Width),
				)

				s.savePoints = append(s.savePoints[:i+1], s.savePoints[i+2:]...)
				s.hooks.SavePointMerged()
				s.hooks.SavePoints(len(s.savePoints))
				merged = true
				break
			}
		}
		if !merged {
			return
		}
	}
}

// OpsRange returns ops with lo <= Id <= hi (either bound optional).
func (s *InMemory) OpsRange(lo, hi *osid.Id) []Op {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Op
	for _, op := range s.ops {
		if lo != nil && osid.Less(op.ID, *lo) {
			continue
		}
		if hi != nil && osid.Less(*hi, op.ID) {
			break
		}
		out = append(out, op)
	}
	return out
}

// FailuresRange is OpsRange's counterpart for failure records.
func (s *InMemory) FailuresRange(lo, hi *osid.Id) []FailureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []FailureRecord
	for _, f := range s.failures {
		if lo != nil && osid.Less(f.OpID, *lo) {
			continue
		}
		if hi != nil && osid.Less(*hi, f.OpID) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Rewind implements spec §4.7's rewind contract.
func (s *InMemory) Rewind(id osid.Id) ([]PendingOp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := -1
	for i := len(s.savePoints) - 1; i >= 0; i-- {
		if !osid.Less(id, s.savePoints[i].ID) {
			j = i
			break
		}
	}
	if j < 0 {
		return nil, errors.ErrRewindPastOldestSavePoint
	}
	sp := s.savePoints[j]

	dropStart := sort.Search(len(s.ops), func(i int) bool { return osid.Less(id, s.ops[i].ID) })
	dropped := make([]PendingOp, 0, len(s.ops)-dropStart)
	for _, op := range s.ops[dropStart:] {
		dropped = append(dropped, PendingOp{ID: op.ID, Action: op.Action})
	}

	replayStart := sort.Search(len(s.ops), func(i int) bool { return osid.Less(sp.ID, s.ops[i].ID) })
	replay := make([]PendingOp, 0, dropStart-replayStart)
	for _, op := range s.ops[replayStart:dropStart] {
		replay = append(replay, PendingOp{ID: op.ID, Action: op.Action})
	}

	keptFailures := s.failures[:0:0]
	for _, f := range s.failures {
		if !osid.Less(sp.ID, f.OpID) {
			keptFailures = append(keptFailures, f)
		}
	}

	s.ops = append([]Op(nil), s.ops[:replayStart]...)
	s.failures = keptFailures
	s.savePoints = s.savePoints[:j+1]
	s.live = jsonsource.New(sp.Snapshot)
	s.hash = sp.Hash
	s.latestIndexes = sp.LatestIndexes.Clone()
	s.sinceLastSP = 0

	s.applyBatch(replay)
	s.hooks.Rewind(len(dropped))

	s.log.Info("rewound",
		logging.StateHash(s.hash.String()),
		logging.Int("dropped_ops", len(dropped)),
	)

	return dropped, nil
}

// SavePoints returns the ordered ladder.
func (s *InMemory) SavePoints() []SavePointInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SavePointInfo, len(s.savePoints))
	for i, sp := range s.savePoints {
		out[i] = sp.info()
	}
	return out
}

// SnapshotAt returns the frozen overlay for the save point with the given
// ID, for a backend that needs to serialize a ladder rung (e.g.
// pkg/savestate/filestore). The returned overlay must be treated as
// read-only and not retained across a mutating call, same as Source.
func (s *InMemory) SnapshotAt(id osid.Id) (*jsonsource.OverlayJsonSource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sp := range s.savePoints {
		if osid.Equal(sp.ID, id) {
			return sp.Snapshot, true
		}
	}
	return nil, false
}

// Metadata returns the opaque blob, or nil if unset.
func (s *InMemory) Metadata() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata
}

// SetMetadata replaces the metadata blob.
func (s *InMemory) SetMetadata(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = v
	s.metadataSet = true
}

// InitMetadata runs init and stores its result iff metadata hasn't been
// set yet.
func (s *InMemory) InitMetadata(init func() any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.metadataSet {
		s.metadata = init()
		s.metadataSet = true
	}
	return s.metadata
}

// StateSummary returns {hash, latestIndexes}.
func (s *InMemory) StateSummary() StateSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StateSummary{Hash: s.hash, LatestIndexes: s.latestIndexes.Clone()}
}

// GarbageCollect implements spec §4.7's garbage_collect contract: drop
// ops/failures/save-points strictly below id, flattening the save point
// at or just above id into a new, parentless base.
func (s *InMemory) GarbageCollect(id osid.Id) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := 0
	for j < len(s.savePoints)-1 && osid.Less(s.savePoints[j].ID, id) {
		j++
	}
	sp := s.savePoints[j]
	flat := flattenOverlay(sp.Snapshot)
	sp.Snapshot = flat
	s.savePoints = s.savePoints[j:]

	if len(s.savePoints) > 1 {
		s.savePoints[1].Snapshot.Reparent(flat)
	} else {
		s.live.Reparent(flat)
	}

	cutoff := sort.Search(len(s.ops), func(i int) bool { return !osid.Less(s.ops[i].ID, sp.ID) })
	s.ops = append([]Op(nil), s.ops[cutoff:]...)

	keptFailures := s.failures[:0:0]
	for _, f := range s.failures {
		if !osid.Less(f.OpID, sp.ID) {
			keptFailures = append(keptFailures, f)
		}
	}
	s.failures = keptFailures
	s.hooks.GarbageCollected()

	s.log.Info("garbage collected", logging.SavePointID(sp.ID.String()))
	return nil
}
