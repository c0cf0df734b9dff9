package filestore

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/mattsp1290/osmosis-store/pkg/jsonsource"
	"github.com/mattsp1290/osmosis-store/pkg/logging"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
	"github.com/mattsp1290/osmosis-store/pkg/savestate"
)

const (
	metadataFile = "osmosis-metadata.msgpack"
	recentFile   = "osmosis-recent.msgpack"
	savePointExt = ".msgpack"
	savePointPre = "savepoint-"
)

// Option configures a Store at Open time.
type Option func(*Store)

// WithInnerOptions forwards savestate.Option values (e.g. WithHooks) to
// the wrapped InMemory core.
func WithInnerOptions(opts ...savestate.Option) Option {
	return func(s *Store) { s.innerOpts = append(s.innerOpts, opts...) }
}

// Store is the flat-file SaveState backend (spec §6/§9): an in-memory
// InMemory core for the hot path, with every save point, the op tail
// since the newest one, and peer metadata durably mirrored to dir via a
// background FileWriter.
type Store struct {
	dir string
	log logging.Logger

	mu    sync.Mutex
	inner *savestate.InMemory

	writer *FileWriter

	// persisted caches the hash last written to disk for each save point
	// id still on the ladder, so an Insert that doesn't change an older
	// rung skips re-serializing and re-writing its (potentially large)
	// snapshot file. Bounded so a very long-lived ladder can't grow this
	// without limit; eviction here only costs an extra write, never
	// correctness.
	persisted *lru.Cache[string, osid.Hash]

	innerOpts []savestate.Option
}

var _ savestate.SaveState = (*Store)(nil)

// Open warm-starts a Store from dir, creating it (and an empty genesis
// ladder) if it doesn't exist yet.
func Open(dir string, log logging.Logger, opts ...Option) (*Store, error) {
	if log == nil {
		log = logging.NoOp()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: creating %s: %w", dir, err)
	}

	s := &Store{dir: dir, log: log, writer: NewFileWriter(log)}
	for _, opt := range opts {
		opt(s)
	}

	cache, err := lru.New[string, osid.Hash](256)
	if err != nil {
		return nil, err
	}
	s.persisted = cache

	points, err := s.loadSavePoints()
	if err != nil {
		return nil, err
	}
	tail, err := s.loadRecent()
	if err != nil {
		return nil, err
	}
	meta, hasMeta, err := s.loadMetadata()
	if err != nil {
		return nil, err
	}

	for _, p := range points {
		s.persisted.Add(hexID(p.ID), p.Hash)
	}

	if len(points) == 0 {
		points = []savestate.RestoredSavePoint{{
			ID:            osid.Zero,
			Width:         4,
			Hash:          osid.ZeroHash,
			LatestIndexes: osid.LatestIndexes{},
			Snapshot:      jsonsource.New(nil),
		}}
	}

	inner, err := savestate.Restore(log, points, tail, s.innerOpts...)
	if err != nil {
		return nil, err
	}
	s.inner = inner
	if hasMeta {
		s.inner.SetMetadata(meta)
	}

	return s, nil
}

// loadSavePoints reads every savepoint-<hex>.msgpack file in dir,
// decoding them concurrently (golang.org/x/sync/errgroup) since each
// decode is independent CPU+I/O work, then returns them sorted oldest
// first.
func (s *Store) loadSavePoints() ([]savestate.RestoredSavePoint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), savePointPre) && strings.HasSuffix(e.Name(), savePointExt) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	points := make([]savestate.RestoredSavePoint, len(names))
	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			data, err := os.ReadFile(filepath.Join(s.dir, name))
			if err != nil {
				return err
			}
			p, err := unmarshalSavePoint(data)
			if err != nil {
				return fmt.Errorf("filestore: decoding %s: %w", name, err)
			}
			points[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(points, func(i, j int) bool { return osid.Less(points[i].ID, points[j].ID) })
	return points, nil
}

func (s *Store) loadRecent() ([]savestate.PendingOp, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, recentFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshalOps(data)
}

func (s *Store) loadMetadata() (any, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, metadataFile))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := unmarshalMetadata(data)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// hexID is the hex of BLAKE2b-256 over the id's binary form (16-byte
// author, then the big-endian u64 index).
func hexID(id osid.Id) string {
	var buf [24]byte
	copy(buf[:16], id.Author[:])
	binary.BigEndian.PutUint64(buf[16:], id.Index)
	sum := blake2b.Sum256(buf[:])
	return hex.EncodeToString(sum[:])
}

func (s *Store) savePointPath(id osid.Id) string {
	return filepath.Join(s.dir, savePointPre+hexID(id)+savePointExt)
}

// persistLadder mirrors the current ladder and op tail to disk: any save
// point whose hash changed (new, or grown from a merge) since the last
// write gets re-serialized; one that dropped off the ladder (compacted
// away or garbage collected) has its file removed; the recent-ops file is
// rewritten in full, since it's small by construction (bounded by
// savePointMinWidth) and a partial diff would not be worth the
// complexity.
func (s *Store) persistLadder() {
	infos := s.inner.SavePoints()
	live := make(map[string]bool, len(infos))

	for _, info := range infos {
		key := hexID(info.ID)
		live[key] = true
		if h, ok := s.persisted.Get(key); ok && h == info.Hash {
			continue
		}
		snapshot, ok := s.inner.SnapshotAt(info.ID)
		if !ok {
			continue
		}
		rec := encodeSavePoint(info.ID, info.Width, info.Hash, info.LatestIndexes, snapshot)
		data, err := marshalSavePoint(rec)
		if err != nil {
			s.log.Error("filestore: encoding save point", logging.Err(err))
			continue
		}
		s.writer.Write(s.savePointPath(info.ID), data)
		s.persisted.Add(key, info.Hash)
	}

	s.pruneStaleSavePoints(live)

	// The tail is only the ops applied after the newest save point — those
	// already folded into an earlier rung's snapshot must not be replayed
	// again on top of it (Restore applies tail on top of the newest
	// snapshot, so double-including an already-captured op would advance
	// the rolling hash past what that snapshot already committed to).
	newest := infos[len(infos)-1].ID
	afterNewest := s.inner.OpsRange(&newest, nil)
	ops := make([]savestate.PendingOp, 0, len(afterNewest))
	for _, op := range afterNewest {
		if osid.Equal(op.ID, newest) {
			continue
		}
		ops = append(ops, savestate.PendingOp{ID: op.ID, Action: op.Action})
	}
	if data, err := marshalOps(ops); err != nil {
		s.log.Error("filestore: encoding recent ops", logging.Err(err))
	} else {
		s.writer.Write(filepath.Join(s.dir, recentFile), data)
	}
}

func (s *Store) pruneStaleSavePoints(live map[string]bool) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, savePointPre) || !strings.HasSuffix(name, savePointExt) {
			continue
		}
		key := strings.TrimSuffix(strings.TrimPrefix(name, savePointPre), savePointExt)
		if !live[key] {
			_ = os.Remove(filepath.Join(s.dir, name))
			s.persisted.Remove(key)
		}
	}
}

func (s *Store) persistMetadata() {
	v := s.inner.Metadata()
	data, err := marshalMetadata(v)
	if err != nil {
		s.log.Error("filestore: encoding metadata", logging.Err(err))
		return
	}
	s.writer.Write(filepath.Join(s.dir, metadataFile), data)
}

// Source delegates straight to the in-memory core; filestore's durability
// work never touches the live tree directly.
func (s *Store) Source() jsonsource.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Source()
}

// Insert delegates to the in-memory core, then mirrors any resulting
// ladder/tail change to disk before returning.
func (s *Store) Insert(ops []savestate.PendingOp) (savestate.InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.inner.Insert(ops)
	if err != nil {
		return result, err
	}
	s.persistLadder()
	return result, nil
}

// OpsRange delegates to the in-memory core.
func (s *Store) OpsRange(lo, hi *osid.Id) []savestate.Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.OpsRange(lo, hi)
}

// FailuresRange delegates to the in-memory core.
func (s *Store) FailuresRange(lo, hi *osid.Id) []savestate.FailureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.FailuresRange(lo, hi)
}

// Rewind delegates to the in-memory core, then mirrors the (possibly
// shrunk) ladder and tail to disk.
func (s *Store) Rewind(id osid.Id) ([]savestate.PendingOp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped, err := s.inner.Rewind(id)
	if err != nil {
		return nil, err
	}
	s.persistLadder()
	return dropped, nil
}

// SavePoints delegates to the in-memory core.
func (s *Store) SavePoints() []savestate.SavePointInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.SavePoints()
}

// Metadata delegates to the in-memory core.
func (s *Store) Metadata() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Metadata()
}

// SetMetadata delegates to the in-memory core and persists the new blob.
func (s *Store) SetMetadata(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.SetMetadata(v)
	s.persistMetadata()
}

// InitMetadata delegates to the in-memory core and persists the result —
// the one SaveState method filestore.Open's own loadMetadata/SetMetadata
// call can't substitute for, since init() must run at most once across
// every process that ever opens dir.
func (s *Store) InitMetadata(init func() any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.inner.InitMetadata(init)
	s.persistMetadata()
	return v
}

// StateSummary delegates to the in-memory core.
func (s *Store) StateSummary() savestate.StateSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.StateSummary()
}

// GarbageCollect delegates to the in-memory core, then mirrors the
// flattened ladder to disk and prunes every save-point file that fell
// off the front.
func (s *Store) GarbageCollect(id osid.Id) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.inner.GarbageCollect(id); err != nil {
		return err
	}
	s.persistLadder()
	return nil
}

// Close flushes and stops the background writer. Safe to call once,
// typically via defer after Open.
func (s *Store) Close() error {
	return s.writer.Close()
}
