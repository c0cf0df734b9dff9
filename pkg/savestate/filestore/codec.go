package filestore

import (
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mattsp1290/osmosis-store/pkg/action"
	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/jsonsource"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
	"github.com/mattsp1290/osmosis-store/pkg/savestate"
)

// idRecord is osid.Id's wire form — uuid.UUID round-trips through msgpack
// fine as a [16]byte array, but spelling it out as a string keeps the
// on-disk files legible with a generic msgpack viewer, which matters for
// a format spec §9 expects an operator to be able to inspect by hand.
type idRecord struct {
	Author string
	Index  uint64
}

func encodeID(id osid.Id) idRecord {
	return idRecord{Author: id.Author.String(), Index: id.Index}
}

func decodeID(r idRecord) (osid.Id, error) {
	author, err := uuid.Parse(r.Author)
	if err != nil {
		return osid.Id{}, err
	}
	return osid.Id{Author: author, Index: r.Index}, nil
}

// opRecord is PendingOp's wire form.
type opRecord struct {
	ID     idRecord
	Action action.ScalarAction
}

func encodeOps(ops []savestate.PendingOp) []opRecord {
	out := make([]opRecord, len(ops))
	for i, op := range ops {
		out[i] = opRecord{ID: encodeID(op.ID), Action: op.Action}
	}
	return out
}

func decodeOps(records []opRecord) ([]savestate.PendingOp, error) {
	out := make([]savestate.PendingOp, len(records))
	for i, r := range records {
		id, err := decodeID(r.ID)
		if err != nil {
			return nil, err
		}
		out[i] = savestate.PendingOp{ID: id, Action: r.Action}
	}
	return out, nil
}

func marshalOps(ops []savestate.PendingOp) ([]byte, error) {
	return msgpack.Marshal(encodeOps(ops))
}

func unmarshalOps(data []byte) ([]savestate.PendingOp, error) {
	var records []opRecord
	if err := msgpack.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return decodeOps(records)
}

// entryRecord is one (path, value, owning ids) triple flattened out of a
// save point's composed overlay chain.
type entryRecord struct {
	Path []byte
	Node jsonsource.Node
	IDs  []idRecord
}

// savePointRecord is savestate.RestoredSavePoint's wire form: the ladder
// metadata plus every entry needed to rebuild a parentless overlay that
// reproduces the save point's full composed state.
type savePointRecord struct {
	ID            idRecord
	Width         int
	Hash          [32]byte
	LatestIndexes []idRecord // one entry per author, Index = that author's latest
	Entries       []entryRecord
}

func encodeLatestIndexes(li osid.LatestIndexes) []idRecord {
	out := make([]idRecord, 0, len(li))
	for author, index := range li {
		out = append(out, idRecord{Author: author.String(), Index: index})
	}
	return out
}

func decodeLatestIndexes(records []idRecord) (osid.LatestIndexes, error) {
	li := osid.LatestIndexes{}
	for _, r := range records {
		id, err := decodeID(r)
		if err != nil {
			return nil, err
		}
		li.Observe(id)
	}
	return li, nil
}

// flattenSavePoint walks sp's full composed state (its overlay chain,
// already merged by OverlayJsonSource.IDsAfter/GetByPath) into a flat
// entry list suitable for serialization.
func flattenSavePoint(sp *jsonsource.OverlayJsonSource) []entryRecord {
	idsByPath := make(map[string][]idRecord)
	paths := make(map[string]binarypath.Path)

	for id, p := range sp.IDsAfter(osid.Zero) {
		key := string(p)
		paths[key] = p
		idsByPath[key] = append(idsByPath[key], encodeID(id))
	}
	paths[string(binarypath.Root)] = binarypath.Root

	entries := make([]entryRecord, 0, len(paths))
	for key, p := range paths {
		node, ok := sp.GetByPath(p)
		if !ok {
			continue
		}
		entries = append(entries, entryRecord{Path: []byte(p), Node: node, IDs: idsByPath[key]})
	}
	return entries
}

// rebuildSavePoint reconstructs a brand-new, parentless overlay from a
// flat entry list — the inverse of flattenSavePoint.
func rebuildSavePoint(entries []entryRecord) (*jsonsource.OverlayJsonSource, error) {
	overlay := jsonsource.New(nil)
	for _, e := range entries {
		overlay.SetByPath(binarypath.Path(e.Path), e.Node, nil)
		if len(e.IDs) == 0 {
			continue
		}
		ids := make([]osid.Id, len(e.IDs))
		for i, r := range e.IDs {
			id, err := decodeID(r)
			if err != nil {
				return nil, err
			}
			ids[i] = id
		}
		overlay.SetIDsByPath(binarypath.Path(e.Path), ids)
	}
	return overlay, nil
}

func encodeSavePoint(id osid.Id, width int, hash osid.Hash, latest osid.LatestIndexes, snapshot *jsonsource.OverlayJsonSource) savePointRecord {
	return savePointRecord{
		ID:            encodeID(id),
		Width:         width,
		Hash:          hash,
		LatestIndexes: encodeLatestIndexes(latest),
		Entries:       flattenSavePoint(snapshot),
	}
}

func marshalSavePoint(rec savePointRecord) ([]byte, error) {
	return msgpack.Marshal(rec)
}

func unmarshalSavePoint(data []byte) (savestate.RestoredSavePoint, error) {
	var rec savePointRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return savestate.RestoredSavePoint{}, err
	}
	id, err := decodeID(rec.ID)
	if err != nil {
		return savestate.RestoredSavePoint{}, err
	}
	latest, err := decodeLatestIndexes(rec.LatestIndexes)
	if err != nil {
		return savestate.RestoredSavePoint{}, err
	}
	snapshot, err := rebuildSavePoint(rec.Entries)
	if err != nil {
		return savestate.RestoredSavePoint{}, err
	}
	return savestate.RestoredSavePoint{
		ID:            id,
		Width:         rec.Width,
		Hash:          osid.Hash(rec.Hash),
		LatestIndexes: latest,
		Snapshot:      snapshot,
	}, nil
}

// metadataRecord wraps the opaque peer metadata blob for msgpack, which
// cannot marshal a bare `any` at the top level when it might be nil.
type metadataRecord struct {
	Value any
}

func marshalMetadata(v any) ([]byte, error) {
	return msgpack.Marshal(metadataRecord{Value: v})
}

func unmarshalMetadata(data []byte) (any, error) {
	var rec metadataRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec.Value, nil
}
