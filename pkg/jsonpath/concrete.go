package jsonpath

import "github.com/mattsp1290/osmosis-store/pkg/binarypath"

// FromConcretePath builds a singular CompiledPath (SegKey/SegIndex only)
// from an already-decoded binarypath.Path — the inverse of Resolve. Used
// by Store.Dispatch once Query has expanded a wildcarded/multi-segment
// path into concrete candidates that each need their own anchored,
// singular target.
func FromConcretePath(p binarypath.Path) (CompiledPath, error) {
	indices, err := binarypath.Decode(p)
	if err != nil {
		return CompiledPath{}, err
	}
	segments := make([]Segment, len(indices))
	for i, idx := range indices {
		if idx.IsString() {
			segments[i] = Segment{Kind: SegKey, Key: idx.Str()}
		} else {
			segments[i] = Segment{Kind: SegIndex, Index: int(idx.IntValue())}
		}
	}
	return CompiledPath{Segments: segments}, nil
}
