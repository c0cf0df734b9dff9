package osmstore

import (
	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/jsonpath"
)

// couldMatch implements spec §4.8's conservative over-approximation: cp
// could match changed iff, prefix by prefix (up to the shorter of the
// two), every segment either has variable intent or names the same
// key/index as changed's corresponding position. A segment run that ends
// before the other begins is itself conservatively treated as a match,
// since a write to an ancestor can change everything beneath it and a
// write beneath a queried ancestor changes the ancestor's composed value.
func couldMatch(cp jsonpath.CompiledPath, changed binarypath.Path) bool {
	indices, err := binarypath.Decode(changed)
	if err != nil {
		return false
	}
	n := len(cp.Segments)
	if len(indices) < n {
		n = len(indices)
	}
	for i := 0; i < n; i++ {
		seg := cp.Segments[i]
		idx := indices[i]
		switch seg.Kind {
		case jsonpath.SegKey:
			if !idx.IsString() || idx.Str() != seg.Key {
				return false
			}
		case jsonpath.SegIndex:
			if idx.IsString() || seg.Index >= 0 && int(idx.IntValue()) != seg.Index {
				return false
			}
		default:
			// Wildcard, multi-key/index, expr-index, slice, filter, or
			// recursive: variable intent, conservatively matches.
		}
	}
	return true
}
