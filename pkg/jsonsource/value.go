package jsonsource

import (
	"sort"

	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
)

// DecomposeWrite recursively writes a plain Go JSON value (as produced by
// json.Unmarshal into interface{}: nil, bool, float64, string,
// []interface{}, map[string]interface{}) into dst at basePath, attributing
// id (if non-nil) to every node it writes. This is how a composite Put
// payload (e.g. Set "$.foo" = {"a":1,"b":[2,3]}) expands into the
// decomposed, path-addressed tree.
func DecomposeWrite(dst MutableSource, basePath binarypath.Path, v any, id *osid.Id) {
	switch val := v.(type) {
	case nil:
		dst.SetByPath(basePath, Null(), id)
	case bool:
		dst.SetByPath(basePath, Bool(val), id)
	case float64:
		dst.SetByPath(basePath, Number(val), id)
	case int:
		dst.SetByPath(basePath, Number(float64(val)), id)
	case string:
		dst.SetByPath(basePath, String(val), id)
	case []any:
		dst.SetByPath(basePath, Array(len(val)), id)
		for i, child := range val {
			DecomposeWrite(dst, binarypath.Append(basePath, binarypath.Int(uint32(i))), child, id)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dst.SetByPath(basePath, Object(keys), id)
		for _, k := range keys {
			DecomposeWrite(dst, binarypath.Append(basePath, binarypath.Key(k)), val[k], id)
		}
	default:
		// Unrecognized Go type: write JSON null rather than panic; callers
		// are expected to pass values that
		// round-tripped through encoding/json.
		dst.SetByPath(basePath, Null(), id)
	}
}

// ComposeRead serializes the subtree at basePath in src back into a plain
// Go JSON value, walking children via the structural markers. Used by
// Copy (to snapshot a source subtree before writing it elsewhere) and by
// query evaluation (to materialize a matched path's value).
func ComposeRead(src Source, basePath binarypath.Path) (any, bool) {
	node, ok := src.GetByPath(basePath)
	if !ok {
		return nil, false
	}
	switch node.Kind {
	case KindNull:
		return nil, true
	case KindBool:
		return node.Bool, true
	case KindNumber:
		return node.Number, true
	case KindString:
		return node.Str, true
	case KindArray:
		out := make([]any, node.Length)
		for i := 0; i < node.Length; i++ {
			child, _ := ComposeRead(src, binarypath.Append(basePath, binarypath.Int(uint32(i))))
			out[i] = child
		}
		return out, true
	case KindObject:
		out := make(map[string]any, len(node.Keys))
		for _, k := range node.Keys {
			child, _ := ComposeRead(src, binarypath.Append(basePath, binarypath.Key(k)))
			out[k] = child
		}
		return out, true
	default:
		return nil, false
	}
}

// DeepEqualValue compares two plain Go JSON values structurally: object
// key order is irrelevant, array element order is significant.
func DeepEqualValue(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := toFloat(b)
		return ok && av == bv
	case int:
		bv, ok := toFloat(b)
		return ok && float64(av) == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !DeepEqualValue(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, present := bv[k]
			if !present || !DeepEqualValue(v, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// NodeToValue converts a leaf (non-structural) Node into a plain Go value.
// Structural nodes (array/object) return false; use ComposeRead for those.
func NodeToValue(n Node) (any, bool) {
	switch n.Kind {
	case KindNull:
		return nil, true
	case KindBool:
		return n.Bool, true
	case KindNumber:
		return n.Number, true
	case KindString:
		return n.Str, true
	default:
		return nil, false
	}
}
