package jsonpath

import (
	"fmt"
	"sort"

	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/jsonsource"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
)

// Failure records a segment that could not be resolved against the current
// tree shape (e.g. indexing into a scalar, or a filter/expr-index that
// raised an error). Failures are non-fatal: query evaluation keeps walking
// sibling candidates and simply omits the failed branch from the result.
type Failure struct {
	Path   binarypath.Path // the path at which the failure occurred
	Reason string
}

// Result is the outcome of evaluating a CompiledPath against a Source: the
// paths that resolve to a value today (Existing), the paths that do not
// exist yet but are a legal write target for the path's final segment
// (Potential — e.g. a not-yet-present object key or a one-past-the-end
// array index), and the Failures encountered along the way.
type Result struct {
	Existing  []binarypath.Path
	Potential []binarypath.Path
	Failures  []Failure
}

func (r *Result) addFailure(silent bool, p binarypath.Path, reason string) {
	if silent {
		return
	}
	r.Failures = append(r.Failures, Failure{Path: append(binarypath.Path(nil), p...), Reason: reason})
}

// Query evaluates cp against src starting at the document root (or cp's Id
// anchor, if present and still resolvable), returning every matching
// existing/potential path and the failures encountered.
func Query(src jsonsource.Source, cp CompiledPath) Result {
	root := binarypath.Root
	if cp.Anchor != nil {
		if p, ok := src.GetPathByID(cp.Anchor.Id); ok {
			root = p
		} else {
			root = cp.Anchor.Fallback
		}
	}
	var res Result
	node, ok := src.GetByPath(root)
	if !ok {
		res.addFailure(false, root, "anchor path does not exist")
		return res
	}
	evalSegments(src, root, node, true, cp.Segments, false, &res)
	// Nested recursive segments can reach one path by more than one route;
	// keep only the first occurrence of each path.
	dedupe := func(paths []binarypath.Path) []binarypath.Path {
		seen := make(map[string]bool, len(paths))
		out := paths[:0]
		for _, p := range paths {
			if !seen[string(p)] {
				seen[string(p)] = true
				out = append(out, p)
			}
		}
		return out
	}
	res.Existing = dedupe(res.Existing)
	res.Potential = dedupe(res.Potential)
	return res
}

// evalSegments walks segments starting from (path, node), accumulating
// matches into res. exists tells whether node actually resolved (false
// means this is a hypothetical continuation kept alive only because it is
// the tail of the path — used for potential-path classification). silent
// suppresses Failure emission: set while probing a candidate node inside a
// Recursive segment, where a shape mismatch just means "this descendant
// isn't a match", not a user-facing error.
func evalSegments(src jsonsource.Source, path binarypath.Path, node jsonsource.Node, exists bool, segments []Segment, silent bool, res *Result) {
	if len(segments) == 0 {
		if exists {
			res.Existing = append(res.Existing, append(binarypath.Path(nil), path...))
		} else {
			res.Potential = append(res.Potential, append(binarypath.Path(nil), path...))
		}
		return
	}
	seg := segments[0]
	rest := segments[1:]
	last := len(rest) == 0

	switch seg.Kind {
	case SegKey:
		evalKeyStep(src, path, node, exists, seg.Key, rest, last, silent, res)

	case SegIndex:
		evalIndexStep(src, path, node, exists, seg.Index, rest, last, silent, res)

	case SegMultiKey:
		for _, k := range seg.MultiKeys {
			evalKeyStep(src, path, node, exists, k, rest, last, silent, res)
		}

	case SegMultiIndex:
		for _, i := range seg.MultiIndices {
			evalIndexStep(src, path, node, exists, i, rest, last, silent, res)
		}

	case SegWildcard:
		if !exists {
			res.addFailure(silent, path, "wildcard on nonexistent node")
			return
		}
		forEachChild(src, path, node, func(childPath binarypath.Path, child jsonsource.Node, childExists bool) {
			evalSegments(src, childPath, child, childExists, rest, silent, res)
		})

	case SegExprIndex:
		if !exists {
			res.addFailure(silent, path, "expr-index on nonexistent node")
			return
		}
		self, _ := jsonsource.ComposeRead(src, path)
		for _, expr := range seg.ExprIndices {
			v, err := evalExpr(expr, self)
			if err != nil {
				res.addFailure(silent, path, err.Error())
				continue
			}
			resolveIndexValue(src, path, node, v, rest, silent, res)
		}

	case SegSlice:
		if !exists {
			res.addFailure(silent, path, "slice on nonexistent node")
			return
		}
		if node.Kind != jsonsource.KindArray {
			res.addFailure(silent, path, "slice on non-array node")
			return
		}
		for _, i := range resolveSliceIndices(seg.Slice, node.Length) {
			evalIndexStep(src, path, node, true, i, rest, last, silent, res)
		}

	case SegExprSlice:
		if !exists {
			res.addFailure(silent, path, "slice on nonexistent node")
			return
		}
		if node.Kind != jsonsource.KindArray {
			res.addFailure(silent, path, "slice on non-array node")
			return
		}
		self, _ := jsonsource.ComposeRead(src, path)
		sl, err := resolveExprSlice(seg.ExprSlice, self)
		if err != nil {
			res.addFailure(silent, path, err.Error())
			return
		}
		for _, i := range resolveSliceIndices(sl, node.Length) {
			evalIndexStep(src, path, node, true, i, rest, last, silent, res)
		}

	case SegFilter:
		if !exists {
			res.addFailure(silent, path, "filter on nonexistent node")
			return
		}
		forEachChild(src, path, node, func(childPath binarypath.Path, child jsonsource.Node, childExists bool) {
			if !childExists {
				return
			}
			self, _ := jsonsource.ComposeRead(src, childPath)
			v, err := evalExpr(seg.Filter, self)
			if err != nil {
				res.addFailure(silent, childPath, err.Error())
				return
			}
			if truthy(v) {
				evalSegments(src, childPath, child, true, rest, silent, res)
			}
		})

	case SegRecursive:
		evalRecursive(src, path, node, exists, seg.Recursive, rest, res)

	default:
		res.addFailure(silent, path, fmt.Sprintf("unhandled segment kind %v", seg.Kind))
	}
}

func evalKeyStep(src jsonsource.Source, path binarypath.Path, node jsonsource.Node, parentExists bool, key string, rest []Segment, last bool, silent bool, res *Result) {
	if !parentExists {
		res.addFailure(silent, path, "key access on nonexistent parent")
		return
	}
	if node.Kind != jsonsource.KindObject {
		res.addFailure(silent, path, "key access on non-object node")
		return
	}
	childPath := binarypath.Append(path, binarypath.Key(key))
	if node.HasKey(key) {
		child, ok := src.GetByPath(childPath)
		evalSegments(src, childPath, child, ok, rest, silent, res)
		return
	}
	if last {
		evalSegments(src, childPath, jsonsource.Node{}, false, rest, silent, res)
		return
	}
	res.addFailure(silent, childPath, "intermediate key does not exist")
}

func evalIndexStep(src jsonsource.Source, path binarypath.Path, node jsonsource.Node, parentExists bool, index int, rest []Segment, last bool, silent bool, res *Result) {
	if !parentExists {
		res.addFailure(silent, path, "index access on nonexistent parent")
		return
	}
	if node.Kind != jsonsource.KindArray {
		res.addFailure(silent, path, "index access on non-array node")
		return
	}
	idx := index
	if idx < 0 {
		idx += node.Length
	}
	childPath := binarypath.Append(path, binarypath.Int(uint32(idx)))
	switch {
	case idx >= 0 && idx < node.Length:
		child, ok := src.GetByPath(childPath)
		evalSegments(src, childPath, child, ok, rest, silent, res)
	case idx == node.Length && last:
		// One-past-the-end: a legal append target, hence potential.
		evalSegments(src, childPath, jsonsource.Node{}, false, rest, silent, res)
	default:
		res.addFailure(silent, path, fmt.Sprintf("index %d out of range (length %d)", index, node.Length))
	}
}

func forEachChild(src jsonsource.Source, path binarypath.Path, node jsonsource.Node, fn func(childPath binarypath.Path, child jsonsource.Node, exists bool)) {
	switch node.Kind {
	case jsonsource.KindArray:
		for i := 0; i < node.Length; i++ {
			childPath := binarypath.Append(path, binarypath.Int(uint32(i)))
			child, ok := src.GetByPath(childPath)
			fn(childPath, child, ok)
		}
	case jsonsource.KindObject:
		for _, k := range node.Keys {
			childPath := binarypath.Append(path, binarypath.Key(k))
			child, ok := src.GetByPath(childPath)
			fn(childPath, child, ok)
		}
	}
}

// evalRecursive matches innerSegs at the current node and at every
// descendant (depth-first), feeding each match into rest. Every probe runs
// silent: a shape mismatch (e.g. innerSegs names a key but the descendant
// is a scalar) just means this descendant isn't a match, not a failure.
// A single descent visits each node once, but nested recursive segments
// can still reach one path twice; Query removes those duplicates.
func evalRecursive(src jsonsource.Source, path binarypath.Path, node jsonsource.Node, exists bool, innerSegs []Segment, rest []Segment, res *Result) {
	if !exists {
		return
	}
	combined := append(append([]Segment(nil), innerSegs...), rest...)
	evalSegments(src, path, node, true, combined, true, res)
	forEachChild(src, path, node, func(childPath binarypath.Path, child jsonsource.Node, childExists bool) {
		if !childExists {
			return
		}
		evalRecursive(src, childPath, child, true, innerSegs, rest, res)
	})
}

func resolveIndexValue(src jsonsource.Source, path binarypath.Path, node jsonsource.Node, v any, rest []Segment, silent bool, res *Result) {
	switch val := v.(type) {
	case float64:
		evalIndexStep(src, path, node, true, int(val), rest, len(rest) == 0, silent, res)
	case string:
		evalKeyStep(src, path, node, true, val, rest, len(rest) == 0, silent, res)
	default:
		res.addFailure(silent, path, fmt.Sprintf("expr-index produced non-index value %v", v))
	}
}

func resolveSliceIndices(sl Slice, length int) []int {
	step := sl.Step
	if step == 0 {
		step = 1
	}
	var from, to int
	if step > 0 {
		from, to = 0, length
	} else {
		from, to = length-1, -1
	}
	if sl.From != nil {
		from = normalizeSliceBound(*sl.From, length)
	}
	if sl.To != nil {
		to = normalizeSliceBound(*sl.To, length)
	}
	var out []int
	if step > 0 {
		for i := from; i < to; i += step {
			if i >= 0 && i < length {
				out = append(out, i)
			}
		}
	} else {
		for i := from; i > to; i += step {
			if i >= 0 && i < length {
				out = append(out, i)
			}
		}
	}
	return out
}

func normalizeSliceBound(n, length int) int {
	if n < 0 {
		n += length
	}
	if n < 0 {
		n = 0
	}
	if n > length {
		n = length
	}
	return n
}

func resolveExprSlice(es ExprSlice, self any) (Slice, error) {
	var sl Slice
	sl.Step = 1
	if es.From != nil {
		v, err := evalExpr(es.From, self)
		if err != nil {
			return sl, err
		}
		n := int(toNumber(v))
		sl.From = &n
	}
	if es.To != nil {
		v, err := evalExpr(es.To, self)
		if err != nil {
			return sl, err
		}
		n := int(toNumber(v))
		sl.To = &n
	}
	if es.Step != nil {
		v, err := evalExpr(es.Step, self)
		if err != nil {
			return sl, err
		}
		n := int(toNumber(v))
		if n == 0 {
			return sl, fmt.Errorf("slice step cannot be 0")
		}
		sl.Step = n
	}
	return sl, nil
}

// evalExpr evaluates an expression AST against self (the @ context value,
// a plain Go JSON value as produced by jsonsource.ComposeRead).
func evalExpr(e *Expr, self any) (any, error) {
	if e == nil {
		return nil, fmt.Errorf("nil expression")
	}
	switch e.Kind {
	case ExprLiteral:
		return e.Literal, nil
	case ExprSelf:
		return self, nil
	case ExprUnary:
		v, err := evalExpr(e.Operand, self)
		if err != nil {
			return nil, err
		}
		switch e.UnaryOp {
		case "-":
			return -toNumber(v), nil
		case "!":
			return !truthy(v), nil
		default:
			return nil, fmt.Errorf("unknown unary operator %q", e.UnaryOp)
		}
	case ExprBinary:
		return evalBinary(e, self)
	case ExprTernary:
		cond, err := evalExpr(e.Cond, self)
		if err != nil {
			return nil, err
		}
		if truthy(cond) {
			return evalExpr(e.Then, self)
		}
		return evalExpr(e.Else, self)
	default:
		return nil, fmt.Errorf("unknown expression kind %v", e.Kind)
	}
}

func evalBinary(e *Expr, self any) (any, error) {
	switch e.BinaryOp {
	case "&&":
		left, err := evalExpr(e.Left, self)
		if err != nil {
			return nil, err
		}
		if !truthy(left) {
			return left, nil
		}
		return evalExpr(e.Right, self)
	case "||":
		left, err := evalExpr(e.Left, self)
		if err != nil {
			return nil, err
		}
		if truthy(left) {
			return left, nil
		}
		return evalExpr(e.Right, self)
	case "subscript":
		left, err := evalExpr(e.Left, self)
		if err != nil {
			return nil, err
		}
		right, err := evalExpr(e.Right, self)
		if err != nil {
			return nil, err
		}
		return subscript(left, right)
	}

	left, err := evalExpr(e.Left, self)
	if err != nil {
		return nil, err
	}
	right, err := evalExpr(e.Right, self)
	if err != nil {
		return nil, err
	}
	switch e.BinaryOp {
	case "+":
		if ls, ok := left.(string); ok {
			rs, ok := right.(string)
			if !ok {
				return nil, fmt.Errorf("cannot add string and non-string")
			}
			return ls + rs, nil
		}
		return toNumber(left) + toNumber(right), nil
	case "-":
		return toNumber(left) - toNumber(right), nil
	case "*":
		return toNumber(left) * toNumber(right), nil
	case "/":
		d := toNumber(right)
		if d == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return toNumber(left) / d, nil
	case "%":
		d := int(toNumber(right))
		if d == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		return float64(int(toNumber(left)) % d), nil
	case "<", "<=", ">", ">=":
		return compareValues(e.BinaryOp, left, right)
	case "==":
		return valuesEqual(left, right), nil
	case "!=":
		return !valuesEqual(left, right), nil
	default:
		return nil, fmt.Errorf("unknown binary operator %q", e.BinaryOp)
	}
}

func subscript(left, right any) (any, error) {
	switch right := right.(type) {
	case string:
		if right == "length" {
			switch v := left.(type) {
			case []any:
				return float64(len(v)), nil
			case string:
				return float64(len(v)), nil
			}
		}
		m, ok := left.(map[string]any)
		if !ok {
			return nil, nil
		}
		return m[right], nil
	case float64:
		arr, ok := left.([]any)
		if !ok {
			return nil, nil
		}
		i := int(right)
		if i < 0 {
			i += len(arr)
		}
		if i < 0 || i >= len(arr) {
			return nil, nil
		}
		return arr[i], nil
	default:
		return nil, fmt.Errorf("invalid subscript key %v", right)
	}
}

func compareValues(op string, left, right any) (any, error) {
	ln, lok := toFloatOK(left)
	rn, rok := toFloatOK(right)
	if lok && rok {
		switch op {
		case "<":
			return ln < rn, nil
		case "<=":
			return ln <= rn, nil
		case ">":
			return ln > rn, nil
		case ">=":
			return ln >= rn, nil
		}
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}
	return nil, fmt.Errorf("cannot compare %v %s %v", left, op, right)
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if an, aok := toFloatOK(a); aok {
		if bn, bok := toFloatOK(b); bok {
			return an == bn
		}
	}
	return a == b
}

func toFloatOK(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func toNumber(v any) float64 {
	n, _ := toFloatOK(v)
	return n
}

// truthy mirrors the source's filter semantics: nil and false are falsy,
// every other value (including 0 and "") is truthy — filters are expected
// to produce an explicit boolean from a comparison, not rely on numeric
// zero-is-false coercion.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}

// Resolve turns a CompiledPath made only of literal SegKey/SegIndex
// segments (as produced by splitting a query result into singular target
// paths) back into a concrete binarypath.Path: resolve the Id anchor (or
// fall back to its stored path if the Id no longer owns one), then append
// each remaining segment. Returns false if a non-literal segment
// (wildcard, filter, slice, …) is present — such a path cannot name a
// single concrete location and is a programmer error for this call site.
func Resolve(src jsonsource.Source, cp CompiledPath) (binarypath.Path, bool) {
	path := binarypath.Root
	if cp.Anchor != nil {
		if p, ok := src.GetPathByID(cp.Anchor.Id); ok {
			path = p
		} else {
			path = cp.Anchor.Fallback
		}
	}
	for _, seg := range cp.Segments {
		switch seg.Kind {
		case SegKey:
			path = binarypath.Append(path, binarypath.Key(seg.Key))
		case SegIndex:
			idx := seg.Index
			if idx < 0 {
				node, ok := src.GetByPath(path)
				if !ok || node.Kind != jsonsource.KindArray {
					return nil, false
				}
				idx += node.Length
			}
			path = binarypath.Append(path, binarypath.Int(uint32(idx)))
		default:
			return nil, false
		}
	}
	return path, true
}

// Anchor computes the Id anchor for a freshly compiled path against src:
// the longest path prefix of cp's literal (non-wildcard/filter/recursive)
// leading segments that is owned by some Id, per spec's Id-anchoring rule.
// Only a run of SegKey/SegIndex segments from the root is considered,
// since anything else cannot be resolved to a single concrete prefix
// without evaluating against a tree.
func Anchor(src jsonsource.Source, cp CompiledPath) CompiledPath {
	path := binarypath.Root
	bestIdx := -1
	var bestID osid.Id
	var bestPath binarypath.Path

	for i, seg := range cp.Segments {
		switch {
		case seg.Kind == SegKey:
			path = binarypath.Append(path, binarypath.Key(seg.Key))
		case seg.Kind == SegIndex && seg.Index >= 0:
			// Negative indices can't be anchored without a live array length,
			// so they end the literal-prefix run like any other dynamic segment.
			path = binarypath.Append(path, binarypath.Int(uint32(seg.Index)))
		default:
			i = len(cp.Segments) // sentinel: stop scanning
		}
		if i >= len(cp.Segments) {
			break
		}
		if ids := src.GetIDsByPath(path); len(ids) > 0 {
			sorted := append([]osid.Id(nil), ids...)
			sort.Slice(sorted, func(a, b int) bool { return osid.Less(sorted[a], sorted[b]) })
			bestIdx = i
			bestID = sorted[0]
			bestPath = append(binarypath.Path(nil), path...)
		}
	}
	if bestIdx < 0 {
		return cp
	}
	out := cp
	out.Anchor = &IdAnchor{Id: bestID, Fallback: bestPath}
	out.Segments = cp.Segments[bestIdx+1:]
	return out
}
