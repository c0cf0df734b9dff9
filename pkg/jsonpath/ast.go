// Package jsonpath implements the JSONPath grammar compiler and evaluator
// from spec §4.5: a hand-written recursive-descent parser (per SPEC_FULL
// §9 design notes, in place of the source's parser-generator dependency)
// producing a normative Segment AST, plus an evaluator that walks a
// JsonSource to classify candidate paths as existing, potential, or
// failed.
package jsonpath

import (
	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
)

// SegmentKind tags a compiled path segment.
type SegmentKind int

const (
	SegWildcard SegmentKind = iota
	SegKey
	SegIndex
	SegMultiKey
	SegMultiIndex
	SegExprIndex
	SegSlice
	SegExprSlice
	SegFilter
	SegRecursive
)

// Slice is a Python-style array slice: From/To may be absent (nil),
// meaning "start"/"end" respectively. Step defaults to 1 and must be
// nonzero.
type Slice struct {
	From *int
	To   *int
	Step int
}

// ExprSlice is a Slice whose bounds are expressions evaluated against the
// current node at evaluation time.
type ExprSlice struct {
	From *Expr
	To   *Expr
	Step *Expr
}

// Segment is one step of a compiled JSONPath.
type Segment struct {
	Kind SegmentKind

	Key          string   // SegKey
	Index        int      // SegIndex (may be negative; normalized at eval time)
	MultiKeys    []string // SegMultiKey
	MultiIndices []int    // SegMultiIndex
	ExprIndices  []*Expr  // SegExprIndex
	Slice        Slice    // SegSlice
	ExprSlice    ExprSlice
	Filter       *Expr      // SegFilter
	Recursive    []Segment  // SegRecursive: nested segments to match at current + every descendant
}

// IdAnchor is the optional Id prefix of a CompiledJsonIdPath: resolve id
// to its current path, falling back to Fallback if the id no longer owns
// one.
type IdAnchor struct {
	Id       osid.Id
	Fallback binarypath.Path
}

// CompiledPath is a compiled JSONPath (optionally Id-anchored) ready for
// evaluation.
type CompiledPath struct {
	Anchor   *IdAnchor
	Segments []Segment
	Source   string // original path string, for diagnostics/logging
}

// ExprKind tags an expression AST node.
type ExprKind int

const (
	ExprLiteral ExprKind = iota
	ExprSelf             // @
	ExprUnary
	ExprBinary
	ExprTernary
)

// Expr is the expression AST used by Filter, ExprIndex, and ExprSlice.
// && and || are modeled as ExprBinary with Op "&&"/"||" and short-circuit,
// returning the decisive operand rather than a coerced boolean.
type Expr struct {
	Kind ExprKind

	Literal any // ExprLiteral: nil, bool, float64, or string

	UnaryOp string // ExprUnary: "-" or "!"
	Operand *Expr

	BinaryOp string // ExprBinary: + - * / % < <= > >= == != && || subscript
	Left     *Expr
	Right    *Expr

	Cond, Then, Else *Expr // ExprTernary
}
