// Package action implements the action compiler (spec §4.6): turning a
// high-level ScalarAction against a JsonSource into an ordered list of
// primitive Changes, plus any per-target Failures.
package action

import (
	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/errors"
	"github.com/mattsp1290/osmosis-store/pkg/jsonpath"
)

// Kind tags the high-level edit a ScalarAction performs.
type Kind int

const (
	Set Kind = iota
	Delete
	Add
	Multiply
	InitArray
	InitObject
	InsertBefore
	InsertAfter
	InsertUnique
	Move
	Copy
	Transaction
)

func (k Kind) String() string {
	switch k {
	case Set:
		return "Set"
	case Delete:
		return "Delete"
	case Add:
		return "Add"
	case Multiply:
		return "Multiply"
	case InitArray:
		return "InitArray"
	case InitObject:
		return "InitObject"
	case InsertBefore:
		return "InsertBefore"
	case InsertAfter:
		return "InsertAfter"
	case InsertUnique:
		return "InsertUnique"
	case Move:
		return "Move"
	case Copy:
		return "Copy"
	case Transaction:
		return "Transaction"
	default:
		return "Unknown"
	}
}

// ScalarAction is a single high-level edit, already split down to a
// singular target (the [MultiKey]/[MultiIndex]/wildcard expansion that
// Store.dispatch performs happens before this package ever sees an
// action: every path here names exactly one location, or — for Move and
// Copy — one source and one or more destinations).
type ScalarAction struct {
	Kind Kind

	// Target is the primary location this action addresses: the Set
	// destination, the Delete/Add/Multiply/InitArray/InitObject/
	// InsertBefore/InsertAfter/InsertUnique target, or the Move/Copy
	// source.
	Target jsonpath.CompiledPath

	// Destination is Move's single destination.
	Destination jsonpath.CompiledPath

	// Destinations is Copy's one-or-more destinations.
	Destinations []jsonpath.CompiledPath

	// Value is the payload for Set, InsertBefore, InsertAfter, and
	// InsertUnique.
	Value any

	// Delta is the operand for Add/Multiply.
	Delta float64

	// SubActions is Transaction's ordered list of scalar sub-actions.
	SubActions []ScalarAction
}

// ChangeKind tags a primitive Change.
type ChangeKind int

const (
	ChangePut ChangeKind = iota
	ChangeDelete
	ChangeTouch
	ChangeMove
)

// Change is a primitive, already-resolved-to-concrete-paths mutation
// produced by the action compiler. Put/Delete/Touch address Path; Move
// addresses From/To.
type Change struct {
	Kind  ChangeKind
	Path  binarypath.Path
	Value any

	From binarypath.Path
	To   binarypath.Path
}

// Failure records a target the compiler could not act on (wrong type,
// root deletion, out-of-range index, …). Kind classifies the failure per
// spec §7's recoverable-failure taxonomy; it defaults to FailureUnknown
// where a call site hasn't been given a more specific classification.
type Failure struct {
	Kind   errors.FailureKind
	Path   binarypath.Path
	Reason string
}
