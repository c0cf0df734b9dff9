package errors

import (
	"errors"
	"fmt"

	"github.com/mattsp1290/osmosis-store/pkg/osid"
)

// FailureKind tags the reason a recoverable, per-operation Failure was
// recorded (spec §7's two-tier taxonomy, tier one).
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailurePathNotFound
	FailureNotANumber
	FailureCannotSetRoot
	FailureCannotMoveRoot
	FailureSliceStepZero
	FailureJSONPathExpr
	FailureNotAnArray
	FailureNotAnObject
	FailureMultipleSourceDest
	FailureRateLimited
	FailureCannotDeleteRoot
	FailureUnresolvedPath
	FailureUnknownActionKind
)

func (k FailureKind) String() string {
	switch k {
	case FailurePathNotFound:
		return "path_not_found"
	case FailureNotANumber:
		return "not_a_number"
	case FailureCannotSetRoot:
		return "cannot_set_root"
	case FailureCannotMoveRoot:
		return "cannot_move_root"
	case FailureSliceStepZero:
		return "slice_step_zero"
	case FailureJSONPathExpr:
		return "jsonpath_expression_error"
	case FailureNotAnArray:
		return "not_an_array"
	case FailureNotAnObject:
		return "not_an_object"
	case FailureMultipleSourceDest:
		return "multiple_source_or_destination"
	case FailureRateLimited:
		return "rate_limited"
	case FailureCannotDeleteRoot:
		return "cannot_delete_root"
	case FailureUnresolvedPath:
		return "unresolved_path"
	case FailureUnknownActionKind:
		return "unknown_action_kind"
	default:
		return "unknown"
	}
}

// Failure is a recoverable, per-operation error: attached to the
// originating Op's Id and recorded in the log, never aborting a batch.
type Failure struct {
	Kind   FailureKind
	OpID   osid.Id
	Path   string
	Reason string
}

func (f Failure) Error() string {
	return fmt.Sprintf("osmosis: %s at %q (op %s): %s", f.Kind, f.Path, f.OpID, f.Reason)
}

// OsmosisFailureError aggregates Failures for callers that prefer a single
// error return over inspecting a Failure slice directly.
type OsmosisFailureError struct {
	Failures []Failure
}

func (e *OsmosisFailureError) Error() string {
	if len(e.Failures) == 1 {
		return e.Failures[0].Error()
	}
	return fmt.Sprintf("osmosis: %d operation failures, first: %s", len(e.Failures), e.Failures[0].Error())
}

// Fatal, program-level errors (spec §7 tier two): these unwind the
// current operation rather than accumulating like a Failure.
var (
	ErrRewindPastOldestSavePoint = errors.New("osmosis: rewind target precedes the oldest retained save point")
	ErrCorruptSnapshot           = errors.New("osmosis: persisted snapshot failed schema validation")
	ErrPersistenceExhausted      = errors.New("osmosis: persistence write exhausted its retries")
)
