package action

import (
	"fmt"

	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/errors"
	"github.com/mattsp1290/osmosis-store/pkg/jsonpath"
	"github.com/mattsp1290/osmosis-store/pkg/jsonsource"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
)

// Compile turns a ScalarAction into the ordered Changes that realize it
// against src, plus any Failures. src is read only here: Compile never
// mutates the live source, so it is safe to call speculatively (e.g. to
// preview an action, or to simulate a Transaction's sub-actions against a
// throwaway overlay).
func Compile(src jsonsource.Source, a ScalarAction) ([]Change, []Failure) {
	switch a.Kind {
	case Transaction:
		return compileTransaction(src, a.SubActions)

	case Move:
		source, ok := jsonpath.Resolve(src, a.Target)
		if !ok {
			return nil, []Failure{{Kind: errors.FailureUnresolvedPath, Reason: "could not resolve move source path"}}
		}
		dest, ok := jsonpath.Resolve(src, a.Destination)
		if !ok {
			return nil, []Failure{{Kind: errors.FailureUnresolvedPath, Path: source, Reason: "could not resolve move destination path"}}
		}
		return compileMove(src, source, dest)

	case Copy:
		source, ok := jsonpath.Resolve(src, a.Target)
		if !ok {
			return nil, []Failure{{Kind: errors.FailureUnresolvedPath, Reason: "could not resolve copy source path"}}
		}
		dests := make([]binarypath.Path, 0, len(a.Destinations))
		for _, d := range a.Destinations {
			dp, ok := jsonpath.Resolve(src, d)
			if !ok {
				return nil, []Failure{{Kind: errors.FailureUnresolvedPath, Path: source, Reason: "could not resolve copy destination path"}}
			}
			dests = append(dests, dp)
		}
		return compileCopy(src, source, dests)

	default:
		path, ok := jsonpath.Resolve(src, a.Target)
		if !ok {
			return nil, []Failure{{Kind: errors.FailureUnresolvedPath, Reason: "could not resolve target path"}}
		}
		switch a.Kind {
		case Set:
			return compileSet(src, path, a.Value)
		case Delete:
			return compileDelete(src, path)
		case Add:
			return compileArith(src, path, a.Delta, false)
		case Multiply:
			return compileArith(src, path, a.Delta, true)
		case InitArray:
			return compileInit(src, path, jsonsource.KindArray)
		case InitObject:
			return compileInit(src, path, jsonsource.KindObject)
		case InsertBefore:
			return compileInsert(src, path, a.Value, false)
		case InsertAfter:
			return compileInsert(src, path, a.Value, true)
		case InsertUnique:
			return compileInsertUnique(src, path, a.Value)
		default:
			return nil, []Failure{{Kind: errors.FailureUnknownActionKind, Path: path, Reason: fmt.Sprintf("unknown action kind %v", a.Kind)}}
		}
	}
}

// compileTransaction applies sub-actions in sequence against a fresh
// overlay over src, accumulating changes as it goes so each sub-action
// sees the effects of the ones before it. If any sub-action fails, the
// whole transaction's changes are discarded — the caller (SaveState) is
// still responsible for logging the op so state hashes stay consistent.
func compileTransaction(src jsonsource.Source, subActions []ScalarAction) ([]Change, []Failure) {
	overlay := jsonsource.New(src)
	var allChanges []Change
	var allFailures []Failure
	for _, sub := range subActions {
		changes, failures := Compile(overlay, sub)
		allFailures = append(allFailures, failures...)
		ApplyChanges(overlay, changes, osid.Zero)
		allChanges = append(allChanges, changes...)
	}
	if len(allFailures) > 0 {
		return nil, allFailures
	}
	return allChanges, nil
}

func compileSet(src jsonsource.Source, path binarypath.Path, value any) ([]Change, []Failure) {
	changes := holeFillChanges(src, path)
	changes = append(changes, Change{Kind: ChangePut, Path: path, Value: value})
	return changes, nil
}

func compileDelete(src jsonsource.Source, path binarypath.Path) ([]Change, []Failure) {
	if len(path) == 0 {
		return nil, []Failure{{Kind: errors.FailureCannotDeleteRoot, Path: path, Reason: "cannot delete root"}}
	}
	if _, exists := src.GetByPath(path); !exists {
		return nil, []Failure{{Kind: errors.FailurePathNotFound, Path: path, Reason: "delete target does not exist"}}
	}
	if parentPath, last, ok, _ := binarypath.Split(path); ok && !last.IsString() {
		if parent, exists := src.GetByPath(parentPath); exists && parent.Kind == jsonsource.KindArray {
			return compactArrayAfterRemoval(src, path), nil
		}
	}
	return []Change{{Kind: ChangeDelete, Path: path}}, nil
}

func compileArith(src jsonsource.Source, path binarypath.Path, delta float64, multiply bool) ([]Change, []Failure) {
	node, exists := src.GetByPath(path)
	if !exists || node.Kind != jsonsource.KindNumber {
		return nil, []Failure{{Kind: errors.FailureNotANumber, Path: path, Reason: "target does not resolve to a number"}}
	}
	var next float64
	if multiply {
		next = node.Number * delta
	} else {
		next = node.Number + delta
	}
	return []Change{{Kind: ChangePut, Path: path, Value: next}}, nil
}

func compileInit(src jsonsource.Source, path binarypath.Path, kind jsonsource.Kind) ([]Change, []Failure) {
	if node, exists := src.GetByPath(path); exists && node.Kind == kind {
		return []Change{{Kind: ChangeTouch, Path: path}}, nil
	}
	changes := holeFillChanges(src, path)
	var value any
	if kind == jsonsource.KindArray {
		value = []any{}
	} else {
		value = map[string]any{}
	}
	changes = append(changes, Change{Kind: ChangePut, Path: path, Value: value})
	return changes, nil
}

func compileInsert(src jsonsource.Source, path binarypath.Path, value any, after bool) ([]Change, []Failure) {
	parentPath, last, ok, _ := binarypath.Split(path)
	if !ok || last.IsString() {
		return nil, []Failure{{Kind: errors.FailureNotAnArray, Path: path, Reason: "insert target must be an array index"}}
	}
	parent, exists := src.GetByPath(parentPath)
	if !exists || parent.Kind != jsonsource.KindArray {
		return nil, []Failure{{Kind: errors.FailureNotAnArray, Path: path, Reason: "insert target's parent is not an array"}}
	}
	idx := int(last.IntValue())
	if after {
		idx++
	}
	L := parent.Length
	if idx > L {
		idx = L
	}
	if idx < 0 {
		idx = 0
	}
	var changes []Change
	for j := L - 1; j >= idx; j-- {
		changes = append(changes, Change{
			Kind: ChangeMove,
			From: binarypath.Append(parentPath, binarypath.Int(uint32(j))),
			To:   binarypath.Append(parentPath, binarypath.Int(uint32(j+1))),
		})
	}
	changes = append(changes, Change{Kind: ChangePut, Path: binarypath.Append(parentPath, binarypath.Int(uint32(idx))), Value: value})
	return changes, nil
}

func compileInsertUnique(src jsonsource.Source, path binarypath.Path, value any) ([]Change, []Failure) {
	node, exists := src.GetByPath(path)
	if !exists || node.Kind != jsonsource.KindArray {
		return nil, []Failure{{Kind: errors.FailureNotAnArray, Path: path, Reason: "insert-unique target must be an array"}}
	}
	for i := 0; i < node.Length; i++ {
		childPath := binarypath.Append(path, binarypath.Int(uint32(i)))
		if childValue, ok := jsonsource.ComposeRead(src, childPath); ok && jsonsource.DeepEqualValue(childValue, value) {
			return []Change{{Kind: ChangeTouch, Path: childPath}}, nil
		}
	}
	return []Change{{Kind: ChangePut, Path: binarypath.Append(path, binarypath.Int(uint32(node.Length))), Value: value}}, nil
}

func compileMove(src jsonsource.Source, source, dest binarypath.Path) ([]Change, []Failure) {
	if len(source) == 0 || len(dest) == 0 {
		return nil, []Failure{{Kind: errors.FailureCannotMoveRoot, Path: source, Reason: "move source/destination cannot be root"}}
	}
	if _, exists := src.GetByPath(source); !exists {
		return nil, []Failure{{Kind: errors.FailurePathNotFound, Path: source, Reason: "move source does not exist"}}
	}
	changes := []Change{{Kind: ChangeMove, From: source, To: dest}}
	changes = append(changes, compactArrayAfterRemoval(src, source)...)
	return changes, nil
}

func compileCopy(src jsonsource.Source, source binarypath.Path, destinations []binarypath.Path) ([]Change, []Failure) {
	value, exists := jsonsource.ComposeRead(src, source)
	if !exists {
		return nil, []Failure{{Kind: errors.FailurePathNotFound, Path: source, Reason: "copy source does not exist"}}
	}
	if len(destinations) == 0 {
		return nil, []Failure{{Kind: errors.FailureMultipleSourceDest, Path: source, Reason: "copy requires at least one destination"}}
	}
	var changes []Change
	for _, dest := range destinations {
		changes = append(changes, holeFillChanges(src, dest)...)
		changes = append(changes, Change{Kind: ChangePut, Path: dest, Value: value})
	}
	return changes, nil
}

// holeFillChanges implements Set's array hole-filling rule: if path is
// parent⧺i and the parent array currently has length L < i, emit
// Put(parent⧺L, null) … Put(parent⧺i-1, null) before path's own write.
func holeFillChanges(src jsonsource.Source, path binarypath.Path) []Change {
	parentPath, last, ok, _ := binarypath.Split(path)
	if !ok || last.IsString() {
		return nil
	}
	i := int(last.IntValue())
	parent, exists := src.GetByPath(parentPath)
	if !exists || parent.Kind != jsonsource.KindArray {
		return nil
	}
	var out []Change
	for j := parent.Length; j < i; j++ {
		out = append(out, Change{Kind: ChangePut, Path: binarypath.Append(parentPath, binarypath.Int(uint32(j))), Value: nil})
	}
	return out
}

// compactArrayAfterRemoval implements the shifting rule shared by Delete
// and Move's source-array compaction: if path is an array element at
// index i, shift elements [i+1, L) down by one (ascending order — each
// move reads a source slot the previous move hasn't touched yet) and
// finish with a Delete of the now-redundant trailing slot. If path isn't
// an array element, it's just a direct Delete.
func compactArrayAfterRemoval(src jsonsource.Source, path binarypath.Path) []Change {
	parentPath, last, ok, _ := binarypath.Split(path)
	if !ok || last.IsString() {
		return []Change{{Kind: ChangeDelete, Path: path}}
	}
	parent, exists := src.GetByPath(parentPath)
	if !exists || parent.Kind != jsonsource.KindArray {
		return []Change{{Kind: ChangeDelete, Path: path}}
	}
	i := int(last.IntValue())
	L := parent.Length
	var changes []Change
	for j := i + 1; j <= L-1; j++ {
		changes = append(changes, Change{
			Kind: ChangeMove,
			From: binarypath.Append(parentPath, binarypath.Int(uint32(j))),
			To:   binarypath.Append(parentPath, binarypath.Int(uint32(j-1))),
		})
	}
	changes = append(changes, Change{Kind: ChangeDelete, Path: binarypath.Append(parentPath, binarypath.Int(uint32(L-1)))})
	return changes
}
