package osmstore

import (
	"github.com/mattsp1290/osmosis-store/pkg/action"
	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/errors"
	"github.com/mattsp1290/osmosis-store/pkg/jsonpath"
	"github.com/mattsp1290/osmosis-store/pkg/jsonsource"
	"github.com/mattsp1290/osmosis-store/pkg/savestate"
)

// creatable reports whether kind's target may legitimately name a path
// that does not exist yet — Set and the Init/Insert family create their
// own target, everything else requires one to already be there.
func creatable(kind action.Kind) bool {
	switch kind {
	case action.Set, action.InitArray, action.InitObject, action.InsertBefore, action.InsertAfter, action.InsertUnique:
		return true
	default:
		return false
	}
}

// compileRequest is Store's half of spec §4.8's dispatch: turning one
// high-level, possibly-wildcarded Request into the scalar ops SaveState.
// Insert actually wants. Must be called with s.mu held, since it reads
// s.state.Source() and allocates Ids against s.nextIndex.
func (s *Store) compileRequest(req Request) ([]savestate.PendingOp, []errors.Failure, error) {
	if req.Kind == action.Transaction {
		sub, failures, err := s.compileTransactionBody(req)
		if err != nil || len(failures) > 0 {
			return nil, failures, err
		}
		return []savestate.PendingOp{{ID: s.allocateID(), Action: action.ScalarAction{Kind: action.Transaction, SubActions: sub}}}, nil, nil
	}

	src := s.state.Source()

	switch req.Kind {
	case action.Move:
		target, dest, err := s.resolveMoveTargets(src, req)
		if err != nil {
			return nil, nil, err
		}
		return []savestate.PendingOp{{ID: s.allocateID(), Action: action.ScalarAction{Kind: action.Move, Target: target, Destination: dest}}}, nil, nil

	case action.Copy:
		target, dests, err := s.resolveCopyTargets(src, req)
		if err != nil {
			return nil, nil, err
		}
		return []savestate.PendingOp{{ID: s.allocateID(), Action: action.ScalarAction{Kind: action.Copy, Target: target, Destinations: dests}}}, nil, nil

	default:
		return s.resolveFanOut(src, req)
	}
}

// compileTransactionBody resolves every sub-request's path strings to a
// single concrete target apiece — a transaction does not fan a sub-action
// out across a wildcard match, since the spec leaves that cross-product
// undefined (see DESIGN.md).
func (s *Store) compileTransactionBody(req Request) ([]action.ScalarAction, []errors.Failure, error) {
	src := s.state.Source()
	subs := make([]action.ScalarAction, 0, len(req.SubActions))
	for _, sr := range req.SubActions {
		switch sr.Kind {
		case action.Move:
			target, dest, err := s.resolveMoveTargets(src, sr)
			if err != nil {
				return nil, nil, err
			}
			subs = append(subs, action.ScalarAction{Kind: action.Move, Target: target, Destination: dest})
		case action.Copy:
			target, dests, err := s.resolveCopyTargets(src, sr)
			if err != nil {
				return nil, nil, err
			}
			subs = append(subs, action.ScalarAction{Kind: action.Copy, Target: target, Destinations: dests})
		case action.Transaction:
			nested, failures, err := s.compileTransactionBody(sr)
			if err != nil || len(failures) > 0 {
				return nil, failures, err
			}
			subs = append(subs, action.ScalarAction{Kind: action.Transaction, SubActions: nested})
		default:
			cp, err := s.resolveOneSingular(src, sr.Target, sr.Vars)
			if err != nil {
				return nil, nil, err
			}
			subs = append(subs, action.ScalarAction{Kind: sr.Kind, Target: cp, Value: sr.Value, Delta: sr.Delta})
		}
	}
	return subs, nil, nil
}

// resolveFanOut handles every Kind whose Target may legitimately be
// wildcarded (Set, Delete, Add, Multiply, Init*, Insert*): it queries the
// live tree for every path the compiled target could name and emits one
// PendingOp — with its own freshly allocated, contiguous Id — per match.
func (s *Store) resolveFanOut(src jsonsource.Source, req Request) ([]savestate.PendingOp, []errors.Failure, error) {
	cp, err := jsonpath.CompileShared(req.Target, req.Vars)
	if err != nil {
		return nil, nil, err
	}

	res := jsonpath.Query(src, cp)
	candidates := res.Existing
	if creatable(req.Kind) {
		candidates = append(append([]binarypath.Path(nil), candidates...), res.Potential...)
	}
	if len(candidates) == 0 {
		if len(res.Failures) > 0 {
			return nil, []errors.Failure{{Kind: errors.FailureUnresolvedPath, Reason: res.Failures[0].Reason}}, nil
		}
		return nil, nil, nil
	}

	ops := make([]savestate.PendingOp, 0, len(candidates))
	for _, p := range candidates {
		target, err := anchoredFromConcrete(src, p)
		if err != nil {
			return nil, nil, err
		}
		ops = append(ops, savestate.PendingOp{
			ID: s.allocateID(),
			Action: action.ScalarAction{
				Kind:   req.Kind,
				Target: target,
				Value:  req.Value,
				Delta:  req.Delta,
			},
		})
	}
	return ops, nil, nil
}

// resolveMoveTargets resolves Move's source and destination, each of
// which must name exactly one path.
func (s *Store) resolveMoveTargets(src jsonsource.Source, req Request) (jsonpath.CompiledPath, jsonpath.CompiledPath, error) {
	target, err := s.resolveOneSingular(src, req.Target, req.Vars)
	if err != nil {
		return jsonpath.CompiledPath{}, jsonpath.CompiledPath{}, err
	}
	dest, err := s.resolveOneSingular(src, req.Destination, req.Vars)
	if err != nil {
		return jsonpath.CompiledPath{}, jsonpath.CompiledPath{}, err
	}
	return target, dest, nil
}

// resolveCopyTargets resolves Copy's single source and the union of
// concrete paths every one of its destination strings could name —
// action.Compile already natively supports writing one source value to
// many destinations in a single op.
func (s *Store) resolveCopyTargets(src jsonsource.Source, req Request) (jsonpath.CompiledPath, []jsonpath.CompiledPath, error) {
	target, err := s.resolveOneSingular(src, req.Target, req.Vars)
	if err != nil {
		return jsonpath.CompiledPath{}, nil, err
	}

	var dests []jsonpath.CompiledPath
	for _, raw := range req.Destinations {
		cp, err := jsonpath.CompileShared(raw, req.Vars)
		if err != nil {
			return jsonpath.CompiledPath{}, nil, err
		}
		res := jsonpath.Query(src, cp)
		candidates := append(append([]binarypath.Path(nil), res.Existing...), res.Potential...)
		for _, p := range candidates {
			d, err := anchoredFromConcrete(src, p)
			if err != nil {
				return jsonpath.CompiledPath{}, nil, err
			}
			dests = append(dests, d)
		}
	}
	return target, dests, nil
}

// resolveOneSingular compiles raw and demands it name exactly one
// concrete path right now — used everywhere a fan-out would be ambiguous
// (Move/Copy's source, Transaction sub-action targets).
func (s *Store) resolveOneSingular(src jsonsource.Source, raw string, vars map[string]any) (jsonpath.CompiledPath, error) {
	cp, err := jsonpath.CompileShared(raw, vars)
	if err != nil {
		return jsonpath.CompiledPath{}, err
	}
	if p, ok := jsonpath.Resolve(src, cp); ok {
		return anchoredFromConcrete(src, p)
	}
	res := jsonpath.Query(src, cp)
	if len(res.Existing)+len(res.Potential) != 1 {
		return jsonpath.CompiledPath{}, &errors.Failure{
			Kind:   errors.FailureMultipleSourceDest,
			Reason: "path must resolve to exactly one location here",
		}
	}
	var p binarypath.Path
	if len(res.Existing) == 1 {
		p = res.Existing[0]
	} else {
		p = res.Potential[0]
	}
	return anchoredFromConcrete(src, p)
}

// anchoredFromConcrete turns a resolved binarypath.Path into a singular
// CompiledPath anchored to the nearest ancestor Id, so the op stays
// resolvable after later structural edits shift sibling indices.
func anchoredFromConcrete(src jsonsource.Source, p binarypath.Path) (jsonpath.CompiledPath, error) {
	cp, err := jsonpath.FromConcretePath(p)
	if err != nil {
		return jsonpath.CompiledPath{}, err
	}
	return jsonpath.Anchor(src, cp), nil
}
