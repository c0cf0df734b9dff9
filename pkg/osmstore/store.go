// Package osmstore implements the user-facing Store (spec §4.8/§4.9): it
// compiles JSONPath strings into anchored scalar ops, assigns fresh Ids,
// delegates to a pkg/savestate.SaveState for the actual log/ladder, and
// notifies query subscriptions whose path could match what changed.
package osmstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattsp1290/osmosis-store/pkg/action"
	"github.com/mattsp1290/osmosis-store/pkg/binarypath"
	"github.com/mattsp1290/osmosis-store/pkg/errors"
	"github.com/mattsp1290/osmosis-store/pkg/jsonpath"
	"github.com/mattsp1290/osmosis-store/pkg/jsonsource"
	"github.com/mattsp1290/osmosis-store/pkg/logging"
	"github.com/mattsp1290/osmosis-store/pkg/osid"
	"github.com/mattsp1290/osmosis-store/pkg/savestate"
)

// Request is a high-level action expressed with raw JSONPath strings —
// possibly wildcarded or multi-segment — exactly what a caller hands to
// Dispatch. Store resolves and splits it into one or more scalar ops
// before handing them to SaveState.
type Request struct {
	Kind action.Kind

	// Target is the path string for every Kind except Transaction: the
	// Set/Delete/Add/Multiply/Init*/Insert* target, or Move/Copy's source.
	Target string

	// Destination is Move's destination path string.
	Destination string

	// Destinations is Copy's one-or-more destination path strings.
	Destinations []string

	Value any
	Delta float64

	// Vars supplies `$name` interpolation bindings shared by every path
	// string in this request.
	Vars map[string]any

	// SubActions is Transaction's ordered sub-requests. Each sub-request's
	// path strings must resolve to exactly one concrete target — a
	// transaction does not fan a sub-action out across a wildcard match,
	// since the spec leaves that cross-product undefined.
	SubActions []Request
}

// DispatchResult is what Dispatch returns: the Ids assigned to the ops it
// generated (contiguous, per spec §4.8), the Changes they produced, and
// any recoverable Failures.
type DispatchResult struct {
	Ops      []osid.Id
	Changes  []action.Change
	Failures []errors.Failure
}

// Store is the replicated document store's single entry point.
type Store struct {
	mu sync.Mutex

	state savestate.SaveState
	peer  uuid.UUID

	nextIndex uint64

	subs      []*subscription
	nextSubID uint64

	limiter  *PeerRateLimiter
	logger   logging.Logger
	observer dispatchObserver
}

// dispatchObserver is the narrow metrics surface Store depends on — kept
// local (rather than importing pkg/metrics' concrete type) so a Store can
// be built without ever touching the prometheus client library.
type dispatchObserver interface {
	Dispatch(d time.Duration, failureReasons []string)
	Subscriptions(n int)
}

type noopObserver struct{}

func (noopObserver) Dispatch(time.Duration, []string) {}
func (noopObserver) Subscriptions(int)                 {}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger installs a structured logger (default: logging.NoOp()).
func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRateLimiter installs a custom per-peer limiter for MergeOps
// (default: DefaultPeerRateLimiterConfig()).
func WithRateLimiter(l *PeerRateLimiter) Option {
	return func(s *Store) { s.limiter = l }
}

// WithObserver installs a metrics recorder — typically
// (*metrics.Metrics).AsDispatchObserver().
func WithObserver(o dispatchObserver) Option {
	return func(s *Store) { s.observer = o }
}

// New builds a Store over an already-constructed SaveState, generating a
// fresh peer id with uuid.New() and seeding next_index from the log's
// current state summary (spec §4.8).
func New(state savestate.SaveState, opts ...Option) *Store {
	s := &Store{
		state:    state,
		peer:     uuid.New(),
		limiter:  NewPeerRateLimiter(DefaultPeerRateLimiterConfig()),
		logger:   logging.NoOp(),
		observer: noopObserver{},
	}
	summary := state.StateSummary()
	s.nextIndex = summary.LatestIndexes.Max() + 1
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Peer returns this Store's peer author id.
func (s *Store) Peer() uuid.UUID {
	return s.peer
}

// SavePoints returns the backing SaveState's ladder, for diagnostics
// (e.g. cmd/osmosis-cli's savepoints command).
func (s *Store) SavePoints() []savestate.SavePointInfo {
	return s.state.SavePoints()
}

// StateSummary returns the backing SaveState's convergence commitment.
func (s *Store) StateSummary() savestate.StateSummary {
	return s.state.StateSummary()
}

func (s *Store) allocateID() osid.Id {
	id := osid.New(s.peer, s.nextIndex)
	s.nextIndex++
	return id
}

// Dispatch compiles req's path strings, splits them into scalar ops, and
// inserts them as one contiguous-index unit.
func (s *Store) Dispatch(req Request) (DispatchResult, error) {
	start := time.Now()

	s.mu.Lock()
	pending, preFailures, err := s.compileRequest(req)
	if err != nil {
		s.mu.Unlock()
		return DispatchResult{}, err
	}
	if len(pending) == 0 {
		s.mu.Unlock()
		if len(preFailures) > 0 {
			reasons := make([]string, len(preFailures))
			for i, f := range preFailures {
				reasons[i] = f.Kind.String()
			}
			s.observer.Dispatch(time.Since(start), reasons)
			return DispatchResult{Failures: preFailures}, nil
		}
		s.observer.Dispatch(time.Since(start), nil)
		return DispatchResult{}, nil
	}

	result, insErr := s.state.Insert(pending)
	if insErr != nil {
		s.mu.Unlock()
		return DispatchResult{}, insErr
	}
	deliveries := s.planDeliveries(result.Changes)
	s.mu.Unlock()

	s.deliver(deliveries)

	ids := make([]osid.Id, len(pending))
	for i, p := range pending {
		ids[i] = p.ID
	}
	reasons := make([]string, len(result.Failures))
	for i, f := range result.Failures {
		reasons[i] = f.Kind.String()
	}
	s.observer.Dispatch(time.Since(start), reasons)

	s.logger.Info("dispatch",
		logging.Int("ops", len(pending)),
		logging.Int("changes", len(result.Changes)),
		logging.Int("failures", len(result.Failures)),
	)

	return DispatchResult{Ops: ids, Changes: result.Changes, Failures: result.Failures}, nil
}

// MergeOps admits already-Id'd ops from another peer (spec §4.8's
// merge_ops, invoked directly rather than via Dispatch when the caller —
// a sync/transport layer outside this module's scope — already assigned
// Ids). Subject to the per-author rate limiter.
func (s *Store) MergeOps(ops []savestate.PendingOp) (DispatchResult, error) {
	if len(ops) == 0 {
		return DispatchResult{}, nil
	}

	byAuthor := make(map[uuid.UUID]int)
	for _, op := range ops {
		byAuthor[op.ID.Author]++
	}
	for author, n := range byAuthor {
		if !s.limiter.AllowN(author, n) {
			f := errors.Failure{Kind: errors.FailureRateLimited, Reason: fmt.Sprintf("peer %s exceeded its op rate", author)}
			return DispatchResult{Failures: []errors.Failure{f}}, nil
		}
	}

	s.mu.Lock()
	result, err := s.state.Insert(ops)
	if err != nil {
		s.mu.Unlock()
		return DispatchResult{}, err
	}
	deliveries := s.planDeliveries(result.Changes)
	s.mu.Unlock()

	s.deliver(deliveries)

	ids := make([]osid.Id, len(ops))
	for i, op := range ops {
		ids[i] = op.ID
	}
	return DispatchResult{Ops: ids, Changes: result.Changes, Failures: result.Failures}, nil
}

// QueryOnce synchronously evaluates path against the live tree.
func (s *Store) QueryOnce(path string, vars map[string]any) ([]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := jsonpath.CompileShared(path, vars)
	if err != nil {
		return nil, err
	}
	return s.evaluate(cp), nil
}

// Subscribe registers a live query. callback fires once immediately (on a
// fresh goroutine, to approximate spec §4.8's "next scheduler turn" without
// blocking the caller) and again every time a later merge_ops changes a
// path it could match.
func (s *Store) Subscribe(path string, vars map[string]any, callback Callback) (Cancellation, error) {
	cp, err := jsonpath.CompileShared(path, vars)
	if err != nil {
		return Cancellation{}, err
	}

	s.mu.Lock()
	s.nextSubID++
	sub := &subscription{id: s.nextSubID, compiled: cp, callback: callback}
	s.subs = append(s.subs, sub)
	values := s.evaluate(cp)
	count := len(s.subs)
	s.mu.Unlock()

	s.observer.Subscriptions(count)

	go func() {
		if !sub.cancelled.Load() {
			callback(values)
		}
	}()

	return Cancellation{store: s, sub: sub}, nil
}

func (s *Store) removeSubscription(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			break
		}
	}
	s.observer.Subscriptions(len(s.subs))
}

// delivery is a precomputed subscription notification: the callback to
// invoke and the values it should see, captured while s.mu was held so the
// actual invocation can happen lock-free.
type delivery struct {
	sub    *subscription
	values []any
}

// planDeliveries accumulates changed paths from changes (spec §4.9: every
// Put/Delete/Touch path, both endpoints of every Move), then re-evaluates
// every subscription whose compiled path could match one of them. Must be
// called with s.mu held.
func (s *Store) planDeliveries(changes []action.Change) []delivery {
	if len(changes) == 0 || len(s.subs) == 0 {
		return nil
	}
	var changed []binarypath.Path
	for _, c := range changes {
		switch c.Kind {
		case action.ChangeMove:
			changed = append(changed, c.From, c.To)
		default:
			changed = append(changed, c.Path)
		}
	}

	var out []delivery
	for _, sub := range s.subs {
		if sub.cancelled.Load() {
			continue
		}
		matched := false
		for _, p := range changed {
			if couldMatch(sub.compiled, p) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		out = append(out, delivery{sub: sub, values: s.evaluate(sub.compiled)})
	}
	return out
}

// deliver invokes every planned delivery's callback, in subscription
// registration order, outside of s.mu so a callback may safely call back
// into the Store.
func (s *Store) deliver(deliveries []delivery) {
	for _, d := range deliveries {
		if d.sub.cancelled.Load() {
			continue
		}
		d.sub.callback(d.values)
	}
}

// evaluate runs cp against the live source and composes every matched
// existing path into a value. Must be called with s.mu held.
func (s *Store) evaluate(cp jsonpath.CompiledPath) []any {
	src := s.state.Source()
	res := jsonpath.Query(src, cp)
	values := make([]any, 0, len(res.Existing))
	for _, p := range res.Existing {
		if v, ok := jsonsource.ComposeRead(src, p); ok {
			values = append(values, v)
		}
	}
	return values
}
