package dataflow

import "context"

// Execute represents a call to a registered callable. It emits exactly one
// order per activation: (uid, fid, args, kwargs, recruit=downstreams,
// control=NONE).
type Execute struct {
	baseNode
	Fid        string
	Args       []Expr
	Kwargs     map[string]Expr
	Downstream []Handle
	Policy     *NodePolicy
}

// NewExecute builds an Execute node bound to handle id, invoking the
// callable registered as fid.
func NewExecute(id Handle, fid string, args []Expr, kwargs map[string]Expr, downstream []Handle) *Execute {
	return &Execute{baseNode: baseNode{id}, Fid: fid, Args: args, Kwargs: kwargs, Downstream: downstream}
}

// Step implements Continuation. Execute always exhausts in one order.
func (e *Execute) Step(*Context) (Order, Continuation) {
	return Order{
		UID:     e.id,
		Fid:     e.Fid,
		Args:    e.Args,
		Kwargs:  e.Kwargs,
		Policy:  e.Policy,
		Recruit: e.Downstream,
		Control: ControlNone,
	}, nil
}

// Branch reads a single boolean expression and recruits one of two
// downstream sets accordingly. A condition that fails to evaluate yields an
// order with no recruits; the failure is not turned into a
// SubscriptionFailed error and does not reach the error hooks.
type Branch struct {
	baseNode
	Cond    Expr
	IfTrue  []Handle
	IfFalse []Handle
}

// NewBranch builds a Branch node bound to handle id.
func NewBranch(id Handle, cond Expr, ifTrue, ifFalse []Handle) *Branch {
	return &Branch{baseNode: baseNode{id}, Cond: cond, IfTrue: ifTrue, IfFalse: ifFalse}
}

// Step implements Continuation. On condition failure, Branch still emits
// an order (so the scheduler runs its scope bookkeeping) but with an empty
// recruit set. The evaluation error is dropped: no error hook is called
// and nothing is bound under the branch's uid.
func (b *Branch) Step(ctx *Context) (Order, Continuation) {
	v, err := b.Cond.Eval(ctx)
	if err != nil {
		return Order{UID: b.id, Control: ControlNone}, nil
	}

	recruit := b.IfFalse
	if truthy(v) {
		recruit = b.IfTrue
	}
	return Order{UID: b.id, Recruit: recruit, Control: ControlNone}, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case nil:
		return false
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

// Break emits a single order with Control=EXIT, cancelling the innermost
// scope. Its recruits run in the parent scope once the scheduler has
// redirected them there.
type Break struct {
	baseNode
	Downstream []Handle
}

// NewBreak builds a Break node bound to handle id.
func NewBreak(id Handle, downstream []Handle) *Break {
	return &Break{baseNode: baseNode{id}, Downstream: downstream}
}

// Step implements Continuation.
func (b *Break) Step(*Context) (Order, Continuation) {
	return Order{UID: b.id, Recruit: b.Downstream, Control: ControlExit}, nil
}

// Join is a barrier synchroniser over N named receivers, one per flag —
// not a raw arrival count, so that one feeder firing N times cannot be
// mistaken for N distinct feeders each firing once. Each receiver is its
// own sub-node, obtained via Receiver(i) and registered at its own handle;
// activating it flips flag i and recruits Join's own handle, which fires
// Downstream and resets every flag only once all N are set.
type Join struct {
	baseNode
	Receivers  []Handle
	Downstream []Handle

	flags []bool
}

// NewJoin builds a Join node bound to handle id, with one receiver handle
// per expected feeder (len(receivers) == N). Each feeder must recruit a
// distinct receivers[i], not id itself.
func NewJoin(id Handle, receivers []Handle, downstream []Handle) *Join {
	return &Join{baseNode: baseNode{id}, Receivers: receivers, Downstream: downstream, flags: make([]bool, len(receivers))}
}

// Step implements Continuation for Join's own handle: it re-checks the
// flag set every time a receiver recruits it, firing downstream and
// resetting only once every flag is set.
func (j *Join) Step(*Context) (Order, Continuation) {
	for _, set := range j.flags {
		if !set {
			return Order{UID: j.id, Control: ControlNone}, nil
		}
	}
	for i := range j.flags {
		j.flags[i] = false
	}
	return Order{UID: j.id, Recruit: j.Downstream, Control: ControlNone}, nil
}

// Receiver returns the i-th of Join's named receiver sub-nodes, to be
// registered at its own handle (j.Receivers[i]) in the graph's node map.
func (j *Join) Receiver(i int) Node {
	return &joinReceiver{baseNode: baseNode{j.Receivers[i]}, join: j, index: i}
}

// joinReceiver is one of Join's N named flags, exposed as its own graph
// node so distinct feeders can be distinguished by handle rather than by a
// shared arrival count.
type joinReceiver struct {
	baseNode
	join  *Join
	index int
}

// Step implements Continuation: flip this receiver's flag, then recruit
// the parent Join's own handle so it re-evaluates the barrier.
func (r *joinReceiver) Step(*Context) (Order, Continuation) {
	r.join.flags[r.index] = true
	return Order{UID: r.id, Recruit: []Handle{r.join.id}, Control: ControlNone}, nil
}

// Group wraps a compiled subgraph as a node. Activation invokes the
// subgraph's callable with the group's bound inputs, binds the result
// under the group's uid, and recruits its downstreams.
type Group struct {
	baseNode
	Graph      *Graph
	Args       []Expr
	Kwargs     map[string]Expr
	Downstream []Handle
}

// NewGroup builds a Group node bound to handle id, wrapping g.
func NewGroup(id Handle, g *Graph, args []Expr, kwargs map[string]Expr, downstream []Handle) *Group {
	return &Group{baseNode: baseNode{id}, Graph: g, Args: args, Kwargs: kwargs, Downstream: downstream}
}

// Step implements Continuation. Group work runs synchronously within the
// driver loop (a nested Forward call) rather than through the executor,
// since a subgraph compiled callable already owns its own scheduling. The
// nested forward's own node-level errors surface via its own error hooks.
// If a bound input fails to evaluate or the subgraph call returns an error
// (such as an ExposedNotFound failure), Group emits an order with no
// release and no recruits; the error is not passed to the outer
// scheduler's error hooks.
func (g *Group) Step(ctx *Context) (Order, Continuation) {
	argVals := make([]any, len(g.Args))
	for i, a := range g.Args {
		v, err := a.Eval(ctx)
		if err != nil {
			return Order{UID: g.id, Control: ControlNone}, nil
		}
		argVals[i] = v
	}
	kwVals := make(map[string]any, len(g.Kwargs))
	for name, a := range g.Kwargs {
		v, err := a.Eval(ctx)
		if err != nil {
			return Order{UID: g.id, Control: ControlNone}, nil
		}
		kwVals[name] = v
	}

	result, err := g.Graph.Call(context.Background(), argVals, kwVals)
	if err != nil {
		return Order{UID: g.id, Control: ControlNone}, nil
	}

	return Order{
		UID:     g.id,
		Recruit: g.Downstream,
		Control: ControlNone,
	}.WithRelease(result), nil
}

// --- Repeat / Iter -----------------------------------------------------

// RepeatIterable produces successive elements of a loop, reporting
// exhaustion via ok=false. Callers typically use SliceIterable or
// RangeIterable.
type RepeatIterable interface {
	Next() (value any, ok bool)
}

// sliceIterable walks a fixed slice of precomputed values.
type sliceIterable struct {
	values []any
	i      int
}

// SliceIterable builds a RepeatIterable over a fixed slice.
func SliceIterable(values []any) RepeatIterable {
	return &sliceIterable{values: values}
}

func (s *sliceIterable) Next() (any, bool) {
	if s.i >= len(s.values) {
		return nil, false
	}
	v := s.values[s.i]
	s.i++
	return v, true
}

// rangeIterable produces start, start+step, ... while < stop (step>0) or >
// stop (step<0), mirroring the source's range(start, stop, step) factory.
type rangeIterable struct {
	cur, stop, step int
}

// RangeIterable builds the common range(start, stop, step) RepeatIterable.
func RangeIterable(start, stop, step int) RepeatIterable {
	if step == 0 {
		step = 1
	}
	return &rangeIterable{cur: start, stop: stop, step: step}
}

func (r *rangeIterable) Next() (any, bool) {
	if r.step > 0 && r.cur >= r.stop {
		return nil, false
	}
	if r.step < 0 && r.cur <= r.stop {
		return nil, false
	}
	v := r.cur
	r.cur += r.step
	return v, true
}

// Repeat produces a fresh iterator on first activation and works as a
// two-node compound: it yields one seed order recruiting an internal Iter
// node and entering a new scope (control=ENTER, recall=Iter per the
// scheduler's handling of the returned Continuation). Repeat's own
// Continuation is exhausted after its seed order; Iter drives the loop.
type Repeat struct {
	baseNode
	NewIterable func() RepeatIterable
	PerIter     []Handle // downstreams recruited once per element, inside the iteration scope
	PostLoop    []Handle // downstreams recruited once after exhaustion, in Repeat's own scope
}

// NewRepeat builds a Repeat node bound to handle id.
func NewRepeat(id Handle, newIterable func() RepeatIterable, perIter, postLoop []Handle) *Repeat {
	return &Repeat{baseNode: baseNode{id}, NewIterable: newIterable, PerIter: perIter, PostLoop: postLoop}
}

// Step implements Continuation.
func (r *Repeat) Step(*Context) (Order, Continuation) {
	it := r.NewIterable()
	iter := &repeatIter{uid: r.id, it: it, perIter: r.PerIter, postLoop: r.PostLoop}
	// Seed order: no work, ENTER a scope whose recall is the Iter state
	// machine primed to fetch the first element.
	return Order{UID: r.id, Control: ControlEnter, Recruit: nil}, iter
}

// repeatIter is Repeat's internal per-iteration state machine (the
// "Iter" node of the node protocol). It is never a standalone graph
// member; Repeat constructs and recalls it.
type repeatIter struct {
	uid      Handle
	it       RepeatIterable
	perIter  []Handle
	postLoop []Handle
}

// Step implements Continuation. Each call fetches the next element; if one
// exists, it's released under Repeat's uid, PerIter downstreams are
// recruited, and a fresh scope is entered (recall = this same *repeatIter,
// now advanced) so the next drain re-invokes Step. Once exhausted, the
// final order recruits PostLoop with Control=NONE and no further
// Continuation — the loop is done.
func (it *repeatIter) Step(*Context) (Order, Continuation) {
	v, ok := it.it.Next()
	if !ok {
		return Order{UID: it.uid, Recruit: it.postLoop, Control: ControlNone}, nil
	}
	order := Order{UID: it.uid, Recruit: it.perIter, Control: ControlEnter}.WithRelease(v)
	return order, it
}
