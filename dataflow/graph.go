package dataflow

import (
	"context"
	"fmt"
)

// Exposes describes the shape of a Graph's output: a single expression, an
// ordered tuple of expressions, or a name-keyed mapping of expressions.
// Exactly one of Scalar, Tuple, Mapping is set, mirroring §4.7's "scalar →
// value, tuple → tuple, mapping → mapping" contract.
type Exposes struct {
	Scalar  Expr
	Tuple   []Expr
	Mapping map[string]Expr
}

// ExposeScalar builds an Exposes returning a single value.
func ExposeScalar(e Expr) Exposes { return Exposes{Scalar: e} }

// ExposeTuple builds an Exposes returning an ordered tuple of values.
func ExposeTuple(es ...Expr) Exposes { return Exposes{Tuple: es} }

// ExposeMapping builds an Exposes returning a name-keyed map of values.
func ExposeMapping(m map[string]Expr) Exposes { return Exposes{Mapping: m} }

// Graph bundles starters, an exposed output shape, and a uid, and produces
// a compiled callable via Call/Lambdify. A Graph also doubles as the
// nodeRegistry the Scheduler dispatches recruits through.
type Graph struct {
	uid       Handle
	starters  []Handle
	exposes   Exposes
	nodes     map[Handle]Node
	scheduler *Scheduler
	runIDFunc func() string
}

// NewGraph builds a Graph over scheduler, with uid identifying it when
// wrapped as a Group node. nodes must contain every handle reachable from
// starters via Recruit.
func NewGraph(uid Handle, scheduler *Scheduler, nodes map[Handle]Node, starters []Handle, exposes Exposes) *Graph {
	return &Graph{
		uid:       uid,
		starters:  starters,
		exposes:   exposes,
		nodes:     nodes,
		scheduler: scheduler,
	}
}

// NodeAt implements nodeRegistry.
func (g *Graph) NodeAt(h Handle) (Node, bool) {
	n, ok := g.nodes[h]
	return n, ok
}

// Call writes args/kwargs into a fresh Context's input bundle, runs a
// forward over g's starters, and evaluates g's exposed expressions,
// returning them in the shape Exposes describes. args and kwargs both
// populate a single map[string]any bound under InputHandle: positional
// arguments land under the decimal string keys "0", "1", …, keyword
// arguments under their names. Positional arguments are not stored under
// integer keys, so GetItem reads them with the string key ("0"). The
// Context is built with the Scheduler's configured CellFactory.
func (g *Graph) Call(parent context.Context, args []any, kwargs map[string]any) (any, error) {
	input := make(map[string]any, len(args)+len(kwargs))
	for i, a := range args {
		input[fmt.Sprintf("%d", i)] = a
	}
	for k, v := range kwargs {
		input[k] = v
	}

	dataCtx := NewContext(g.scheduler.cfg.cellFactory)
	dataCtx.Bind(InputHandle, dataCtx.New(input))

	runID := "forward"
	if g.runIDFunc != nil {
		runID = g.runIDFunc()
	}

	finalCtx, err := g.scheduler.Forward(parent, runID, dataCtx, g, g.starters)
	if err != nil {
		return nil, err
	}

	return g.exposeFrom(finalCtx)
}

// Lambdify returns g.Call bound as a standalone function value, the shape
// a Group node or external caller typically wants.
func (g *Graph) Lambdify() func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
	return g.Call
}

// Group wraps g as a node bound to handle id: activation invokes g.Call
// with the given bound arguments and recruits downstream.
func (g *Graph) Group(id Handle, args []Expr, kwargs map[string]Expr, downstream []Handle) *Group {
	return NewGroup(id, g, args, kwargs, downstream)
}

func (g *Graph) exposeFrom(ctx *Context) (any, error) {
	switch {
	case g.exposes.Scalar != nil:
		v, err := g.exposes.Scalar.Eval(ctx)
		if err != nil {
			return nil, ErrExposed("scalar", err)
		}
		return v, nil

	case g.exposes.Tuple != nil:
		out := make([]any, len(g.exposes.Tuple))
		for i, e := range g.exposes.Tuple {
			v, err := e.Eval(ctx)
			if err != nil {
				return nil, ErrExposed(i, err)
			}
			out[i] = v
		}
		return out, nil

	case g.exposes.Mapping != nil:
		out := make(map[string]any, len(g.exposes.Mapping))
		for k, e := range g.exposes.Mapping {
			v, err := e.Eval(ctx)
			if err != nil {
				return nil, ErrExposed(k, err)
			}
			out[k] = v
		}
		return out, nil

	default:
		return nil, nil
	}
}
