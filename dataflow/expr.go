package dataflow

import "fmt"

// Expr is a tree of pure value producers evaluated against a Context.
// Evaluation never mutates the context; the only context operation an Expr
// performs is Cell.Get through Context.Lookup.
type Expr interface {
	// Eval evaluates the expression against ctx.
	Eval(ctx *Context) (any, error)

	// Refs returns the transitive set of handles this expression reads.
	// Refs is pure and idempotent: calling it twice on the same Expr
	// returns the same set, and shipping ctx.View(Refs(e)) to a worker
	// yields the same Eval result as shipping ctx itself.
	Refs() map[Handle]struct{}
}

func noRefs() map[Handle]struct{} { return map[Handle]struct{}{} }

func unionRefs(exprs ...Expr) map[Handle]struct{} {
	out := make(map[Handle]struct{})
	for _, e := range exprs {
		for h := range e.Refs() {
			out[h] = struct{}{}
		}
	}
	return out
}

// ToExpr wraps a plain value as a Const expression unless it is already an
// Expr, mirroring the sugar used when wiring node arguments.
func ToExpr(v any) Expr {
	if e, ok := v.(Expr); ok {
		return e
	}
	return Const(v)
}

// --- Const ---------------------------------------------------------------

// constExpr always returns the same value, regardless of context.
type constExpr struct{ value any }

// Const builds a constant expression.
func Const(value any) Expr { return constExpr{value} }

func (c constExpr) Eval(*Context) (any, error) { return c.value, nil }
func (c constExpr) Refs() map[Handle]struct{}  { return noRefs() }

// --- Reference -------------------------------------------------------------

// refExpr reads context.Lookup(handle).Get(), failing DataNotFound if the
// handle is unbound.
type refExpr struct{ h Handle }

// Ref builds a reference expression to handle h.
func Ref(h Handle) Expr { return refExpr{h} }

func (r refExpr) Eval(ctx *Context) (any, error) {
	cell, ok := ctx.Lookup(r.h)
	if !ok {
		return nil, ErrDataNotFound(r.h)
	}
	v, err := cell.Get()
	if err != nil {
		return nil, ErrDataNotFound(r.h)
	}
	return v, nil
}

func (r refExpr) Refs() map[Handle]struct{} {
	return map[Handle]struct{}{r.h: {}}
}

// --- Indexed / GetItem -----------------------------------------------------

// indexedExpr reads context.Lookup(handle).Get()[key], failing
// DataGetItem on lookup failure. key is itself an expression.
type indexedExpr struct {
	h   Handle
	key Expr
}

// Indexed builds an expression that subscripts the value at handle h with
// the value produced by keyExpr.
func Indexed(h Handle, keyExpr Expr) Expr { return indexedExpr{h, keyExpr} }

func (g indexedExpr) Eval(ctx *Context) (any, error) {
	base, err := (refExpr{g.h}).Eval(ctx)
	if err != nil {
		return nil, err
	}
	return evalGetItem(ctx, base, g.key)
}

func (g indexedExpr) Refs() map[Handle]struct{} {
	out := unionRefs(g.key)
	out[g.h] = struct{}{}
	return out
}

// getItemExpr indexes an arbitrary inner expression's result, rather than
// a handle directly.
type getItemExpr struct {
	inner Expr
	key   Expr
}

// GetItem builds an expression that subscripts inner's result with key's
// result.
func GetItem(inner Expr, key Expr) Expr { return getItemExpr{inner, key} }

func (g getItemExpr) Eval(ctx *Context) (any, error) {
	base, err := g.inner.Eval(ctx)
	if err != nil {
		return nil, err
	}
	return evalGetItem(ctx, base, g.key)
}

func (g getItemExpr) Refs() map[Handle]struct{} {
	return unionRefs(g.inner, g.key)
}

func evalGetItem(ctx *Context, base any, keyExpr Expr) (any, error) {
	key, err := keyExpr.Eval(ctx)
	if err != nil {
		return nil, err
	}

	switch v := base.(type) {
	case map[string]any:
		k, ok := key.(string)
		if !ok {
			return nil, ErrDataGetItem(fmt.Sprintf("%T", base), key, nil)
		}
		val, ok := v[k]
		if !ok {
			return nil, ErrDataGetItem("map", key, nil)
		}
		return val, nil
	case []any:
		idx, err := asInt(key)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil, ErrDataGetItem("slice", key, err)
		}
		return v[idx], nil
	default:
		return nil, ErrDataGetItem(fmt.Sprintf("%T", base), key, nil)
	}
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("index %v is not an integer", v)
	}
}

// --- Union -----------------------------------------------------------------

// unionExpr returns the first sub-expression whose Eval succeeds with one
// of {DataNotFound, DataGetItem, ExprEval}; if all fail, fails UnionError.
// Any other error propagates unchanged.
type unionExpr struct{ exprs []Expr }

// Union builds a left-biased union of exprs, automatically flattening any
// nested Union so that `(a|b)|c` behaves identically to `a|b|c`.
func Union(exprs ...Expr) Expr {
	flat := make([]Expr, 0, len(exprs))
	for _, e := range exprs {
		if u, ok := e.(unionExpr); ok {
			flat = append(flat, u.exprs...)
		} else {
			flat = append(flat, e)
		}
	}
	return unionExpr{flat}
}

func (u unionExpr) Eval(ctx *Context) (any, error) {
	for _, e := range u.exprs {
		v, err := e.Eval(ctx)
		if err == nil {
			return v, nil
		}
		if !isRecoverableByUnion(err) {
			return nil, err
		}
	}
	return nil, ErrUnion()
}

func (u unionExpr) Refs() map[Handle]struct{} {
	return unionRefs(u.exprs...)
}

// Or is operator sugar for Union(e, other), flattening nested unions.
func Or(e, other Expr) Expr { return Union(e, other) }

// --- Formula -----------------------------------------------------------------

// FormulaEvaluator compiles and evaluates restricted textual math
// expressions. dataflow/formula implements this via github.com/expr-lang/expr
// against a sandboxed math environment; it is injected rather than
// hard-wired so the core package never depends on a particular expression
// grammar.
type FormulaEvaluator interface {
	Eval(source string, vars map[string]any) (any, error)
}

// formulaExpr evaluates source in a restricted mathematical sandbox, with
// bindings providing free variables. Fails ExprEval on any underlying
// failure.
type formulaExpr struct {
	evaluator FormulaEvaluator
	source    string
	bindings  map[string]Expr
}

// Formula builds a formula expression. evaluator is typically
// formula.New(capacity) from the dataflow/formula package.
func Formula(evaluator FormulaEvaluator, source string, bindings map[string]Expr) Expr {
	return formulaExpr{evaluator, source, bindings}
}

func (f formulaExpr) Eval(ctx *Context) (any, error) {
	vars := make(map[string]any, len(f.bindings))
	for name, sub := range f.bindings {
		v, err := sub.Eval(ctx)
		if err != nil {
			return nil, ErrExpression(err)
		}
		vars[name] = v
	}
	result, err := f.evaluator.Eval(f.source, vars)
	if err != nil {
		return nil, ErrExpression(err)
	}
	return result, nil
}

func (f formulaExpr) Refs() map[Handle]struct{} {
	subs := make([]Expr, 0, len(f.bindings))
	for _, e := range f.bindings {
		subs = append(subs, e)
	}
	return unionRefs(subs...)
}

// --- Function ----------------------------------------------------------------

// Func is the contract a registered callable satisfies, shared by Function
// expressions and Execute orders alike.
type Func func(args []any, kwargs map[string]any) (any, error)

// functionExpr evaluates sub-expressions, dispatches to the callable
// registered as fid, returns the result. Fails ExprEval on any underlying
// failure.
type functionExpr struct {
	registry Executor
	fid      string
	args     []Expr
	kwargs   map[string]Expr
}

// Function builds a function-call expression that dispatches to fid,
// previously returned by registry.Register(fn). Like Execute, it carries
// an id rather than a closure, so the resulting expression tree stays
// trivially cloneable and serialisable; registry.Call resolves and invokes
// the callable synchronously, without going through the scheduler.
func Function(registry Executor, fid string, args []Expr, kwargs map[string]Expr) Expr {
	return functionExpr{registry, fid, args, kwargs}
}

func (f functionExpr) Eval(ctx *Context) (any, error) {
	argVals := make([]any, len(f.args))
	for i, a := range f.args {
		v, err := a.Eval(ctx)
		if err != nil {
			return nil, ErrExpression(err)
		}
		argVals[i] = v
	}

	kwVals := make(map[string]any, len(f.kwargs))
	for name, e := range f.kwargs {
		v, err := e.Eval(ctx)
		if err != nil {
			return nil, ErrExpression(err)
		}
		kwVals[name] = v
	}

	result, err := f.registry.Call(f.fid, argVals, kwVals)
	if err != nil {
		return nil, ErrExpression(err)
	}
	return result, nil
}

func (f functionExpr) Refs() map[Handle]struct{} {
	subs := make([]Expr, 0, len(f.args)+len(f.kwargs))
	subs = append(subs, f.args...)
	for _, e := range f.kwargs {
		subs = append(subs, e)
	}
	return unionRefs(subs...)
}
