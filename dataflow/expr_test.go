package dataflow

import (
	"errors"
	"testing"
)

func ctxWith(vals map[Handle]any) *Context {
	c := NewContext(nil)
	for h, v := range vals {
		c.Bind(h, c.New(v))
	}
	return c
}

func TestConstExpr(t *testing.T) {
	e := Const(42)
	v, err := e.Eval(ctxWith(nil))
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v != 42 {
		t.Errorf("Eval = %v, want 42", v)
	}
	if len(e.Refs()) != 0 {
		t.Errorf("Refs = %v, want empty", e.Refs())
	}
}

func TestRefExpr(t *testing.T) {
	t.Run("bound handle", func(t *testing.T) {
		ctx := ctxWith(map[Handle]any{5: "hello"})
		v, err := Ref(5).Eval(ctx)
		if err != nil {
			t.Fatalf("Eval: %v", err)
		}
		if v != "hello" {
			t.Errorf("Eval = %v, want hello", v)
		}
	})

	t.Run("unbound handle fails DataNotFound", func(t *testing.T) {
		ctx := ctxWith(nil)
		_, err := Ref(9).Eval(ctx)
		var se *SchedulingError
		if !errors.As(err, &se) || se.Code() != CodeDataNotFound {
			t.Fatalf("Eval err = %v, want DataNotFound", err)
		}
	})

	t.Run("Refs reports the handle", func(t *testing.T) {
		refs := Ref(7).Refs()
		if _, ok := refs[7]; !ok || len(refs) != 1 {
			t.Errorf("Refs = %v, want {7}", refs)
		}
	})
}

func TestIndexedAndGetItem(t *testing.T) {
	ctx := ctxWith(map[Handle]any{
		1: map[string]any{"a": 1, "b": 2},
		2: []any{"x", "y", "z"},
	})

	t.Run("Indexed into a map", func(t *testing.T) {
		v, err := Indexed(1, Const("b")).Eval(ctx)
		if err != nil || v != 2 {
			t.Fatalf("Eval = %v, %v, want 2, nil", v, err)
		}
	})

	t.Run("Indexed into a slice", func(t *testing.T) {
		v, err := Indexed(2, Const(1)).Eval(ctx)
		if err != nil || v != "y" {
			t.Fatalf("Eval = %v, %v, want y, nil", v, err)
		}
	})

	t.Run("missing map key fails DataGetItem", func(t *testing.T) {
		_, err := Indexed(1, Const("missing")).Eval(ctx)
		var se *SchedulingError
		if !errors.As(err, &se) || se.Code() != CodeDataGetItemFailed {
			t.Fatalf("err = %v, want DataGetItemFailed", err)
		}
	})

	t.Run("GetItem on an unbound inner ref propagates DataNotFound unchanged", func(t *testing.T) {
		_, err := GetItem(Ref(99), Const("a")).Eval(ctx)
		var se *SchedulingError
		if !errors.As(err, &se) || se.Code() != CodeDataNotFound {
			t.Fatalf("err = %v, want DataNotFound propagated through GetItem", err)
		}
	})

	t.Run("GetItem chains over a Ref", func(t *testing.T) {
		v, err := GetItem(Ref(1), Const("a")).Eval(ctx)
		if err != nil || v != 1 {
			t.Fatalf("Eval = %v, %v, want 1, nil", v, err)
		}
	})
}

func TestUnion(t *testing.T) {
	ctx := ctxWith(map[Handle]any{1: "present"})

	t.Run("first success wins", func(t *testing.T) {
		v, err := Union(Const("a"), Const("b")).Eval(ctx)
		if err != nil || v != "a" {
			t.Fatalf("Eval = %v, %v, want a, nil", v, err)
		}
	})

	t.Run("falls through DataNotFound to the next branch", func(t *testing.T) {
		v, err := Union(Ref(404), Ref(1)).Eval(ctx)
		if err != nil || v != "present" {
			t.Fatalf("Eval = %v, %v, want present, nil", v, err)
		}
	})

	t.Run("fails UnionError when every branch fails", func(t *testing.T) {
		_, err := Union(Ref(404), Ref(405)).Eval(ctx)
		var se *SchedulingError
		if !errors.As(err, &se) || se.Code() != CodeUnionFailed {
			t.Fatalf("err = %v, want UnionFailed", err)
		}
	})

	t.Run("flattens nested unions", func(t *testing.T) {
		u := Union(Union(Ref(404), Const("inner")), Const("outer"))
		flat, ok := u.(unionExpr)
		if !ok {
			t.Fatalf("Union did not return unionExpr")
		}
		if len(flat.exprs) != 3 {
			t.Errorf("flattened len = %d, want 3", len(flat.exprs))
		}
	})

	t.Run("Or is sugar for a two-branch Union", func(t *testing.T) {
		v, err := Or(Ref(404), Const("fallback")).Eval(ctx)
		if err != nil || v != "fallback" {
			t.Fatalf("Eval = %v, %v, want fallback, nil", v, err)
		}
	})
}

type fakeFormulaEvaluator struct{}

func (fakeFormulaEvaluator) Eval(source string, vars map[string]any) (any, error) {
	if source == "boom" {
		return nil, errors.New("boom")
	}
	a, _ := vars["a"].(int)
	b, _ := vars["b"].(int)
	return a + b, nil
}

func TestFormulaExpr(t *testing.T) {
	ctx := ctxWith(map[Handle]any{1: 10})
	eval := fakeFormulaEvaluator{}

	t.Run("evaluates against bound variables", func(t *testing.T) {
		f := Formula(eval, "a + b", map[string]Expr{"a": Ref(1), "b": Const(5)})
		v, err := f.Eval(ctx)
		if err != nil || v != 15 {
			t.Fatalf("Eval = %v, %v, want 15, nil", v, err)
		}
	})

	t.Run("evaluator failure wraps ExpressionFailed", func(t *testing.T) {
		f := Formula(eval, "boom", nil)
		_, err := f.Eval(ctx)
		var se *SchedulingError
		if !errors.As(err, &se) || se.Code() != CodeExpressionFailed {
			t.Fatalf("err = %v, want ExpressionFailed", err)
		}
	})

	t.Run("a failing binding wraps ExpressionFailed before the evaluator runs", func(t *testing.T) {
		f := Formula(eval, "a + b", map[string]Expr{"a": Ref(404), "b": Const(1)})
		_, err := f.Eval(ctx)
		var se *SchedulingError
		if !errors.As(err, &se) || se.Code() != CodeExpressionFailed {
			t.Fatalf("err = %v, want ExpressionFailed", err)
		}
	})
}

func TestFunctionExpr(t *testing.T) {
	ctx := ctxWith(map[Handle]any{1: 3})
	registry := newInlineExecutor()
	addFid := registry.Register(func(args []any, kwargs map[string]any) (any, error) {
		return args[0].(int) + kwargs["extra"].(int), nil
	})

	t.Run("evaluates args and kwargs then dispatches by fid", func(t *testing.T) {
		f := Function(registry, addFid, []Expr{Ref(1)}, map[string]Expr{"extra": Const(4)})
		v, err := f.Eval(ctx)
		if err != nil || v != 7 {
			t.Fatalf("Eval = %v, %v, want 7, nil", v, err)
		}
	})

	t.Run("fn error wraps ExpressionFailed", func(t *testing.T) {
		failingFid := registry.Register(func(args []any, kwargs map[string]any) (any, error) {
			return nil, errors.New("nope")
		})
		_, err := Function(registry, failingFid, nil, nil).Eval(ctx)
		var se *SchedulingError
		if !errors.As(err, &se) || se.Code() != CodeExpressionFailed {
			t.Fatalf("err = %v, want ExpressionFailed", err)
		}
	})

	t.Run("unregistered fid wraps ExpressionFailed", func(t *testing.T) {
		_, err := Function(registry, "no-such-fid", nil, nil).Eval(ctx)
		var se *SchedulingError
		if !errors.As(err, &se) || se.Code() != CodeExpressionFailed {
			t.Fatalf("err = %v, want ExpressionFailed", err)
		}
	})
}
