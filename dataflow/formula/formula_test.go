package formula

import "testing"

func TestEvalArithmeticAndVariables(t *testing.T) {
	e := New(8)
	v, err := e.Eval("a + b * 2", map[string]any{"a": 1, "b": 3})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v != 7 {
		t.Errorf("Eval = %v, want 7", v)
	}
}

func TestEvalMathBuiltins(t *testing.T) {
	e := New(8)
	v, err := e.Eval("sqrt(x)", map[string]any{"x": 16.0})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v != 4.0 {
		t.Errorf("Eval = %v, want 4.0", v)
	}
}

func TestEvalComparison(t *testing.T) {
	e := New(8)
	v, err := e.Eval("delta < tolerance", map[string]any{"delta": 0.0001, "tolerance": 0.001})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v != true {
		t.Errorf("Eval = %v, want true", v)
	}
}

func TestCompileErrorIsReported(t *testing.T) {
	e := New(8)
	if _, err := e.Eval("this is not valid (((", nil); err == nil {
		t.Fatal("Eval succeeded on malformed source, want compile error")
	}
}

func TestCompiledProgramIsCachedAcrossCalls(t *testing.T) {
	e := New(1)
	if _, err := e.Eval("a + 1", map[string]any{"a": 1}); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if _, ok := e.get("a + 1"); !ok {
		t.Fatal("compiled program was not cached")
	}

	// A second distinct source, with capacity 1, should evict the first.
	if _, err := e.Eval("a + 2", map[string]any{"a": 1}); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if _, ok := e.get("a + 1"); ok {
		t.Error("LRU eviction did not remove the oldest entry")
	}
}

func TestMathNamespaceAvailableWithoutBindings(t *testing.T) {
	e := New(8)
	v, err := e.Eval("pi > 3", nil)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v != true {
		t.Errorf("Eval = %v, want true (curated math namespace always available)", v)
	}
}
