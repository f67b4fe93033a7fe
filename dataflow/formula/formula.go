// Package formula evaluates the restricted mathematical sandbox behind
// dataflow's Formula expression. It replaces an in-language eval (a direct
// liability in a systems language) with a small parsed AST: arithmetic,
// comparisons, named variables, and a whitelisted set of math builtins,
// compiled and cached via github.com/expr-lang/expr.
package formula

import (
	"container/list"
	"fmt"
	"math"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// mathEnv is the curated namespace every formula sees, in addition to its
// own bindings. No imports, no attribute chains escaping this namespace —
// expr-lang itself denies both by construction (there is no module system
// to import from, and env lookups are restricted to the map/struct given
// at compile time).
var mathEnv = map[string]any{
	"pi":    math.Pi,
	"e":     math.E,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"log":   math.Log,
	"log2":  math.Log2,
	"log10": math.Log10,
	"sqrt":  math.Sqrt,
	"abs":   math.Abs,
	"pow":   math.Pow,
	"min":   math.Min,
	"max":   math.Max,
	"floor": math.Floor,
	"ceil":  math.Ceil,
}

// cacheEntry is one compiled program kept in the LRU.
type cacheEntry struct {
	source  string
	program *vm.Program
}

// Evaluator compiles and evaluates formula source against per-call
// bindings, caching compiled programs by source text. It implements
// dataflow.FormulaEvaluator.
type Evaluator struct {
	capacity int

	mu      sync.RWMutex
	cache   map[string]*list.Element
	lruList *list.List
}

// New builds an Evaluator whose compiled-program cache holds up to
// capacity entries (0 defaults to 256).
func New(capacity int) *Evaluator {
	if capacity <= 0 {
		capacity = 256
	}
	return &Evaluator{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

// Eval compiles source (if not already cached) against an environment
// combining the curated math namespace with vars, then runs it.
func (e *Evaluator) Eval(source string, vars map[string]any) (any, error) {
	env := make(map[string]any, len(mathEnv)+len(vars))
	for k, v := range mathEnv {
		env[k] = v
	}
	for k, v := range vars {
		env[k] = v
	}

	program, err := e.compileAndCache(source, env)
	if err != nil {
		return nil, fmt.Errorf("formula: compile %q: %w", source, err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("formula: evaluate %q: %w", source, err)
	}
	return result, nil
}

func (e *Evaluator) compileAndCache(source string, env map[string]any) (*vm.Program, error) {
	if program, ok := e.get(source); ok {
		return program, nil
	}

	program, err := expr.Compile(source, expr.Env(env))
	if err != nil {
		return nil, err
	}

	e.put(source, program)
	return program, nil
}

func (e *Evaluator) get(source string) (*vm.Program, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if el, found := e.cache[source]; found {
		e.lruList.MoveToFront(el)
		return el.Value.(*cacheEntry).program, true
	}
	return nil, false
}

func (e *Evaluator) put(source string, program *vm.Program) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if el, found := e.cache[source]; found {
		e.lruList.MoveToFront(el)
		el.Value.(*cacheEntry).program = program
		return
	}

	el := e.lruList.PushFront(&cacheEntry{source: source, program: program})
	e.cache[source] = el

	if e.lruList.Len() > e.capacity {
		oldest := e.lruList.Back()
		if oldest != nil {
			e.lruList.Remove(oldest)
			delete(e.cache, oldest.Value.(*cacheEntry).source)
		}
	}
}
