package main

import (
	"context"
	"math"
	"testing"

	"github.com/kelvinarroyo/dataflow-go/dataflow"
	"github.com/kelvinarroyo/dataflow-go/dataflow/executor"
)

func TestPowerIterationConvergesToDominantEigenvalue(t *testing.T) {
	matrix := randomSPDMatrix(20, 7)

	pool := executor.NewPool(4, 0)
	defer pool.Shutdown(true)

	sched, err := dataflow.NewScheduler(pool, dataflow.WithMaxInflight(16))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	g, err := buildPowerIterationGraph(sched, pool, 500, 1e-10)
	if err != nil {
		t.Fatalf("buildPowerIterationGraph: %v", err)
	}

	result, err := g.Call(context.Background(), nil, map[string]any{"matrix": matrix})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	out, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("exposed result is %T, want map[string]any", result)
	}

	lambda, ok := out["lambda"].(float64)
	if !ok {
		t.Fatalf("lambda is %T, want float64", out["lambda"])
	}
	delta, ok := out["delta"].(float64)
	if !ok {
		t.Fatalf("delta is %T, want float64", out["delta"])
	}
	iterations, ok := out["iterations"].(int)
	if !ok {
		t.Fatalf("iterations is %T, want int", out["iterations"])
	}

	if delta >= 1e-10 {
		t.Errorf("delta = %v, want < 1e-10 (should have converged before max-iters)", delta)
	}
	if iterations >= 500 {
		t.Errorf("iterations = %d, want < 500 (should break early on convergence)", iterations)
	}
	if lambda <= 0 {
		t.Errorf("lambda = %v, want > 0 for a positive-definite matrix", lambda)
	}
	if math.IsNaN(lambda) || math.IsInf(lambda, 0) {
		t.Errorf("lambda = %v, want a finite number", lambda)
	}
}

func TestPowerIterationStopsAtMaxItersWithoutConvergence(t *testing.T) {
	matrix := randomSPDMatrix(10, 3)

	pool := executor.NewPool(2, 0)
	defer pool.Shutdown(true)

	sched, err := dataflow.NewScheduler(pool)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	// An unreachable tolerance forces the loop to exhaust its range
	// iterable rather than Break early.
	g, err := buildPowerIterationGraph(sched, pool, 5, -1)
	if err != nil {
		t.Fatalf("buildPowerIterationGraph: %v", err)
	}

	result, err := g.Call(context.Background(), nil, map[string]any{"matrix": matrix})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	out := result.(map[string]any)
	iterations := out["iterations"].(int)
	if iterations != 4 {
		t.Errorf("iterations = %d, want 4 (range(0,5,1) last value before exhaustion)", iterations)
	}
}

func TestRandomSPDMatrixIsSymmetric(t *testing.T) {
	m := randomSPDMatrix(8, 99)
	for i := range m {
		for j := range m {
			if m[i][j] != m[j][i] {
				t.Fatalf("matrix not symmetric at (%d,%d): %v != %v", i, j, m[i][j], m[j][i])
			}
		}
	}
}
