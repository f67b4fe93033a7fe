// Command dfrun is a smoke-test CLI for the dataflow engine: it builds a
// power-iteration graph over a fixed symmetric positive-definite matrix,
// drives it through a Scheduler/Pool, and prints the converged eigenvalue
// estimate. It exercises the executor pool, the emitter, metrics, the
// formula sandbox, and the Repeat/Branch/Break control-flow nodes together,
// in one place.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kelvinarroyo/dataflow-go/dataflow"
	"github.com/kelvinarroyo/dataflow-go/dataflow/emit"
	"github.com/kelvinarroyo/dataflow-go/dataflow/executor"
	"github.com/kelvinarroyo/dataflow-go/dataflow/formula"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dfrun",
		Short: "Run dataflow example graphs against the engine",
	}
	root.AddCommand(newPowerIterCmd())
	return root
}

func newPowerIterCmd() *cobra.Command {
	var (
		size      int
		workers   int
		maxIters  int
		tolerance float64
		seed      int64
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "poweriter",
		Short: "Estimate the dominant eigenvalue of a random symmetric positive-definite matrix via power iteration",
		RunE: func(cmd *cobra.Command, args []string) error {
			matrix := randomSPDMatrix(size, seed)

			pool := executor.NewPool(workers, 0)
			defer pool.Shutdown(true)

			registry := prometheus.NewRegistry()
			metrics := dataflow.NewPrometheusMetrics(registry)
			logEmitter := emit.NewLogEmitter(cmd.OutOrStdout(), asJSON)

			sched, err := dataflow.NewScheduler(pool,
				dataflow.WithEmitter(logEmitter),
				dataflow.WithMetrics(metrics),
				dataflow.WithMaxInflight(workers*4),
			)
			if err != nil {
				return err
			}

			g, err := buildPowerIterationGraph(sched, pool, maxIters, tolerance)
			if err != nil {
				return err
			}

			start := time.Now()
			result, err := g.Call(context.Background(), nil, map[string]any{"matrix": matrix})
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			out, ok := result.(map[string]any)
			if !ok {
				return fmt.Errorf("dfrun: unexpected exposed shape %T", result)
			}
			out["elapsed_ms"] = elapsed.Milliseconds()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().IntVar(&size, "size", 50, "matrix dimension (N x N)")
	cmd.Flags().IntVar(&workers, "workers", 8, "executor pool worker count")
	cmd.Flags().IntVar(&maxIters, "max-iters", 200, "maximum power-iteration steps before giving up")
	cmd.Flags().Float64Var(&tolerance, "tolerance", 1e-9, "convergence threshold on successive vector delta")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed for matrix generation")
	cmd.Flags().BoolVar(&asJSON, "json-events", false, "emit scheduler events as JSON instead of plain text")
	return cmd
}

// Node handles for the power-iteration graph. Handle 0 (dataflow.InputHandle)
// is reserved for the graph's input bundle.
const (
	hInit dataflow.Handle = iota + 1
	hRepeat
	hMatVec
	hBranch
	hBreak
)

// buildPowerIterationGraph wires the graph described in the package doc:
// hInit seeds a unit vector from the input matrix, hRepeat drives up to
// maxIters activations of hMatVec (each reading its own previous output via
// Union, falling back to hInit's seed on the first iteration), and hBranch
// recruits hBreak once the vector delta drops under tolerance, cancelling
// the iteration scope early.
func buildPowerIterationGraph(sched *dataflow.Scheduler, pool *executor.Pool, maxIters int, tolerance float64) (*dataflow.Graph, error) {
	evaluator := formula.New(64)

	initFid := pool.Register(initVectorFunc)
	matVecFid := pool.Register(matVecStepFunc)

	matrixExpr := dataflow.Indexed(dataflow.InputHandle, dataflow.Const("matrix"))

	nodes := map[dataflow.Handle]dataflow.Node{
		hInit: dataflow.NewExecute(hInit, initFid, []dataflow.Expr{matrixExpr}, nil, []dataflow.Handle{hRepeat}),

		hRepeat: dataflow.NewRepeat(hRepeat, func() dataflow.RepeatIterable {
			return dataflow.RangeIterable(0, maxIters, 1)
		}, []dataflow.Handle{hMatVec}, nil),

		hMatVec: dataflow.NewExecute(hMatVec, matVecFid, []dataflow.Expr{
			dataflow.Union(
				dataflow.GetItem(dataflow.Ref(hMatVec), dataflow.Const("vector")),
				dataflow.GetItem(dataflow.Ref(hInit), dataflow.Const("vector")),
			),
			matrixExpr,
		}, nil, []dataflow.Handle{hBranch}),

		hBranch: dataflow.NewBranch(hBranch,
			dataflow.Formula(evaluator, "delta < tolerance", map[string]dataflow.Expr{
				"delta":     dataflow.GetItem(dataflow.Ref(hMatVec), dataflow.Const("delta")),
				"tolerance": dataflow.Const(tolerance),
			}),
			[]dataflow.Handle{hBreak},
			nil,
		),

		hBreak: dataflow.NewBreak(hBreak, nil),
	}

	return dataflow.NewGraph(dataflow.Handle(-1), sched, nodes, []dataflow.Handle{hInit}, dataflow.ExposeMapping(map[string]dataflow.Expr{
		"lambda":     dataflow.GetItem(dataflow.Ref(hMatVec), dataflow.Const("lambda")),
		"delta":      dataflow.GetItem(dataflow.Ref(hMatVec), dataflow.Const("delta")),
		"iterations": dataflow.Ref(hRepeat),
	})), nil
}

// initVectorFunc seeds an all-ones unit vector sized to the input matrix.
func initVectorFunc(args []any, _ map[string]any) (any, error) {
	matrix, err := asMatrix(args[0])
	if err != nil {
		return nil, err
	}
	n := len(matrix)
	v := make([]float64, n)
	norm := 1.0 / math.Sqrt(float64(n))
	for i := range v {
		v[i] = norm
	}
	return map[string]any{"vector": v}, nil
}

// matVecStepFunc performs one power-iteration step: w = M*v, lambda = v.w
// (the Rayleigh quotient against a unit v), then normalizes w into the next
// vector and reports the Euclidean delta against the previous one.
func matVecStepFunc(args []any, _ map[string]any) (any, error) {
	v, ok := args[0].([]float64)
	if !ok {
		return nil, fmt.Errorf("matVecStep: vector arg is %T, want []float64", args[0])
	}
	matrix, err := asMatrix(args[1])
	if err != nil {
		return nil, err
	}

	w := make([]float64, len(matrix))
	for i, row := range matrix {
		var sum float64
		for j, a := range row {
			sum += a * v[j]
		}
		w[i] = sum
	}

	var lambda float64
	for i := range v {
		lambda += v[i] * w[i]
	}

	var normSq float64
	for _, x := range w {
		normSq += x * x
	}
	norm := math.Sqrt(normSq)
	if norm == 0 {
		return nil, fmt.Errorf("matVecStep: zero vector, matrix is singular along this direction")
	}

	next := make([]float64, len(w))
	var deltaSq float64
	for i, x := range w {
		next[i] = x / norm
		d := next[i] - v[i]
		deltaSq += d * d
	}

	return map[string]any{
		"vector": next,
		"lambda": lambda,
		"delta":  math.Sqrt(deltaSq),
	}, nil
}

func asMatrix(v any) ([][]float64, error) {
	m, ok := v.([][]float64)
	if !ok {
		return nil, fmt.Errorf("expected [][]float64 matrix, got %T", v)
	}
	return m, nil
}

// randomSPDMatrix builds a deterministic n x n symmetric positive-definite
// matrix as A^T A plus a diagonal term, from a fixed seed.
func randomSPDMatrix(n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))

	a := make([][]float64, n)
	for i := range a {
		a[i] = make([]float64, n)
		for j := range a[i] {
			a[i][j] = rng.NormFloat64()
		}
	}

	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for k := 0; k < n; k++ {
				sum += a[k][i] * a[k][j]
			}
			m[i][j] = sum
		}
		m[i][i] += float64(n) // keep it well-conditioned and strictly positive-definite
	}
	return m
}
