package dataflow

import (
	"time"

	"github.com/kelvinarroyo/dataflow-go/dataflow/emit"
)

// Emitter is the observability sink a Scheduler reports to. It is an alias
// of emit.Emitter so callers can pass any emit.* implementation without an
// import of both packages under different names.
type Emitter = emit.Emitter

// Option configures a Scheduler at construction time.
//
// Functional options keep the constructor signature stable as configuration
// grows: Scheduler(executor, WithMaxInflight(500), WithQueueDepth(4096)).
type Option func(*schedulerConfig) error

// schedulerConfig collects options before they're applied to a Scheduler.
type schedulerConfig struct {
	maxInflight        int
	queueDepth         int
	defaultNodeTimeout time.Duration
	runWallClockBudget time.Duration
	metrics            *PrometheusMetrics
	emitter            Emitter
	cellFactory        CellFactory
	errorHooks         []ErrorHook
}

func defaultSchedulerConfig() schedulerConfig {
	return schedulerConfig{
		maxInflight: 1000,
		queueDepth:  4096,
	}
}

// ErrorHook receives every node-level error the scheduler absorbs (an
// activation that failed without cancelling its scope — see §7). Hooks are
// invoked synchronously from the driver loop and must not block.
type ErrorHook func(nodeID string, err error)

// WithMaxInflight bounds the number of orders submitted to the executor
// concurrently. Default 1000, per the engine's in-flight bound.
func WithMaxInflight(n int) Option {
	return func(cfg *schedulerConfig) error {
		cfg.maxInflight = n
		return nil
	}
}

// WithQueueDepth sets the soft threshold the ready queue's length is
// checked against after each pass through the driver loop: once len(ready)
// exceeds it, the scheduler records a "queue_full" backpressure metric
// (see PrometheusMetrics.IncrementBackpressure) but does not block — the
// ready queue is an in-process slice owned solely by the driver loop, with
// no separate producer to block against. Default 4096.
func WithQueueDepth(n int) Option {
	return func(cfg *schedulerConfig) error {
		cfg.queueDepth = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the timeout applied to executor submissions
// whose node carries no NodePolicy.Timeout override. Default 0 (no
// timeout); this layer otherwise imposes none (§5).
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *schedulerConfig) error {
		cfg.defaultNodeTimeout = d
		return nil
	}
}

// WithRunWallClockBudget bounds the total duration of a single forward.
// When exceeded, Forward returns context.DeadlineExceeded and the executor
// is asked to shut down pending work. Default 0 (unbounded).
func WithRunWallClockBudget(d time.Duration) Option {
	return func(cfg *schedulerConfig) error {
		cfg.runWallClockBudget = d
		return nil
	}
}

// WithMetrics attaches a Prometheus metrics collector.
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *schedulerConfig) error {
		cfg.metrics = metrics
		return nil
	}
}

// WithEmitter attaches an observability Emitter. Default is a NullEmitter.
func WithEmitter(e Emitter) Option {
	return func(cfg *schedulerConfig) error {
		cfg.emitter = e
		return nil
	}
}

// WithCellFactory sets the cell construction of the Context that Graph.Call
// creates for each forward. Default is DefaultCellFactory (heap-local
// cells). A Context passed directly to Forward keeps its own factory.
func WithCellFactory(f CellFactory) Option {
	return func(cfg *schedulerConfig) error {
		cfg.cellFactory = f
		return nil
	}
}

// WithErrorHook registers a hook invoked for every node-level error the
// scheduler absorbs without cancelling the activation's scope (§7). Hooks
// accumulate across repeated calls.
func WithErrorHook(hook ErrorHook) Option {
	return func(cfg *schedulerConfig) error {
		cfg.errorHooks = append(cfg.errorHooks, hook)
		return nil
	}
}
