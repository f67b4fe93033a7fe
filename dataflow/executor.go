package dataflow

import "context"

// Status is the terminal disposition of a submitted task.
type Status int

const (
	// StatusSuccess means the task's callable returned without error.
	StatusSuccess Status = iota
	// StatusFailed means the task's callable returned an error, or the
	// task's args/kwargs failed to evaluate against the submitted view.
	StatusFailed
	// StatusCancelled means the task was cancelled before it produced a
	// result, or its result was discarded following cancellation.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailed:
		return "FAILED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// TaskEvent is delivered to a submission's on-done callback exactly once.
type TaskEvent struct {
	TaskID string
	Status Status

	// Cell holds the task's result on StatusSuccess, allocated by the
	// context's configured CellFactory. Nil otherwise.
	Cell Cell

	// Err holds the failure cause on StatusFailed. Nil otherwise.
	Err error
}

// Executor is the contract a work executor must satisfy so the scheduler
// can submit work, learn of completion, and shut down cleanly. The
// reference implementation is executor.Pool (see dataflow/executor), a
// bounded worker pool; any implementation satisfying this interface may be
// substituted.
type Executor interface {
	// Register permanently associates fn with a fresh function id, for the
	// life of the process. Registrations cannot be revoked.
	Register(fn Func) (fid string)

	// Call synchronously invokes the callable registered under fid with
	// already-evaluated argument values, bypassing the scheduler entirely.
	// This is the mechanism a Function expression (see Function in
	// expr.go) uses to dispatch by id instead of carrying a closure
	// directly, keeping expression trees cloneable and serialisable the
	// same way Execute's Fid does for scheduled work.
	Call(fid string, args []any, kwargs map[string]any) (any, error)

	// Submit asynchronously evaluates args/kwargs against view, invokes the
	// callable registered under fid, and delivers exactly one TaskEvent to
	// onDone. ctx bounds the submission's lifetime (e.g. a per-node
	// timeout); cancelling ctx is equivalent to calling Cancel(taskID).
	Submit(ctx context.Context, fid string, view *Context, args []Expr, kwargs map[string]Expr, onDone func(TaskEvent)) (taskID string, err error)

	// Cancel best-effort cancels a pending or running task. A task that
	// has not begun running transitions to StatusCancelled; a task already
	// running may run to completion, with its eventual event suppressed or
	// delivered as StatusCancelled — the implementation's choice, applied
	// consistently. Returns false if taskID is unknown.
	Cancel(taskID string) bool

	// Shutdown cancels all pending work. If wait, it blocks until every
	// in-flight task has delivered its event.
	Shutdown(wait bool)
}
