// Package executor provides Pool, a bounded worker-pool implementation of
// dataflow.Executor: a fixed number of goroutines dequeue submitted work
// from a bounded channel and evaluate it against the view handed to Submit,
// delivering exactly one TaskEvent per submission. The shape — fixed
// worker count, channel-backed queue, group-tracked shutdown — mirrors the
// engine's own concurrent runner, generalized from a state-reducing graph
// walk to dataflow's fid/args/kwargs task contract.
package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kelvinarroyo/dataflow-go/dataflow"
)

// job is one submission queued for a worker.
type job struct {
	ctx    context.Context
	taskID string
	fn     dataflow.Func
	view   *dataflow.Context
	args   []dataflow.Expr
	kwargs map[string]dataflow.Expr
	onDone func(dataflow.TaskEvent)
}

// Pool is a fixed-size worker pool implementing dataflow.Executor. Workers
// block on a shared queue; Submit enqueues without blocking the scheduler's
// driver loop longer than it takes to acquire a queue slot.
type Pool struct {
	queue chan job

	mu      sync.Mutex
	fns     map[string]dataflow.Func
	cancels map[string]context.CancelFunc
	closed  bool

	nextFid  atomic.Int64
	nextTask atomic.Int64

	group    *errgroup.Group
	groupCtx context.Context
	stop     context.CancelFunc
}

// NewPool builds a Pool with workers concurrent goroutines draining a queue
// of depth queueDepth. workers<=0 defaults to 8; queueDepth<=0 defaults to
// workers*2.
func NewPool(workers, queueDepth int) *Pool {
	if workers <= 0 {
		workers = 8
	}
	if queueDepth <= 0 {
		queueDepth = workers * 2
	}

	baseCtx, stop := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(baseCtx)

	p := &Pool{
		queue:    make(chan job, queueDepth),
		fns:      make(map[string]dataflow.Func),
		cancels:  make(map[string]context.CancelFunc),
		group:    group,
		groupCtx: groupCtx,
		stop:     stop,
	}

	for i := 0; i < workers; i++ {
		group.Go(func() error {
			p.runWorker()
			return nil
		})
	}
	return p
}

// runWorker drains the queue until the pool's group context is cancelled.
func (p *Pool) runWorker() {
	for {
		select {
		case <-p.groupCtx.Done():
			return
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			p.execute(j)
		}
	}
}

// execute evaluates a job's args/kwargs against its view, invokes the
// registered callable, and delivers exactly one TaskEvent.
func (p *Pool) execute(j job) {
	defer func() {
		p.mu.Lock()
		delete(p.cancels, j.taskID)
		p.mu.Unlock()
	}()

	if j.ctx.Err() != nil {
		j.onDone(dataflow.TaskEvent{TaskID: j.taskID, Status: dataflow.StatusCancelled})
		return
	}

	argVals := make([]any, len(j.args))
	for i, a := range j.args {
		v, err := a.Eval(j.view)
		if err != nil {
			j.onDone(dataflow.TaskEvent{TaskID: j.taskID, Status: dataflow.StatusFailed, Err: err})
			return
		}
		argVals[i] = v
	}

	kwVals := make(map[string]any, len(j.kwargs))
	for name, a := range j.kwargs {
		v, err := a.Eval(j.view)
		if err != nil {
			j.onDone(dataflow.TaskEvent{TaskID: j.taskID, Status: dataflow.StatusFailed, Err: err})
			return
		}
		kwVals[name] = v
	}

	result, err := func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("executor: task %s panicked: %v\n%s", j.taskID, r, debug.Stack())
			}
		}()
		return j.fn(argVals, kwVals)
	}()

	if j.ctx.Err() != nil {
		j.onDone(dataflow.TaskEvent{TaskID: j.taskID, Status: dataflow.StatusCancelled})
		return
	}
	if err != nil {
		j.onDone(dataflow.TaskEvent{TaskID: j.taskID, Status: dataflow.StatusFailed, Err: err})
		return
	}

	cell := j.view.New(result)
	j.onDone(dataflow.TaskEvent{TaskID: j.taskID, Status: dataflow.StatusSuccess, Cell: cell})
}

// Register implements dataflow.Executor.
func (p *Pool) Register(fn dataflow.Func) string {
	fid := fmt.Sprintf("fn-%d", p.nextFid.Add(1))
	p.mu.Lock()
	p.fns[fid] = fn
	p.mu.Unlock()
	return fid
}

// Call implements dataflow.Executor. It invokes the callable registered
// under fid synchronously, in the caller's own goroutine, bypassing the
// queue entirely — this is how a Function expression dispatches by id.
func (p *Pool) Call(fid string, args []any, kwargs map[string]any) (any, error) {
	p.mu.Lock()
	fn, ok := p.fns[fid]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("executor: unregistered fid %q", fid)
	}
	return fn(args, kwargs)
}

// Submit implements dataflow.Executor. It enqueues the job, waiting for a
// queue slot if the queue is full, and returns once the job is queued; the
// job runs on whichever worker next becomes free.
func (p *Pool) Submit(ctx context.Context, fid string, view *dataflow.Context, args []dataflow.Expr, kwargs map[string]dataflow.Expr, onDone func(dataflow.TaskEvent)) (string, error) {
	p.mu.Lock()
	fn, ok := p.fns[fid]
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return "", fmt.Errorf("executor: pool is shut down")
	}
	if !ok {
		return "", fmt.Errorf("executor: unregistered fid %q", fid)
	}

	taskID := fmt.Sprintf("t-%d", p.nextTask.Add(1))
	jobCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancels[taskID] = cancel
	p.mu.Unlock()

	j := job{ctx: jobCtx, taskID: taskID, fn: fn, view: view, args: args, kwargs: kwargs, onDone: onDone}

	select {
	case p.queue <- j:
		return taskID, nil
	case <-p.groupCtx.Done():
		cancel()
		return "", fmt.Errorf("executor: pool is shutting down")
	}
}

// Cancel implements dataflow.Executor.
func (p *Pool) Cancel(taskID string) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[taskID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Shutdown implements dataflow.Executor. It cancels every outstanding job
// and stops accepting new submissions; if wait, it blocks until all workers
// have returned. Jobs still in the queue that no worker picked up are
// delivered a StatusCancelled event.
func (p *Pool) Shutdown(wait bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, cancel := range p.cancels {
		cancel()
	}
	p.mu.Unlock()

	p.stop()
	if wait {
		_ = p.group.Wait()
	}

	for {
		select {
		case j := <-p.queue:
			j.onDone(dataflow.TaskEvent{TaskID: j.taskID, Status: dataflow.StatusCancelled})
		default:
			return
		}
	}
}
