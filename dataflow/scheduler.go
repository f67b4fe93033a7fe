package dataflow

import (
	"context"
	"fmt"

	"github.com/kelvinarroyo/dataflow-go/dataflow/emit"
)

// readyItem is one entry in the scheduler's ready queue: a Continuation
// awaiting its next Step, and the scope it is attributed to.
type readyItem struct {
	cont    Continuation
	scopeID ScopeID
}

// inflightEntry tracks one order submitted to the executor, pending its
// TaskEvent.
type inflightEntry struct {
	order   Order
	scopeID ScopeID
	cancel  context.CancelFunc
}

// Scheduler is the single-threaded driver loop described in the engine's
// concurrency model: it owns the ready queue, the scope table, and the
// in-flight map, and couples Executor events to scope accounting. A
// Scheduler is reusable across forwards; state for one forward (ready
// queue, scopes, in-flight map) is local to each Forward call.
type Scheduler struct {
	executor Executor
	cfg      schedulerConfig
}

// NewScheduler constructs a Scheduler driving work through executor.
func NewScheduler(executor Executor, opts ...Option) (*Scheduler, error) {
	cfg := defaultSchedulerConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.emitter == nil {
		cfg.emitter = emit.NewNullEmitter()
	}
	if cfg.cellFactory == nil {
		cfg.cellFactory = DefaultCellFactory
	}
	return &Scheduler{executor: executor, cfg: cfg}, nil
}

// nodeRegistry resolves a Handle to the Node that owns it, for dispatching
// recruits. Graph builds and owns one per compiled graph.
type nodeRegistry interface {
	NodeAt(h Handle) (Node, bool)
}

// Forward drives starters (and everything they recruit) to completion
// against dataCtx, returning once the root scope has drained. dataCtx must
// already have any graph input bound. runID labels metrics and emitted
// events for this forward.
func (s *Scheduler) Forward(parent context.Context, runID string, dataCtx *Context, nodes nodeRegistry, starters []Handle) (*Context, error) {
	scopes := newScopeTable()
	ready := make([]readyItem, 0, len(starters))
	for _, h := range starters {
		n, ok := nodes.NodeAt(h)
		if !ok {
			return nil, fmt.Errorf("dataflow: starter handle %d has no registered node", h)
		}
		ready = append(ready, readyItem{cont: n, scopeID: RootScope})
	}
	scopes.onRecruit(RootScope, len(starters))

	runCtx := parent
	var cancelBudget context.CancelFunc
	if s.cfg.runWallClockBudget > 0 {
		runCtx, cancelBudget = context.WithTimeout(parent, s.cfg.runWallClockBudget)
		defer cancelBudget()
	}

	inflight := make(map[string]*inflightEntry)
	eventCh := make(chan TaskEvent, s.cfg.maxInflight)

	emitEvent := func(nodeID Handle, msg string) {
		s.cfg.emitter.Emit(emit.Event{RunID: runID, NodeID: fmt.Sprintf("%d", nodeID), Msg: msg})
	}

	for {
		for len(ready) > 0 && len(inflight) < s.cfg.maxInflight {
			if err := runCtx.Err(); err != nil {
				s.executor.Shutdown(false)
				return nil, err
			}

			item := ready[0]
			ready = ready[1:]

			if scopes.isDone(item.scopeID) {
				continue
			}

			order, next := item.cont.Step(dataCtx)

			if err := checkCircular(order); err != nil {
				if s.cfg.metrics != nil {
					s.cfg.metrics.IncrementCircularRecruitment(runID, fmt.Sprintf("%d", order.UID))
				}
				s.executor.Shutdown(false)
				return nil, err
			}

			if order.HasRelease {
				dataCtx.Bind(order.UID, dataCtx.New(order.ReleaseValue))
			}

			if order.HasWork() {
				taskCtx, cancel := withNodeTimeout(runCtx, order.Policy, s.cfg.defaultNodeTimeout)
				view := dataCtx.View(exprSetRefs(order.Args, order.Kwargs))
				taskID, err := s.executor.Submit(taskCtx, order.Fid, view, order.Args, order.Kwargs, func(ev TaskEvent) {
					eventCh <- ev
				})
				if err != nil {
					cancel()
					for _, hook := range s.cfg.errorHooks {
						hook(fmt.Sprintf("%d", order.UID), err)
					}
					s.completeBookkeeping(scopes, &ready, nodes, order, item.scopeID, next)
					continue
				}
				inflight[taskID] = &inflightEntry{order: order, scopeID: item.scopeID, cancel: cancel}
				continue
			}

			emitEvent(order.UID, "order handled")
			s.completeBookkeeping(scopes, &ready, nodes, order, item.scopeID, next)
		}

		if s.cfg.metrics != nil {
			s.cfg.metrics.UpdateQueueDepth(len(ready))
			s.cfg.metrics.UpdateInflightNodes(len(inflight))
		}
		if len(ready) > s.cfg.queueDepth && s.cfg.metrics != nil {
			s.cfg.metrics.IncrementBackpressure(runID, "queue_full")
		}

		if len(inflight) == 0 {
			break
		}

		select {
		case <-runCtx.Done():
			s.executor.Shutdown(false)
			return nil, runCtx.Err()
		case ev := <-eventCh:
			entry, ok := inflight[ev.TaskID]
			if !ok {
				continue
			}
			delete(inflight, ev.TaskID)
			entry.cancel()

			switch ev.Status {
			case StatusSuccess:
				if !scopes.isDone(entry.scopeID) {
					dataCtx.Bind(entry.order.UID, ev.Cell)
				}
				s.completeBookkeeping(scopes, &ready, nodes, entry.order, entry.scopeID, nil)
			case StatusFailed:
				nodeErr := ErrTaskFailed(fmt.Sprintf("%d", entry.order.UID), ev.Err)
				for _, hook := range s.cfg.errorHooks {
					hook(fmt.Sprintf("%d", entry.order.UID), nodeErr)
				}
				scopes.onNodeComplete(entry.scopeID)
				s.drainRecall(scopes, &ready, entry.scopeID)
			case StatusCancelled:
				scopes.onNodeComplete(entry.scopeID)
				s.drainRecall(scopes, &ready, entry.scopeID)
			}
		}
	}

	return dataCtx, nil
}

// checkCircular flags the trivial case described in §4.6: a node that
// recruits itself in the same order. Full cross-scope cycle detection is
// out of scope; this catches the direct self-recruitment a misconfigured
// graph is most likely to produce.
func checkCircular(order Order) error {
	for _, r := range order.Recruit {
		if r == order.UID {
			return ErrCircularRecruitment(fmt.Sprintf("%d", order.UID))
		}
	}
	return nil
}

// completeBookkeeping applies scope accounting for a completed order (§4.6):
// ENTER creates a new scope; EXIT cancels the current one and redirects
// recruits to the parent; NONE simply decrements. recallNext, non-nil only
// meaningfully on ControlEnter, is the Continuation to resume when the new
// scope drains.
func (s *Scheduler) completeBookkeeping(scopes *scopeTable, ready *[]readyItem, nodes nodeRegistry, order Order, scopeID ScopeID, recallNext Continuation) {
	if scopes.isDone(scopeID) {
		return
	}

	destScope := scopeID
	switch order.Control {
	case ControlEnter:
		destScope = scopes.createScope(scopeID, recallNext, scopeID)
	case ControlExit:
		destScope = scopes.cancel(scopeID)
		// Mirrors the decrement a naturally-draining subtree's final
		// ControlNone order performs on the scope it recalls into —
		// the parent's slot for this subtree was never decremented on
		// ControlEnter, so EXIT must close it out here instead.
		scopes.onNodeComplete(destScope)
	case ControlNone:
		scopes.onNodeComplete(scopeID)
	}

	if len(order.Recruit) > 0 {
		scopes.onRecruit(destScope, len(order.Recruit))
		for _, h := range order.Recruit {
			if n, ok := nodes.NodeAt(h); ok {
				*ready = append(*ready, readyItem{cont: n, scopeID: destScope})
			}
		}
	}

	s.drainRecall(scopes, ready, destScope)
}

// drainRecall pushes a scope's recall continuation onto ready once the
// scope has drained naturally, per resolveRecall's cancelled/natural-drain
// distinction.
func (s *Scheduler) drainRecall(scopes *scopeTable, ready *[]readyItem, scopeID ScopeID) {
	if !scopes.isDone(scopeID) {
		return
	}
	recall, recallScp, ok := scopes.resolveRecall(scopeID)
	if !ok {
		return
	}
	*ready = append(*ready, readyItem{cont: recall, scopeID: recallScp})
}

// exprSetRefs unions refs() across a set of argument/keyword expressions,
// giving the minimum context view a submission needs.
func exprSetRefs(args []Expr, kwargs map[string]Expr) map[Handle]struct{} {
	out := make(map[Handle]struct{})
	for _, a := range args {
		for h := range a.Refs() {
			out[h] = struct{}{}
		}
	}
	for _, a := range kwargs {
		for h := range a.Refs() {
			out[h] = struct{}{}
		}
	}
	return out
}
