package dataflow

import "errors"

// Node represents one processing unit in a dataflow graph. Unlike a plain
// function, a node's lifetime may span multiple orders: it activates once
// to produce its first Order, and — if it returns a non-nil Continuation —
// is driven forward by the scheduler each time that order's disposition is
// known, exactly the way a generator yields, is resumed, and yields again.
//
// Concrete nodes (Execute, Branch, Repeat, Break, Join, Group — see
// nodes.go) implement Node directly; Repeat's internal Iter sub-state-
// machine implements only Continuation, since it is never a standalone
// graph member.
type Node interface {
	Continuation

	// ID returns the handle under which this node's result is bound.
	ID() Handle
}

// Continuation is a node activation's next step. A nil Continuation
// returned from Step means the node's coroutine is exhausted: the order
// just produced was its last.
type Continuation interface {
	// Step produces the next Order for this activation. ctx is the full
	// scheduler-owned context; Step itself must not block — any work that
	// requires blocking belongs in the Order's Source, submitted to the
	// executor.
	Step(ctx *Context) (Order, Continuation)
}

// ContinuationFunc adapts a plain function to a Continuation.
type ContinuationFunc func(ctx *Context) (Order, Continuation)

// Step implements Continuation.
func (f ContinuationFunc) Step(ctx *Context) (Order, Continuation) { return f(ctx) }

// baseNode gives concrete node types their ID() without repeating the
// handle-field boilerplate.
type baseNode struct {
	id Handle
}

// ID implements Node.
func (b baseNode) ID() Handle { return b.id }

// NodeError is a node-level failure — a condition detected while building
// an Order, before any executor submission, such as a missing required
// parameter or a failed attribute subscription. It carries the same code
// taxonomy as SchedulingError so callers can branch uniformly.
type NodeError struct {
	NodeID string
	Cause  error
}

// Error implements error.
func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Cause.Error()
	}
	return e.Cause.Error()
}

// Unwrap exposes the underlying cause for errors.Is/As support.
func (e *NodeError) Unwrap() error { return e.Cause }

// Code forwards the underlying SchedulingError's code, if any.
func (e *NodeError) Code() string {
	var se *SchedulingError
	if errors.As(e.Cause, &se) {
		return se.Code()
	}
	return ""
}
