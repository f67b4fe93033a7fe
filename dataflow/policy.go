package dataflow

import "time"

// NodePolicy configures per-node execution behavior enforced by the
// scheduler. There is no retry layer at this level (§7: "retry is a
// composition concern"); a node that needs retries wraps a callable that
// catches and re-submits itself.
type NodePolicy struct {
	// Timeout is the maximum time an executor submission for this node may
	// run before being cancelled. Zero means "use the scheduler's
	// DefaultNodeTimeout", which itself may be zero (unlimited).
	Timeout time.Duration
}
