package dataflow

import (
	"context"
	"time"
)

// nodeTimeout determines the timeout applied to an executor submission, by
// precedence: the node's own NodePolicy.Timeout, then the scheduler's
// DefaultNodeTimeout, then unlimited.
func nodeTimeout(policy *NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	return defaultTimeout
}

// withNodeTimeout wraps parent with a deadline per nodeTimeout's
// precedence. The returned cancel must always be called by the submitter
// once the submission's outcome is known, to release the timer.
func withNodeTimeout(parent context.Context, policy *NodePolicy, defaultTimeout time.Duration) (context.Context, context.CancelFunc) {
	timeout := nodeTimeout(policy, defaultTimeout)
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
