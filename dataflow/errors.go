// Package dataflow provides the core graph execution engine.
package dataflow

import "fmt"

// SchedulingError is the common shape of every typed, code-tagged failure
// this engine raises. Error codes are stable, prefix-structured strings
// (see the Err* constructors below) so callers can branch on Code() rather
// than on string-matching Error().
type SchedulingError struct {
	code    string
	message string
	cause   error
}

func (e *SchedulingError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Code returns the stable error code, e.g. "SCHEDULING_ERROR.DATA_NOTFOUND".
func (e *SchedulingError) Code() string { return e.code }

// Unwrap exposes the underlying cause, if any, for errors.Is/As support.
func (e *SchedulingError) Unwrap() error { return e.cause }

func newSchedErr(code, message string, cause error) *SchedulingError {
	return &SchedulingError{code: code, message: message, cause: cause}
}

// Error codes, per spec §6.
const (
	CodeDataNotFound        = "SCHEDULING_ERROR.DATA_NOTFOUND"
	CodeDataGetItemFailed   = "SCHEDULING_ERROR.DATA_GETITEM_FAILED"
	CodeUnionFailed         = "SCHEDULING_ERROR.UNION_FAILED"
	CodeExpressionFailed    = "SCHEDULING_ERROR.EXPRESSION_FAILED"
	CodeSubscriptionFailed  = "SCHEDULING_ERROR.SUBSCRIPTION_FAILED"
	CodeExposedNotFound     = "SCHEDULING_ERROR.EXPOSED_NOTFOUND"
	CodeParamMissing        = "SCHEDULING_ERROR.PARAM_MISSING"
	CodeCircularRecruitment = "SCHEDULING_ERROR.CIRCULAR_RECRUITMENT"
	CodeTaskFailed          = "EXECUTION_ERROR.TASK_FAILED"
)

// ErrDataNotFound is raised by Reference when its handle is unbound.
func ErrDataNotFound(h Handle) error {
	return newSchedErr(CodeDataNotFound, fmt.Sprintf("handle %d has no bound value", h), nil)
}

// ErrDataGetItem is raised by Indexed/GetItem when indexing a produced
// value fails.
func ErrDataGetItem(typeName string, key any, cause error) error {
	return newSchedErr(CodeDataGetItemFailed,
		fmt.Sprintf("cannot index %s with %v", typeName, key), cause)
}

// ErrUnion is raised when every branch of a Union expression fails.
func ErrUnion() error {
	return newSchedErr(CodeUnionFailed, "all union branches failed", nil)
}

// ErrExpression is raised when a Formula or Function expression throws.
func ErrExpression(cause error) error {
	return newSchedErr(CodeExpressionFailed, "expression evaluation failed", cause)
}

// ErrSubscription builds the error for a node attribute expression that
// fails to evaluate. No node in this package returns it; Branch drops a
// failed condition without reporting it.
func ErrSubscription(nodeID string, attr string, cause error) error {
	return newSchedErr(CodeSubscriptionFailed,
		fmt.Sprintf("attribute %q of node %q could not be read", attr, nodeID), cause)
}

// ErrExposed is raised when a graph's exposed expression fails to evaluate.
func ErrExposed(key any, cause error) error {
	return newSchedErr(CodeExposedNotFound,
		fmt.Sprintf("exposed output %v could not be read", key), cause)
}

// ErrParamMissing builds the error for a required parameter that has
// neither a subscription nor a default value. Execute does not check its
// parameters and never returns it.
func ErrParamMissing(nodeID, param string) error {
	return newSchedErr(CodeParamMissing,
		fmt.Sprintf("parameter %q of node %q is not bound and has no default", param, nodeID), nil)
}

// ErrCircularRecruitment is raised when a node recruits itself through an
// active scope chain.
func ErrCircularRecruitment(nodeID string) error {
	return newSchedErr(CodeCircularRecruitment,
		fmt.Sprintf("node %q recruited itself through an active scope", nodeID), nil)
}

// ErrTaskFailed wraps an executor task's panic/error for delivery as a
// FAILED event.
func ErrTaskFailed(nodeID string, cause error) error {
	return newSchedErr(CodeTaskFailed, fmt.Sprintf("node %q task failed", nodeID), cause)
}

// isRecoverableByUnion reports whether err is one of the three expression
// failure kinds Union is specified to catch and retry past: DataNotFound,
// DataGetItem, ExprEval (ExpressionFailed here). Any other error type must
// propagate out of Union unchanged.
func isRecoverableByUnion(err error) bool {
	se, ok := err.(*SchedulingError)
	if !ok {
		return false
	}
	switch se.code {
	case CodeDataNotFound, CodeDataGetItemFailed, CodeExpressionFailed:
		return true
	default:
		return false
	}
}
