package dataflow

// Control tags how an Order affects scope bookkeeping in the scheduler.
type Control int

const (
	// ControlNone is an ordinary order: it recruits zero or more
	// downstream nodes and otherwise only decrements its scope's count.
	ControlNone Control = iota

	// ControlEnter opens a new scope rooted at this order's recruits,
	// parented to the emitting node's current scope.
	ControlEnter

	// ControlExit cancels the scope the emitting order runs in (the
	// innermost one) and reassigns its recruits to the parent scope.
	// Tasks already in flight are not cancelled; their events are
	// absorbed once they arrive.
	ControlExit
)

func (c Control) String() string {
	switch c {
	case ControlEnter:
		return "ENTER"
	case ControlExit:
		return "EXIT"
	default:
		return "NONE"
	}
}

// Order is the unit of work a Node emits from one Step call. UID identifies
// the emitting node invocation — the handle its result, if any, is bound
// under. Fid, when non-empty, names a registered callable to submit to the
// executor against Args/Kwargs; an empty Fid means this order carries no
// executor work. ReleaseValue, when HasRelease is true, is an eager value
// bound under UID before the order is otherwise handled (e.g. a loop's
// current index); if both ReleaseValue and Fid are present, the executor's
// eventual result overwrites the release. Recruit names the handles of
// downstream nodes this order makes ready. Control governs scope
// creation/closure.
//
// Recall is carried out of band: when Control == ControlEnter, the
// Continuation a Step call returns alongside its Order (its second return
// value) is recorded by the scheduler as the new scope's recall, resumed
// when that scope drains naturally.
type Order struct {
	UID Handle

	Fid    string
	Args   []Expr
	Kwargs map[string]Expr

	// Policy overrides the scheduler's DefaultNodeTimeout for this order's
	// executor submission, when HasWork is true. Nil means "use the
	// scheduler default".
	Policy *NodePolicy

	ReleaseValue any
	HasRelease   bool

	Recruit []Handle

	Control Control
}

// WithRelease returns a copy of o with ReleaseValue set to v and HasRelease
// true.
func (o Order) WithRelease(v any) Order {
	o.ReleaseValue = v
	o.HasRelease = true
	return o
}

// HasWork reports whether this order names executor work to submit.
func (o Order) HasWork() bool { return o.Fid != "" }
