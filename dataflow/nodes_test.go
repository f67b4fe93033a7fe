package dataflow

import "testing"

func TestJoinResetsAfterEachBarrierCycle(t *testing.T) {
	const hJoin, hRecvA, hRecvB, hAfter Handle = 1, 2, 3, 4
	join := NewJoin(hJoin, []Handle{hRecvA, hRecvB}, []Handle{hAfter})
	recvA := join.Receiver(0)
	recvB := join.Receiver(1)

	recvA.Step(nil)
	order, _ := join.Step(nil)
	if order.Recruit != nil {
		t.Fatalf("one of two flags set: recruited %v, want none", order.Recruit)
	}

	recvB.Step(nil)
	order, _ = join.Step(nil)
	if len(order.Recruit) != 1 || order.Recruit[0] != hAfter {
		t.Fatalf("both flags set: recruit = %v, want [%d]", order.Recruit, hAfter)
	}

	// A fresh barrier cycle must require both flags again, not fire early
	// just because one feeder re-arrives.
	recvA.Step(nil)
	order, _ = join.Step(nil)
	if order.Recruit != nil {
		t.Fatalf("new cycle, only one flag set: recruited %v, want none", order.Recruit)
	}
}

// TestJoinReceiverIdentityNotRawCount proves the barrier distinguishes
// which receiver fired, rather than merely counting arrivals: the same
// receiver firing twice must never satisfy a second, distinct receiver's
// flag.
func TestJoinReceiverIdentityNotRawCount(t *testing.T) {
	const hJoin, hRecvA, hRecvB, hAfter Handle = 1, 2, 3, 4
	join := NewJoin(hJoin, []Handle{hRecvA, hRecvB}, []Handle{hAfter})
	recvA := join.Receiver(0)

	recvA.Step(nil)
	recvA.Step(nil)

	order, _ := join.Step(nil)
	if order.Recruit != nil {
		t.Fatalf("receiver A fired twice, B never fired: recruited %v, want none", order.Recruit)
	}
}

func TestSliceIterableExhaustion(t *testing.T) {
	it := SliceIterable([]any{"a", "b"})

	v, ok := it.Next()
	if !ok || v != "a" {
		t.Fatalf("Next = %v, %v, want a, true", v, ok)
	}
	v, ok = it.Next()
	if !ok || v != "b" {
		t.Fatalf("Next = %v, %v, want b, true", v, ok)
	}
	if _, ok := it.Next(); ok {
		t.Fatal("Next reported a value after exhaustion")
	}
}

func TestRangeIterableNegativeStep(t *testing.T) {
	it := RangeIterable(3, 0, -1)
	var got []any
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, v)
	}
	if len(got) != 3 || got[0] != 3 || got[1] != 2 || got[2] != 1 {
		t.Fatalf("RangeIterable(3,0,-1) = %v, want [3 2 1]", got)
	}
}

func TestBranchConditionFailureEmitsEmptyRecruit(t *testing.T) {
	b := NewBranch(1, Ref(999), []Handle{2}, []Handle{3})
	order, cont := b.Step(NewContext(nil))
	if cont != nil {
		t.Error("Branch.Step returned a non-nil continuation, want exhausted")
	}
	if order.Recruit != nil {
		t.Errorf("Recruit = %v, want nil on condition-eval failure", order.Recruit)
	}
}

func TestGroupArgEvalFailureEmitsEmptyOrder(t *testing.T) {
	exec := newInlineExecutor()
	square := exec.Register(func(args []any, _ map[string]any) (any, error) {
		return args[0].(int) * args[0].(int), nil
	})
	subNodes := map[Handle]Node{
		10: NewExecute(10, square, []Expr{Indexed(InputHandle, Const("x"))}, nil, nil),
	}
	subSched, _ := NewScheduler(exec)
	sub := NewGraph(1, subSched, subNodes, []Handle{10}, ExposeScalar(Ref(10)))

	group := sub.Group(5, []Expr{Ref(999)}, nil, []Handle{6})
	order, cont := group.Step(NewContext(nil))
	if cont != nil {
		t.Error("Group.Step returned a non-nil continuation, want exhausted")
	}
	if order.Recruit != nil {
		t.Errorf("Recruit = %v, want nil when an argument fails to evaluate", order.Recruit)
	}
}

func TestRepeatSeedEntersScopeWithNoImmediateRecruit(t *testing.T) {
	r := NewRepeat(1, func() RepeatIterable { return SliceIterable([]any{1, 2}) }, []Handle{2}, []Handle{3})
	order, cont := r.Step(nil)
	if order.Control != ControlEnter {
		t.Errorf("seed Control = %v, want ControlEnter", order.Control)
	}
	if order.Recruit != nil {
		t.Errorf("seed Recruit = %v, want nil", order.Recruit)
	}
	if cont == nil {
		t.Fatal("seed continuation is nil, want the internal iterator state machine")
	}

	order, cont = cont.Step(nil)
	if order.Control != ControlEnter || len(order.Recruit) != 1 || order.Recruit[0] != 2 {
		t.Errorf("first iteration order = %+v, want ControlEnter recruiting PerIter", order)
	}
	if cont == nil {
		t.Fatal("first iteration continuation is nil, want iterator to continue")
	}

	order, cont = cont.Step(nil)
	if order.Control != ControlEnter || len(order.Recruit) != 1 || order.Recruit[0] != 2 {
		t.Errorf("second iteration order = %+v, want ControlEnter recruiting PerIter", order)
	}

	order, cont = cont.Step(nil)
	if cont != nil {
		t.Error("continuation after exhaustion is non-nil, want nil")
	}
	if order.Control != ControlNone || len(order.Recruit) != 1 || order.Recruit[0] != 3 {
		t.Errorf("exhaustion order = %+v, want ControlNone recruiting PostLoop", order)
	}
}
