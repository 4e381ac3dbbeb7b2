package diverge

import (
	"testing"

	"mreplay/event"
	"mreplay/mutator"
	"mreplay/replay"
	"mreplay/session"
)

func kinds(events []*session.Event) []event.Kind {
	out := make([]event.Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind()
	}
	return out
}

func assertKinds(t *testing.T, got []*session.Event, want []event.Kind) {
	t.Helper()
	gk := kinds(got)
	if len(gk) != len(want) {
		t.Fatalf("kinds = %v, want %v", gk, want)
	}
	for i := range want {
		if gk[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", gk, want)
		}
	}
}

func runProposal(t *testing.T, sess *session.Session, p Proposal) []*session.Event {
	t.Helper()
	pipeline := mutator.Pipe(&mutator.CatSession{Session: sess}, p.Mutation)
	return mutator.Run(pipeline, mutator.NewEnv(), nil)
}

func TestCulpritIndex(t *testing.T) {
	tests := []struct {
		name string
		d    *replay.DivergeEvent
		want int
	}{
		{"fatal default", &replay.DivergeEvent{NumEvConsumed: 5, Fatal: true, Kind: event.KindDivergeEventType}, 4},
		{"non-fatal syscall", &replay.DivergeEvent{NumEvConsumed: 5, Fatal: false, Kind: event.KindDivergeSyscall}, 5},
		{"non-fatal mem-owned", &replay.DivergeEvent{NumEvConsumed: 5, Fatal: false, Kind: event.KindDivergeMemOwned}, 5},
		{"fatal syscall (no adjustment)", &replay.DivergeEvent{NumEvConsumed: 5, Fatal: true, Kind: event.KindDivergeSyscall}, 4},
		{"data content fatal (always +1)", &replay.DivergeEvent{NumEvConsumed: 5, Fatal: true, Kind: event.KindDivergeDataContent}, 5},
		{"data content non-fatal (always +1)", &replay.DivergeEvent{NumEvConsumed: 5, Fatal: false, Kind: event.KindDivergeDataContent}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := culpritIndex(tt.d); got != tt.want {
				t.Errorf("culpritIndex() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExpandPattern(t *testing.T) {
	if got := expandPattern("+*r"); got != "+-+r" {
		t.Errorf("expandPattern(%q) = %q, want %q", "+*r", got, "+-+r")
	}
}

func TestPatternGating(t *testing.T) {
	h := &Handler{Pattern: "+-r"}
	if !h.allowed(0, ActionInsert) || h.allowed(0, ActionDelete) {
		t.Error("depth 0 should allow only insert")
	}
	if !h.allowed(1, ActionDelete) || h.allowed(1, ActionReplace) {
		t.Error("depth 1 should allow only delete")
	}
	if !h.allowed(2, ActionReplace) || h.allowed(2, ActionInsert) {
		t.Error("depth 2 should allow only replace")
	}
	if !h.allowed(3, ActionInsert) || !h.allowed(3, ActionDelete) {
		t.Error("depth beyond pattern length should allow everything")
	}

	unrestricted := &Handler{}
	if !unrestricted.allowed(0, ActionDelete) {
		t.Error("empty pattern should allow everything")
	}
}

// TestScenarioD_SyscallDivergence mirrors spec.md §8 Scenario D: a
// DivergeSyscall at the process's sole syscall must propose exactly one
// insert (an ignore-syscall flag-set ahead of the culprit) and one delete
// (the culprit's whole extent, since no other syscall exists to resync on).
func TestScenarioD_SyscallDivergence(t *testing.T) {
	raws := []*event.Raw{
		{Kind: event.KindPid, Pid: 5},
		{Kind: event.KindSyscallExtra, Pid: 5, Nr: 10, Args: [6]int64{1, 2, 3, 4, 5, 6}},
		{Kind: event.KindSyscallEnd, Pid: 5, Nr: 10, Ret: 0},
	}
	sess := session.FromRawEvents(raws)
	proc := sess.Processes[5]

	d := &replay.DivergeEvent{
		Pid: 5, Kind: event.KindDivergeSyscall, NumEvConsumed: 1, Fatal: true,
		Raw: &event.Raw{Nr: 99, Args: [6]int64{9, 9, 9, 9, 9, 9}},
	}

	h := New("", 10, 0)
	props, err := h.Handle(proc, d, 0, 0)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(props) != 2 {
		t.Fatalf("got %d proposals, want 2", len(props))
	}
	if props[0].Action != ActionInsert {
		t.Errorf("props[0].Action = %v, want insert", props[0].Action)
	}
	if props[1].Action != ActionDelete {
		t.Errorf("props[1].Action = %v, want delete", props[1].Action)
	}

	inserted := runProposal(t, sess, props[0])
	assertKinds(t, inserted, []event.Kind{event.KindSetFlags, event.KindSyscallExtra, event.KindSyscallEnd})

	deleted := runProposal(t, sess, props[1])
	assertKinds(t, deleted, nil)
}

// TestScenarioE_MemoryDivergenceOnRead mirrors spec.md §8 Scenario E: a
// DivergeMemOwned at a memory-access culprit must propose inserting a
// corrected marker before it and deleting the intervening mismatched
// memory events up to one that matches the culprit's own original address.
func TestScenarioE_MemoryDivergenceOnRead(t *testing.T) {
	raws := []*event.Raw{
		{Kind: event.KindPid, Pid: 7},
		{Kind: event.KindMemOwnedReadExtra, Pid: 7, Address: 0x1111},
		{Kind: event.KindMemOwnedReadExtra, Pid: 7, Address: 0x2222},
		{Kind: event.KindMemOwnedReadExtra, Pid: 7, Address: 0x1111},
	}
	sess := session.FromRawEvents(raws)
	proc := sess.Processes[7]

	d := &replay.DivergeEvent{
		Pid: 7, Kind: event.KindDivergeMemOwned, NumEvConsumed: 1, Fatal: true,
		Raw: &event.Raw{Address: 0xABCD, WriteAccess: false},
	}

	h := New("", 10, 0)
	props, err := h.Handle(proc, d, 0, 0)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(props) != 2 {
		t.Fatalf("got %d proposals, want 2", len(props))
	}

	inserted := runProposal(t, sess, props[0])
	if len(inserted) != 4 || inserted[0].Raw.Address != 0xABCD {
		t.Fatalf("inserted = %+v, want new marker at 0xABCD first", inserted)
	}

	deleted := runProposal(t, sess, props[1])
	if len(deleted) != 1 || deleted[0].Raw.Address != 0x1111 {
		t.Fatalf("deleted = %+v, want only the resync marker at 0x1111 left", deleted)
	}
}

func TestTakeUntilMatchBoundedFailure(t *testing.T) {
	raws := []*event.Raw{
		{Kind: event.KindPid, Pid: 1},
		{Kind: event.KindMemOwnedReadExtra, Pid: 1, Address: 0x1111},
		{Kind: event.KindMemOwnedReadExtra, Pid: 1, Address: 0x2222},
		{Kind: event.KindMemOwnedReadExtra, Pid: 1, Address: 0x3333},
		{Kind: event.KindMemOwnedReadExtra, Pid: 1, Address: 0x1111},
	}
	sess := session.FromRawEvents(raws)
	proc := sess.Processes[1]
	start := proc.Events.At(0)

	if got := takeUntilMatch(proc, start, start, 1); got != nil {
		t.Errorf("maxDelete=1 should fail to resync within two mismatches, got %v", got)
	}
	if got := takeUntilMatch(proc, start, start, 2); got == nil {
		t.Error("maxDelete=2 should resync across exactly two mismatches")
	}
}

func TestHandleTypeDeletesOnlyCulprit(t *testing.T) {
	raws := []*event.Raw{
		{Kind: event.KindPid, Pid: 1},
		{Kind: event.KindRdtsc, Pid: 1},
		{Kind: event.KindFence, Pid: 1},
	}
	sess := session.FromRawEvents(raws)
	proc := sess.Processes[1]

	d := &replay.DivergeEvent{Pid: 1, Kind: event.KindDivergeEventType, NumEvConsumed: 1, Fatal: true,
		Raw: &event.Raw{Type: event.KindFence}}
	h := New("", 10, 0)
	props, err := h.Handle(proc, d, 0, 0)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(props) != 1 || props[0].Action != ActionDelete {
		t.Fatalf("props = %+v, want single delete", props)
	}
	out := runProposal(t, sess, props[0])
	assertKinds(t, out, []event.Kind{event.KindFence})
}

func TestPatternSkipsDisallowedAction(t *testing.T) {
	raws := []*event.Raw{
		{Kind: event.KindPid, Pid: 1},
		{Kind: event.KindRdtsc, Pid: 1},
	}
	sess := session.FromRawEvents(raws)
	proc := sess.Processes[1]

	d := &replay.DivergeEvent{Pid: 1, Kind: event.KindDivergeEventType, NumEvConsumed: 1, Fatal: true,
		Raw: &event.Raw{Type: event.KindFence}}
	h := New("-", 10, 0) // depth 0 only allows delete
	props, err := h.Handle(proc, d, 0, 0)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(props) != 1 || props[0].Action != ActionDelete {
		t.Fatalf("props = %+v, want single delete (type-divergence only ever proposes delete)", props)
	}

	h2 := New("r", 10, 0) // depth 0 only allows replace, delete disallowed
	props2, err := h2.Handle(proc, d, 0, 0)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(props2) != 0 {
		t.Fatalf("props2 = %+v, want none (delete disallowed at this depth)", props2)
	}
}
