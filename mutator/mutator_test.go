package mutator

import (
	"testing"

	"mreplay/event"
	"mreplay/session"
)

func wrap(raws []*event.Raw) []*session.Event {
	out := make([]*session.Event, len(raws))
	for i, r := range raws {
		out[i] = session.NewEvent(r)
	}
	return out
}

func kinds(events []*session.Event) []event.Kind {
	out := make([]event.Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind()
	}
	return out
}

func pids(events []*session.Event) []int {
	out := make([]int, len(events))
	for i, e := range events {
		out[i] = e.Raw.Pid
	}
	return out
}

func assertKinds(t *testing.T, got []*session.Event, want []event.Kind) {
	t.Helper()
	gk := kinds(got)
	if len(gk) != len(want) {
		t.Fatalf("got %v (%d events), want %v (%d events)", gk, len(gk), want, len(want))
	}
	for i := range want {
		if gk[i] != want[i] {
			t.Errorf("event %d: got %v, want %v", i, gk[i], want[i])
		}
	}
}

// Scenario A — Pid insertion (spec.md §8).
func TestScenarioA_PidInsertion(t *testing.T) {
	raws := []*event.Raw{
		{Kind: event.KindPid, Pid: 1},
		{Kind: event.KindFence, Pid: 1},
		{Kind: event.KindFence, Pid: 1},
		{Kind: event.KindPid, Pid: 3},
		{Kind: event.KindPid, Pid: 2},
		{Kind: event.KindPid, Pid: 2},
		{Kind: event.KindFence, Pid: 2},
		{Kind: event.KindPid, Pid: 3},
		{Kind: event.KindFence, Pid: 3},
	}
	s := session.FromRawEvents(raws)
	pipeline := PipeAll(&CatSession{Session: s}, InsertPidEvents{}, ToRawEvents{})
	got := Run(pipeline, nil, nil)

	want := []event.Kind{
		event.KindPid, event.KindFence, event.KindFence,
		event.KindPid, event.KindFence,
		event.KindPid, event.KindFence,
	}
	assertKinds(t, got, want)

	wantPids := []int{1, 1, 1, 2, 2, 3, 3}
	gp := pids(got)
	for i := range wantPids {
		if gp[i] != wantPids[i] {
			t.Errorf("pid at %d = %d, want %d", i, gp[i], wantPids[i])
		}
	}
}

// Scenario B — EOQ insertion.
func TestScenarioB_EOQInsertion(t *testing.T) {
	raws := []*event.Raw{
		{Kind: event.KindPid, Pid: 1},
		{Kind: event.KindFence, Pid: 1},
		{Kind: event.KindPid, Pid: 2},
		{Kind: event.KindFence, Pid: 2},
		{Kind: event.KindQueueEof, Pid: 2},
		{Kind: event.KindPid, Pid: 3},
		{Kind: event.KindFence, Pid: 3},
	}
	s := session.FromRawEvents(raws)
	pipeline := PipeAll(&CatSession{Session: s}, InsertEoqEvents{}, InsertPidEvents{}, ToRawEvents{})
	got := Run(pipeline, nil, nil)

	want := []event.Kind{
		event.KindPid, event.KindFence,
		event.KindPid, event.KindFence, event.KindQueueEof,
		event.KindPid, event.KindFence,
		event.KindPid, event.KindQueueEof,
		event.KindPid, event.KindQueueEof,
	}
	assertKinds(t, got, want)
}

// Scenario C — Bookmark id assignment from the shared environment counter.
func TestScenarioC_BookmarkIDAssignment(t *testing.T) {
	raws := []*event.Raw{
		{Kind: event.KindPid, Pid: 1},
		{Kind: event.KindFence, Pid: 1},
		{Kind: event.KindPid, Pid: 2},
		{Kind: event.KindFence, Pid: 2},
	}
	s := session.FromRawEvents(raws)
	events := s.Processes[1].Events.Events()
	events2 := s.Processes[2].Events.Events()

	b1, err := NewBookmark([]session.Location{session.At(events[0], false)})
	if err != nil {
		t.Fatalf("NewBookmark: %v", err)
	}
	b2, err := NewBookmark([]session.Location{session.At(events2[0], false)})
	if err != nil {
		t.Fatalf("NewBookmark: %v", err)
	}

	pipeline := PipeAll(&CatSession{Session: s}, b1, b2)
	got := Run(pipeline, nil, nil)

	var bookmarks []*session.Event
	for _, e := range got {
		if e.Kind() == event.KindBookmark {
			bookmarks = append(bookmarks, e)
		}
	}
	if len(bookmarks) != 2 {
		t.Fatalf("got %d bookmarks, want 2", len(bookmarks))
	}
	if bookmarks[0].Raw.BookmarkID != 0 {
		t.Errorf("first bookmark id = %d, want 0", bookmarks[0].Raw.BookmarkID)
	}
	if bookmarks[1].Raw.BookmarkID != 1 {
		t.Errorf("second bookmark id = %d, want 1", bookmarks[1].Raw.BookmarkID)
	}
}

// Invariant 1 — piping identity modulo Pid collapsing.
func TestInvariant1_PipingIdentity(t *testing.T) {
	raws := []*event.Raw{
		{Kind: event.KindPid, Pid: 1},
		{Kind: event.KindFence, Pid: 1},
		{Kind: event.KindFence, Pid: 1},
	}
	s := session.FromRawEvents(raws)
	pipeline := PipeAll(&CatSession{Session: s}, Nop{}, InsertPidEvents{}, ToRawEvents{})
	got := Run(pipeline, nil, nil)
	want := []event.Kind{event.KindPid, event.KindFence, event.KindFence}
	assertKinds(t, got, want)
}

// Invariant 2 — Pid insertion correctness: owning pid matches most recent Pid event.
func TestInvariant2_PidMatchesPrecedingPidEvent(t *testing.T) {
	raws := []*event.Raw{
		{Kind: event.KindPid, Pid: 5},
		{Kind: event.KindFence, Pid: 5},
		{Kind: event.KindPid, Pid: 6},
		{Kind: event.KindFence, Pid: 6},
	}
	s := session.FromRawEvents(raws)
	pipeline := PipeAll(&CatSession{Session: s}, InsertPidEvents{})
	got := Run(pipeline, nil, nil)

	currentPid := -1
	for _, e := range got {
		if e.Kind() == event.KindPid {
			currentPid = e.Raw.Pid
			continue
		}
		if e.Raw.Pid != currentPid {
			t.Errorf("event pid %d does not match preceding Pid event %d", e.Raw.Pid, currentPid)
		}
	}
}

// Invariant 3 — every process gets exactly one trailing QueueEof.
func TestInvariant3_OneEOQPerProcess(t *testing.T) {
	raws := []*event.Raw{
		{Kind: event.KindPid, Pid: 1},
		{Kind: event.KindFence, Pid: 1},
		{Kind: event.KindPid, Pid: 2},
		{Kind: event.KindFence, Pid: 2},
	}
	s := session.FromRawEvents(raws)
	pipeline := PipeAll(&CatSession{Session: s}, InsertEoqEvents{})
	got := Run(pipeline, nil, nil)

	count := map[int]int{}
	for _, e := range got {
		if e.Kind() == event.KindQueueEof {
			count[e.Raw.Pid]++
		}
	}
	for pid, c := range count {
		if c != 1 {
			t.Errorf("pid %d has %d QueueEof events, want 1", pid, c)
		}
	}
	if len(count) != 2 {
		t.Errorf("got EOQ for %d processes, want 2", len(count))
	}
}

// Invariant 4 — resource serial density.
func TestInvariant4_ResourceSerialDensity(t *testing.T) {
	raws := []*event.Raw{
		{Kind: event.KindResourceLockExtra, Pid: 1, ResourceID: 1, Serial: 5},
		{Kind: event.KindResourceLockExtra, Pid: 1, ResourceID: 1, Serial: 9},
		{Kind: event.KindResourceLockExtra, Pid: 1, ResourceID: 1, Serial: 20},
	}
	got := Run(AdjustResources{}, nil, SourceChan(wrap(raws)))
	for i, e := range got {
		if e.Raw.Serial != i {
			t.Errorf("serial[%d] = %d, want %d", i, e.Raw.Serial, i)
		}
	}
}

// Invariant 6 — Replace round-trip.
func TestInvariant6_ReplaceRoundTrip(t *testing.T) {
	a := session.NewEvent(&event.Raw{Kind: event.KindFence, Pid: 1})
	b := session.NewEvent(&event.Raw{Kind: event.KindFence, Pid: 2})
	stream := []*session.Event{a}

	fwd := &Replace{Map: map[*session.Event]*session.Event{a: b}}
	rev := &Replace{Map: map[*session.Event]*session.Event{b: a}}

	got := Run(PipeAll(fwd, rev), nil, SourceChan(stream))
	if len(got) != 1 || got[0] != a {
		t.Errorf("round trip did not return to original event: %v", got)
	}
}

// Invariant 9 — syscall deletion extent.
func TestInvariant9_SyscallDeletionExtent(t *testing.T) {
	start := session.NewEvent(&event.Raw{Kind: event.KindSyscallExtra, Pid: 1, Nr: 1})
	body := session.NewEvent(&event.Raw{Kind: event.KindFence, Pid: 1})
	end := session.NewEvent(&event.Raw{Kind: event.KindSyscallEnd, Pid: 1})
	after := session.NewEvent(&event.Raw{Kind: event.KindFence, Pid: 1})

	proc := session.NewProcess(1)
	proc.AddEvent(start)
	proc.AddEvent(body)
	proc.AddEvent(end)
	proc.AddEvent(after)

	del := NewDeleteEvent([]*session.Event{start})
	got := Run(del, nil, SourceChan(proc.Events.Events()))

	if len(got) != 1 || got[0] != after {
		t.Fatalf("got %v, want only the trailing event", got)
	}
}

// TestDeleteEventNestedCascade verifies that a nested syscall encountered
// while already inside a deleted extent also bumps the depth counter,
// rather than letting the inner syscall-end close out the outer extent
// early and re-emit the outer syscall-end and everything after it.
func TestDeleteEventNestedCascade(t *testing.T) {
	outerStart := session.NewEvent(&event.Raw{Kind: event.KindSyscallExtra, Pid: 1, Nr: 1})
	innerStart := session.NewEvent(&event.Raw{Kind: event.KindSyscallExtra, Pid: 1, Nr: 2})
	innerBody := session.NewEvent(&event.Raw{Kind: event.KindFence, Pid: 1})
	innerEnd := session.NewEvent(&event.Raw{Kind: event.KindSyscallEnd, Pid: 1})
	outerEnd := session.NewEvent(&event.Raw{Kind: event.KindSyscallEnd, Pid: 1})
	after := session.NewEvent(&event.Raw{Kind: event.KindFence, Pid: 1})

	stream := []*session.Event{outerStart, innerStart, innerBody, innerEnd, outerEnd, after}

	del := NewDeleteEvent([]*session.Event{outerStart})
	got := Run(del, nil, SourceChan(stream))

	if len(got) != 1 || got[0] != after {
		t.Fatalf("got %v, want only the trailing event (inner syscall must not close the outer extent early)", got)
	}
}

// Invariant 5 — delete idempotence.
func TestInvariant5_DeleteIdempotence(t *testing.T) {
	a := session.NewEvent(&event.Raw{Kind: event.KindFence, Pid: 1})
	b := session.NewEvent(&event.Raw{Kind: event.KindFence, Pid: 2})
	stream := []*session.Event{a, b}

	once := Run(NewDeleteEvent([]*session.Event{a}), nil, SourceChan(stream))
	twice := Run(NewDeleteEvent([]*session.Event{a}), nil, SourceChan(once))

	if len(once) != len(twice) {
		t.Fatalf("once=%v twice=%v", once, twice)
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("idempotence violated at %d", i)
		}
	}
}

func TestInsertEventBeforeAndAfter(t *testing.T) {
	target := session.NewEvent(&event.Raw{Kind: event.KindFence, Pid: 1})
	following := session.NewEvent(&event.Raw{Kind: event.KindFence, Pid: 1})
	proc := session.NewProcess(1)
	proc.AddEvent(target)
	proc.AddEvent(following)

	inserted := session.NewEvent(&event.Raw{Kind: event.KindRdtsc, Pid: 1})
	ins, err := NewInsertEventAt(session.At(target, true), []*session.Event{inserted})
	if err != nil {
		t.Fatalf("NewInsertEventAt: %v", err)
	}
	got := Run(ins, nil, SourceChan(proc.Events.Events()))
	assertKinds(t, got, []event.Kind{event.KindFence, event.KindRdtsc, event.KindFence})
}

func TestLocationMatcherRejectsAfterOnLastEvent(t *testing.T) {
	last := session.NewEvent(&event.Raw{Kind: event.KindFence, Pid: 1})
	proc := session.NewProcess(1)
	proc.AddEvent(last)

	_, err := NewLocationMatcher([]session.Location{session.At(last, true)})
	if err == nil {
		t.Error("after-anchor on the last event of a stream should be an error")
	}
}

func TestTruncateQueue(t *testing.T) {
	raws := []*event.Raw{
		{Kind: event.KindPid, Pid: 1},
		{Kind: event.KindFence, Pid: 1},
		{Kind: event.KindFence, Pid: 1},
		{Kind: event.KindFence, Pid: 1},
	}
	s := session.FromRawEvents(raws)
	cut := s.Processes[1].Events.Events()[1]
	tq, err := NewTruncateQueue([]session.Location{session.At(cut, false)})
	if err != nil {
		t.Fatalf("NewTruncateQueue: %v", err)
	}
	got := Run(tq, nil, SourceChan(s.Processes[1].Events.Events()))
	if len(got) != 1 {
		t.Errorf("got %d events, want 1 (everything before the cutoff)", len(got))
	}
}
