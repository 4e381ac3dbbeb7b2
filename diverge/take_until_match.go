package diverge

import (
	"bytes"

	"mreplay/session"
)

// takeUntilMatch is the deletion-extent algorithm of spec.md §4.4: given a
// start event and a target to resync on, it returns the events from start
// up to (but not including) the first one that matches end, or nil if no
// match is found within maxDelete.
//
// Two regions are distinguished: a run of memory-access events with no
// enclosing syscall, and a run of sibling syscalls. Anything else (start
// has neither a memory match nor an enclosing syscall) deletes just start
// itself.
func takeUntilMatch(proc *session.Process, start, end *session.Event, maxDelete int) []*session.Event {
	if start == nil {
		return nil
	}

	if isMemory(start) && isMemory(end) && enclosingSyscall(start) == nil {
		rest, ok := takeMemoryExtent(start, end, maxDelete)
		if !ok {
			return nil
		}
		return append([]*session.Event{start}, rest...)
	}

	if end != nil && enclosingSyscall(start) != nil {
		rest, ok := takeSyscallExtent(proc, start, end, maxDelete)
		if !ok {
			return nil
		}
		return append([]*session.Event{start}, rest...)
	}

	return []*session.Event{start}
}

func isMemory(e *session.Event) bool {
	return e != nil && e.Kind().IsMemoryAccess()
}

func memMatch(m1, m2 *session.Event) bool {
	if m1 == nil || m2 == nil {
		return false
	}
	return m1.Raw.Address == m2.Raw.Address
}

// takeMemoryExtent walks forward from start (exclusive) collecting memory
// and non-memory events alike, stopping before the first memory event that
// either matches end's address or already has an enclosing syscall. The
// second return value is false when the walk collected at least one event
// and the event right after the last collected one does not match end's
// address (the walk stopped on a syscall-bearing memory event, reached the
// end of the stream, or used up maxDelete). A walk that collects nothing
// succeeds with a zero-length extent.
func takeMemoryExtent(start, end *session.Event, maxDelete int) ([]*session.Event, bool) {
	var events []*session.Event
	cur := start
	for len(events) < maxDelete {
		next := cur.NextEvent()
		if next == nil {
			break
		}
		cur = next
		if isMemory(cur) && (memMatch(cur, end) || cur.Syscall() != nil) {
			break
		}
		events = append(events, cur)
	}
	if len(events) == 0 {
		// Nothing was collected: the first candidate stopped the walk, start
		// is the last event, or maxDelete is zero — all resync trivially.
		return events, true
	}
	if !memMatch(events[len(events)-1].NextEvent(), end) {
		return nil, false
	}
	return events, true
}

// takeSyscallExtent walks forward through start's sibling syscalls, up to
// maxDelete of them, stopping before the first that matches end. Same
// zero-length-succeeds convention as takeMemoryExtent: no other syscalls
// after start resyncs trivially.
func takeSyscallExtent(proc *session.Process, start, end *session.Event, maxDelete int) ([]*session.Event, bool) {
	startSyscall := enclosingSyscall(start)
	candidates := proc.Syscalls.After(startSyscall)
	if maxDelete < len(candidates) {
		candidates = candidates[:maxDelete]
	}

	var events []*session.Event
	for _, s := range candidates {
		if sysMatch(s, end) {
			break
		}
		events = append(events, s)
	}
	if len(events) == 0 {
		return events, true
	}
	next, ok := proc.Syscalls.After1(events[len(events)-1])
	if !ok || !sysMatch(next, end) {
		return nil, false
	}
	return events, true
}

// sysMatch reports whether two syscall-start events are interchangeable
// resync points: same number, pointwise-matching non-address arguments
// (addresses compare only by a high-bit mask), and s2's string-data body
// appearing in order within s1's.
func sysMatch(s1, s2 *session.Event) bool {
	if s1 == nil || s2 == nil {
		return false
	}
	if s1.Raw.Nr != s2.Raw.Nr {
		return false
	}
	for i := range s1.Raw.Args {
		a1, a2 := s1.Raw.Args[i], s2.Raw.Args[i]
		if a1 == a2 {
			continue
		}
		if isAddrArg(a1) && isAddrArg(a2) {
			continue
		}
		return false
	}
	return bodyMatch(s1, s2)
}

func isAddrArg(v int64) bool {
	return v&0xff800000 != 0
}

// bodyMatch reports whether every string-data payload in s2's children
// appears, in order, among s1's.
func bodyMatch(s1, s2 *session.Event) bool {
	want := stringData(s2.Children())
	if len(want) == 0 {
		return true
	}
	have := stringData(s1.Children())
	if len(have) < len(want) {
		return false
	}
	i := 0
	for _, d := range have {
		if i >= len(want) {
			break
		}
		if bytes.Equal(d, want[i]) {
			i++
		}
	}
	return i == len(want)
}

func stringData(children []*session.Event) [][]byte {
	var out [][]byte
	for _, c := range children {
		if c.Kind().IsStringData() {
			out = append(out, c.Raw.Data)
		}
	}
	return out
}
