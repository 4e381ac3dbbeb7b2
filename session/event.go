package session

import "mreplay/event"

// SysExecve is the syscall number Process watches for to capture a
// process's name after a successful exec.
const SysExecve = 59

// Event wraps a codec-level event.Raw with the session-model relationships
// spec.md §3 names: owning process, back-pointer to an enclosing syscall,
// and a lazy children view (for syscall-start events).
type Event struct {
	Raw *event.Raw

	proc    *Process
	syscall *Event
}

// NewEvent wraps a raw record with no process association yet; Process.AddEvent
// and Session.AddRaw fill in Proc as the event is appended to a stream.
func NewEvent(r *event.Raw) *Event {
	return &Event{Raw: r}
}

// Proc returns the owning process, or nil for stream-control events that
// precede the first Pid event.
func (e *Event) Proc() *Process { return e.proc }

// Syscall returns the enclosing syscall-start event, or nil if e is not
// inside a syscall extent.
func (e *Event) Syscall() *Event { return e.syscall }

// Kind is a shorthand for Raw.Kind.
func (e *Event) Kind() event.Kind { return e.Raw.Kind }

// Is reports whether the event's kind matches k.
func (e *Event) Is(k event.Kind) bool { return e.Raw.Kind == k }

// Children returns the events strictly between a syscall-start and its
// matching syscall-end, in order. Returns nil if e is not a syscall-start
// or has no owning process.
func (e *Event) Children() []*Event {
	if e.Raw.Kind != event.KindSyscallExtra || e.proc == nil {
		return nil
	}
	idx, err := e.proc.Events.Index(e)
	if err != nil {
		return nil
	}
	var out []*Event
	for i := idx + 1; i < e.proc.Events.Len(); i++ {
		next := e.proc.Events.At(i)
		if next.Raw.Kind == event.KindSyscallEnd {
			break
		}
		out = append(out, next)
	}
	return out
}

// MatchingSyscallEnd walks forward from a syscall-start to the SyscallEnd
// event whose back-pointer names it, or nil if the stream ends first
// (spec.md §3 invariant: "either a matching syscall-end exists later... or
// the stream ends").
func (e *Event) MatchingSyscallEnd() *Event {
	if e.Raw.Kind != event.KindSyscallExtra || e.proc == nil {
		return nil
	}
	idx, err := e.proc.Events.Index(e)
	if err != nil {
		return nil
	}
	for i := idx + 1; i < e.proc.Events.Len(); i++ {
		next := e.proc.Events.At(i)
		if next.Raw.Kind == event.KindSyscallEnd && next.syscall == e {
			return next
		}
	}
	return nil
}

// NextEvent returns the event immediately after e in its owning process's
// event list, or nil if e is the last event or has no owning process.
func (e *Event) NextEvent() *Event {
	if e.proc == nil {
		return nil
	}
	n, ok := e.proc.Events.After1(e)
	if !ok {
		return nil
	}
	return n
}
