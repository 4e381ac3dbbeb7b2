package session

import "mreplay/event"

// Process is one pid's view of the recorded stream: all of its events in
// order, and just the syscall-start events, per spec.md §3. As events are
// appended, the currently open syscall is tracked so interior events link
// back to their enclosing syscall-start.
type Process struct {
	Pid  int
	Name string

	Events   *EventList
	Syscalls *EventList

	currentSyscall *Event
}

// NewProcess returns an empty process for pid.
func NewProcess(pid int) *Process {
	return &Process{
		Pid:      pid,
		Events:   NewEventList(),
		Syscalls: NewEventList(),
	}
}

// AddEvent appends e to this process's event stream, tracking syscall
// extents and capturing the process name on a successful execve.
func (p *Process) AddEvent(e *Event) {
	e.proc = p

	switch e.Raw.Kind {
	case event.KindSyscallExtra:
		e.syscall = e
		p.Events.Append(e)
		p.Syscalls.Append(e)
		p.currentSyscall = e
	case event.KindSyscallEnd:
		e.syscall = p.currentSyscall
		p.Events.Append(e)
		p.checkExecve(e)
		p.currentSyscall = nil
	default:
		if p.currentSyscall != nil {
			e.syscall = p.currentSyscall
		}
		p.Events.Append(e)
	}
}

// checkExecve captures the process name from the first string-data child
// of a successful execve syscall, per spec.md §3 ("On an execve success,
// the first string-data child is captured as the process name").
func (p *Process) checkExecve(end *Event) {
	start := end.syscall
	if start == nil || start.Raw.Nr != SysExecve || end.Raw.Ret < 0 {
		return
	}
	for _, c := range start.Children() {
		if c.Raw.Kind.IsStringData() {
			p.Name = string(c.Raw.Data)
			return
		}
	}
}
