package session

import (
	"sort"

	"mreplay/event"

	cerrors "mreplay/errors"
)

// Session is a parsed event log organised by process: a mapping pid →
// Process plus the full flat event stream, built by scanning a raw event
// stream (spec.md §3). Pid events switch the current process; all other
// events append to it.
type Session struct {
	Processes map[int]*Process
	Events    *EventList

	currentProc *Process
}

// New returns an empty session.
func New() *Session {
	return &Session{
		Processes: make(map[int]*Process),
		Events:    NewEventList(),
	}
}

// FromRawEvents builds a Session by scanning raws in order.
func FromRawEvents(raws []*event.Raw) *Session {
	s := New()
	for _, r := range raws {
		s.AddRaw(r)
	}
	return s
}

// AddRaw appends one raw record to the stream being scanned, switching the
// current process on a Pid event and otherwise delegating to it.
func (s *Session) AddRaw(r *event.Raw) *Event {
	e := NewEvent(r)

	if r.Kind == event.KindPid {
		proc := s.proc(r.Pid)
		s.currentProc = proc
		e.proc = proc
		s.Events.Append(e)
		return e
	}

	if s.currentProc == nil {
		s.currentProc = s.proc(0)
	}
	s.currentProc.AddEvent(e)
	s.Events.Append(e)
	return e
}

func (s *Session) proc(pid int) *Process {
	p, ok := s.Processes[pid]
	if !ok {
		p = NewProcess(pid)
		s.Processes[pid] = p
	}
	return p
}

// InitProc returns the pid-1 process, the session's init process.
func (s *Session) InitProc() (*Process, error) {
	p, ok := s.Processes[1]
	if !ok {
		return nil, cerrors.ErrNoInitProcess
	}
	return p, nil
}

// SortedPids returns every process pid present in the session, ascending.
// CatSession uses this to emit per-process streams in pid-sorted order
// (spec.md §4.1).
func (s *Session) SortedPids() []int {
	pids := make([]int, 0, len(s.Processes))
	for pid := range s.Processes {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}
