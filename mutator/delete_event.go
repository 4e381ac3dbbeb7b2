package mutator

import (
	"mreplay/event"
	"mreplay/session"
)

// DeleteEvent drops the listed events and, recursively, their children:
// when a deleted event is a syscall-start, every interior event through the
// matching syscall-end is also dropped; when it is a resource-lock, through
// the matching unlock (spec.md §4.1).
type DeleteEvent struct {
	targets map[*session.Event]bool
}

// NewDeleteEvent builds a DeleteEvent over the given events.
func NewDeleteEvent(events []*session.Event) *DeleteEvent {
	targets := make(map[*session.Event]bool, len(events))
	for _, e := range events {
		targets[e] = true
	}
	return &DeleteEvent{targets: targets}
}

func (m *DeleteEvent) Start(*Env) {}

func (m *DeleteEvent) Process(in <-chan *session.Event) <-chan *session.Event {
	out := make(chan *session.Event)
	go func() {
		defer close(out)
		syscallDepth := 0
		resourceDepth := 0
		for e := range in {
			if m.targets[e] || syscallDepth > 0 || resourceDepth > 0 {
				switch {
				case e.Kind() == event.KindSyscallExtra:
					syscallDepth++
				case e.Kind().IsResourceLock():
					resourceDepth++
				case e.Kind() == event.KindSyscallEnd:
					syscallDepth--
				case e.Kind() == event.KindResourceUnlock:
					resourceDepth--
				}
				continue
			}
			out <- e
		}
	}()
	return out
}
