package mutator

import (
	"mreplay/event"
	"mreplay/session"
)

// InsertPidEvents inserts a Pid event whenever the owning process changes
// from the previously emitted event, and strips any pre-existing Pid
// events, per spec.md §4.1.
type InsertPidEvents struct{}

func (InsertPidEvents) Start(*Env) {}

func (InsertPidEvents) Process(in <-chan *session.Event) <-chan *session.Event {
	out := make(chan *session.Event)
	go func() {
		defer close(out)
		var current int
		first := true
		for e := range in {
			if e.Kind() == event.KindPid {
				continue
			}
			pid := eventPid(e)
			if first || pid != current {
				out <- session.NewEvent(&event.Raw{Kind: event.KindPid, Pid: pid})
				current = pid
				first = false
			}
			out <- e
		}
	}()
	return out
}
