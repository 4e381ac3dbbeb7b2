package mutator

import (
	"sort"

	"mreplay/event"
	"mreplay/session"
)

// InsertEoqEvents guarantees each process's stream ends with an
// end-of-queue marker: it appends one per process that lacks it, in
// pid-sorted order, at the end of the stream (spec.md §4.1).
type InsertEoqEvents struct{}

func (InsertEoqEvents) Start(*Env) {}

func (InsertEoqEvents) Process(in <-chan *session.Event) <-chan *session.Event {
	out := make(chan *session.Event)
	go func() {
		defer close(out)
		hasEOQ := map[int]bool{}
		seenPid := map[int]bool{}
		var pidOrder []int

		for e := range in {
			out <- e
			pid := eventPid(e)
			if !seenPid[pid] {
				seenPid[pid] = true
				pidOrder = append(pidOrder, pid)
			}
			if e.Kind() == event.KindQueueEof {
				hasEOQ[pid] = true
			}
		}

		sort.Ints(pidOrder)
		for _, pid := range pidOrder {
			if !hasEOQ[pid] {
				out <- session.NewEvent(&event.Raw{Kind: event.KindQueueEof, Pid: pid})
			}
		}
	}()
	return out
}
