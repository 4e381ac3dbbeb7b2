package mutator

import (
	"mreplay/event"
	"mreplay/session"
)

// AdjustResources is a two-pass stage. The first pass tallies, per resource
// id, the serial numbers appearing on ResourceLockExtra events (other
// resource event kinds pass through unchanged). The
// second pass rewrites each serial so that, per id, the emitted serials are
// the dense sequence 0,1,2,… preserving relative order — keeping the
// replay facility's per-resource ordering invariant intact after deletions
// (spec.md §4.1).
type AdjustResources struct{}

func (AdjustResources) Start(*Env) {}

func isResourceEvent(k event.Kind) bool {
	return k == event.KindResourceLockExtra
}

func (AdjustResources) Process(in <-chan *session.Event) <-chan *session.Event {
	events := drain(in)

	order := map[int][]int{}  // resource id -> serials in first-seen order
	seen := map[int]map[int]bool{}
	for _, e := range events {
		if !isResourceEvent(e.Kind()) {
			continue
		}
		rid := e.Raw.ResourceID
		if seen[rid] == nil {
			seen[rid] = make(map[int]bool)
		}
		if !seen[rid][e.Raw.Serial] {
			seen[rid][e.Raw.Serial] = true
			order[rid] = append(order[rid], e.Raw.Serial)
		}
	}

	remap := map[int]map[int]int{}
	for rid, serials := range order {
		m := make(map[int]int, len(serials))
		for i, s := range serials {
			m[s] = i
		}
		remap[rid] = m
	}

	out := make(chan *session.Event)
	go func() {
		defer close(out)
		for _, e := range events {
			if !isResourceEvent(e.Kind()) {
				out <- e
				continue
			}
			newSerial := remap[e.Raw.ResourceID][e.Raw.Serial]
			if newSerial == e.Raw.Serial {
				out <- e
				continue
			}
			nr := e.Raw.Clone()
			nr.Serial = newSerial
			out <- session.NewEvent(nr)
		}
	}()
	return out
}
