package mutator

import (
	"mreplay/event"
	cerrors "mreplay/errors"
	"mreplay/session"
)

// LocationMatcher normalises a set of Locations into "before event X"
// lookups, per spec.md §4.1's "Pipe ordering constraint": because mutators
// are strictly forward-streaming, after-anchors are rewritten to
// before-the-successor before the pipeline begins, and an after-anchor on a
// syscall-start is first rewritten to after its matching syscall-end.
type LocationMatcher struct {
	before map[*session.Event]int
}

// NewLocationMatcher normalises locs and returns a matcher. Locations that
// normalise onto the same event are a malformed-pipeline error, per
// spec.md §7.
func NewLocationMatcher(locs []session.Location) (*LocationMatcher, error) {
	lm := &LocationMatcher{before: make(map[*session.Event]int, len(locs))}
	for i, loc := range locs {
		target, err := normalize(loc)
		if err != nil {
			return nil, err
		}
		if _, exists := lm.before[target]; exists {
			return nil, cerrors.ErrBeforeAfterCollapse
		}
		lm.before[target] = i
	}
	return lm, nil
}

// Match reports whether e is a normalised anchor, and the index of the
// original Location that produced it (useful when different locations
// carry different payloads, e.g. InsertEvent's per-location event lists).
func (lm *LocationMatcher) Match(e *session.Event) (int, bool) {
	idx, ok := lm.before[e]
	return idx, ok
}

// Len reports how many distinct anchors remain after normalisation.
func (lm *LocationMatcher) Len() int { return len(lm.before) }

func normalize(loc session.Location) (*session.Event, error) {
	if loc.IsStart() || loc.IsEnd() {
		return nil, cerrors.New(cerrors.ErrMalformedPipeline, "location matcher",
			"stream sentinels are not supported as generic anchors")
	}
	if loc.After && loc.Event.Kind() == event.KindSyscallExtra {
		end := matchingSyscallEnd(loc.Event)
		if end == nil {
			return nil, cerrors.New(cerrors.ErrMalformedPipeline, "location matcher",
				"syscall-start has no matching syscall-end")
		}
		loc = session.At(end, true)
	}
	if !loc.After {
		return loc.Event, nil
	}
	next := loc.Event.NextEvent()
	if next == nil {
		return nil, cerrors.ErrAfterLastEvent
	}
	return next, nil
}

// matchingSyscallEnd walks forward from a syscall-start to the SyscallEnd
// event whose back-pointer names it, or nil if the stream ends first
// (spec.md §3 invariant: "either a matching syscall-end exists later... or
// the stream ends").
func matchingSyscallEnd(start *session.Event) *session.Event {
	proc := start.Proc()
	if proc == nil {
		return nil
	}
	idx, err := proc.Events.Index(start)
	if err != nil {
		return nil
	}
	for i := idx + 1; i < proc.Events.Len(); i++ {
		e := proc.Events.At(i)
		if e.Kind() == event.KindSyscallEnd && e.Syscall() == start {
			return e
		}
	}
	return nil
}
