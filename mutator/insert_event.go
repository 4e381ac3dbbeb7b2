package mutator

import (
	cerrors "mreplay/errors"
	"mreplay/session"
)

// InsertEvent emits a set of events at each matched location, before or
// after the target (spec.md §4.1).
type InsertEvent struct {
	matcher *LocationMatcher
	inserts [][]*session.Event
}

// NewInsertEvent builds an InsertEvent that, for each locs[i], emits
// inserts[i] at the normalised anchor.
func NewInsertEvent(locs []session.Location, inserts [][]*session.Event) (*InsertEvent, error) {
	if len(locs) != len(inserts) {
		return nil, cerrors.New(cerrors.ErrInvalidConfig, "insert event", "locations and inserts length mismatch")
	}
	lm, err := NewLocationMatcher(locs)
	if err != nil {
		return nil, err
	}
	return &InsertEvent{matcher: lm, inserts: inserts}, nil
}

// NewInsertEventAt is the common single-location case.
func NewInsertEventAt(loc session.Location, events []*session.Event) (*InsertEvent, error) {
	return NewInsertEvent([]session.Location{loc}, [][]*session.Event{events})
}

func (m *InsertEvent) Start(*Env) {}

func (m *InsertEvent) Process(in <-chan *session.Event) <-chan *session.Event {
	out := make(chan *session.Event)
	go func() {
		defer close(out)
		for e := range in {
			if idx, ok := m.matcher.Match(e); ok {
				for _, ins := range m.inserts[idx] {
					out <- ins
				}
			}
			out <- e
		}
	}()
	return out
}
