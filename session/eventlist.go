package session

import (
	"sort"

	cerrors "mreplay/errors"
)

// EventList is an ordered, appendable sequence of events with O(1) indexed
// lookup, matching spec.md §3: "each event carries an owner-map recording
// its index in every list that contains it, so index lookups are O(1)
// without scanning." Go has no per-object dynamic attribute bag, so the
// owner-map lives on the list itself (map[*Event]int) rather than on the
// event, per SPEC_FULL.md §3.
type EventList struct {
	events []*Event
	owners map[*Event]int
}

// NewEventList returns an empty list.
func NewEventList() *EventList {
	return &EventList{owners: make(map[*Event]int)}
}

// Append adds e to the end of the list and records its index.
func (l *EventList) Append(e *Event) {
	l.owners[e] = len(l.events)
	l.events = append(l.events, e)
}

// Extend appends a sequence of events in order.
func (l *EventList) Extend(es []*Event) {
	for _, e := range es {
		l.Append(e)
	}
}

// Len returns the number of events in the list.
func (l *EventList) Len() int { return len(l.events) }

// At returns the event at position i.
func (l *EventList) At(i int) *Event { return l.events[i] }

// Events returns the underlying slice. Callers must not mutate it.
func (l *EventList) Events() []*Event { return l.events }

// Index returns e's O(1) position in the list via the owner map.
func (l *EventList) Index(e *Event) (int, error) {
	idx, ok := l.owners[e]
	if !ok {
		return 0, cerrors.ErrEventNotInList
	}
	return idx, nil
}

// After1 returns the event immediately after e, or false if e is the last
// event or is not in the list.
func (l *EventList) After1(e *Event) (*Event, bool) {
	idx, ok := l.owners[e]
	if !ok || idx+1 >= len(l.events) {
		return nil, false
	}
	return l.events[idx+1], true
}

// Before1 returns the event immediately before e, or false if e is the
// first event or is not in the list.
func (l *EventList) Before1(e *Event) (*Event, bool) {
	idx, ok := l.owners[e]
	if !ok || idx == 0 {
		return nil, false
	}
	return l.events[idx-1], true
}

// After returns the slice of events strictly after e (empty if e is last).
func (l *EventList) After(e *Event) []*Event {
	idx, ok := l.owners[e]
	if !ok || idx+1 >= len(l.events) {
		return nil
	}
	return l.events[idx+1:]
}

// Before returns the slice of events strictly before e.
func (l *EventList) Before(e *Event) []*Event {
	idx, ok := l.owners[e]
	if !ok || idx == 0 {
		return nil
	}
	return l.events[:idx]
}

// Sort reorders the list in place by less and rebuilds the owner map, per
// spec.md §3 ("Re-sorts invalidate and rebuild these maps").
func (l *EventList) Sort(less func(a, b *Event) bool) {
	sort.SliceStable(l.events, func(i, j int) bool { return less(l.events[i], l.events[j]) })
	l.rebuild()
}

func (l *EventList) rebuild() {
	for i, e := range l.events {
		l.owners[e] = i
	}
}
