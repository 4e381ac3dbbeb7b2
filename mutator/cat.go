package mutator

import "mreplay/session"

// Cat is a source mutator: it emits a fixed sequence of events and ignores
// its input channel, matching spec.md §4.1 ("source from a raw sequence").
type Cat struct {
	Events []*session.Event
}

func (c *Cat) Start(*Env) {}

func (c *Cat) Process(<-chan *session.Event) <-chan *session.Event {
	return SourceChan(c.Events)
}

// ToRawEvents unwraps each event to its raw codec form for writing. Since
// session.Event in this module already carries its event.Raw directly (no
// further codec-object wrapping layer exists to strip), this stage is the
// identity — it is kept as a named pipeline stage so the base chain spec.md
// §3 names ("... → ToRawEvents") stays intact end to end.
type ToRawEvents struct{}

func (ToRawEvents) Start(*Env) {}

func (ToRawEvents) Process(in <-chan *session.Event) <-chan *session.Event { return in }
