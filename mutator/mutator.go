// Package mutator implements the stream-rewriting mutation pipeline:
// composable transformers over a lazy sequence of session events, per
// spec.md §4.1. Each Mutator is a goroutine-per-stage channel pipeline —
// the idiomatic Go analogue of the source's pull-based generator
// composition (SPEC_FULL.md §4.1).
package mutator

import "mreplay/session"

// Env is the shared, per-pipeline state threaded through Start, matching
// spec.md §4.1's "shared environment" (the bookmark id counter) and Design
// Notes §9 ("a per-pipeline context object passed through start, not a
// process-wide singleton").
type Env struct {
	NextBookmarkID int
	Session        *session.Session
}

// NewEnv returns a fresh, zeroed environment.
func NewEnv() *Env {
	return &Env{}
}

// Mutator is a streaming transformer: it consumes a lazy input sequence of
// events and produces a lazy output sequence (spec.md §4.1).
type Mutator interface {
	// Start receives the shared environment before Process is called. Most
	// mutators ignore it; stateful ones (Bookmark, CatSession) use it to
	// pull a shared counter or stash a session handle.
	Start(env *Env)
	// Process wires in to an output channel. Implementations that are a
	// stream source (Cat, CatSession) ignore in.
	Process(in <-chan *session.Event) <-chan *session.Event
}

// Pipe composes two mutators into one: left's output feeds right's input,
// matching spec.md §4.1 ("Mutators compose by piping").
func Pipe(left, right Mutator) Mutator {
	return &pipe{left: left, right: right}
}

type pipe struct {
	left, right Mutator
}

func (p *pipe) Start(env *Env) {
	p.left.Start(env)
	p.right.Start(env)
}

func (p *pipe) Process(in <-chan *session.Event) <-chan *session.Event {
	return p.right.Process(p.left.Process(in))
}

// PipeAll composes a chain of mutators left to right. It is the Go
// realization of spec.md §3's base chain: "user-mutation → AdjustResources
// → InsertPidEvents → ToRawEvents".
func PipeAll(stages ...Mutator) Mutator {
	if len(stages) == 0 {
		return Nop{}
	}
	m := stages[0]
	for _, s := range stages[1:] {
		m = Pipe(m, s)
	}
	return m
}

// Run starts m with a fresh Env (or the one supplied) and drains its output
// into a slice, for callers that need the whole materialised sequence (e.g.
// ToRawEvents feeding event.WriteLog).
func Run(m Mutator, env *Env, in <-chan *session.Event) []*session.Event {
	if env == nil {
		env = NewEnv()
	}
	m.Start(env)
	out := m.Process(in)
	var events []*session.Event
	for e := range out {
		events = append(events, e)
	}
	return events
}

// drain collects an entire channel into a slice. Used by multi-pass stages
// (AdjustResources) that must see the whole stream before rewriting it.
func drain(in <-chan *session.Event) []*session.Event {
	var events []*session.Event
	for e := range in {
		events = append(events, e)
	}
	return events
}

// pidOf returns p's pid, or 0 for a nil process (stream-control events that
// precede the first Pid event).
func pidOf(p *session.Process) int {
	if p == nil {
		return 0
	}
	return p.Pid
}

// eventPid returns the pid an event belongs to for grouping purposes. Events
// parsed from a Session carry an owning Process; events synthesised by an
// earlier pipeline stage (no Process, since they were never appended to one)
// fall back to their own Raw.Pid, which every synthesising stage in this
// package sets correctly.
func eventPid(e *session.Event) int {
	if p := e.Proc(); p != nil {
		return p.Pid
	}
	return e.Raw.Pid
}

// SourceChan turns a slice of events into a channel, for feeding the head
// of a pipeline whose first stage is not itself a source mutator.
func SourceChan(events []*session.Event) <-chan *session.Event {
	out := make(chan *session.Event)
	go func() {
		defer close(out)
		for _, e := range events {
			out <- e
		}
	}()
	return out
}
