package mutator

import "mreplay/session"

// Replace yields each event replaced if present in Map, per spec.md §4.1.
type Replace struct {
	Map map[*session.Event]*session.Event
}

func (r *Replace) Start(*Env) {}

func (r *Replace) Process(in <-chan *session.Event) <-chan *session.Event {
	out := make(chan *session.Event)
	go func() {
		defer close(out)
		for e := range in {
			if repl, ok := r.Map[e]; ok {
				out <- repl
				continue
			}
			out <- e
		}
	}()
	return out
}
