package mutator

import "mreplay/session"

// CatSession is a source mutator over a Session: it emits each process's
// events, in pid-sorted, per-process order; events recorded before the
// first Pid event belong to pid 0's process and so come first (spec.md
// §4.1). It stashes the session onto Env so downstream stages
// (TruncateQueue) that need the full process map can
// find it without threading an extra argument through every Process call.
type CatSession struct {
	Session *session.Session
}

func (c *CatSession) Start(env *Env) {
	env.Session = c.Session
}

func (c *CatSession) Process(<-chan *session.Event) <-chan *session.Event {
	out := make(chan *session.Event)
	go func() {
		defer close(out)
		for _, pid := range c.Session.SortedPids() {
			proc := c.Session.Processes[pid]
			for _, e := range proc.Events.Events() {
				out <- e
			}
		}
	}()
	return out
}
