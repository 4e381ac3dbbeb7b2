package mutator

import "mreplay/session"

// TruncateQueue drops, for each process, all events from the first matched
// location onward. It terminates the whole stream early once every process
// present in the environment's session has been truncated (spec.md §4.1).
type TruncateQueue struct {
	matcher   *LocationMatcher
	totalPids int
}

// NewTruncateQueue builds a TruncateQueue over locs.
func NewTruncateQueue(locs []session.Location) (*TruncateQueue, error) {
	lm, err := NewLocationMatcher(locs)
	if err != nil {
		return nil, err
	}
	return &TruncateQueue{matcher: lm}, nil
}

func (t *TruncateQueue) Start(env *Env) {
	if env.Session != nil {
		t.totalPids = len(env.Session.Processes)
	}
}

func (t *TruncateQueue) Process(in <-chan *session.Event) <-chan *session.Event {
	out := make(chan *session.Event)
	go func() {
		defer close(out)
		truncated := map[int]bool{}
		for e := range in {
			pid := eventPid(e)
			if truncated[pid] {
				continue
			}
			if _, ok := t.matcher.Match(e); ok {
				truncated[pid] = true
				if t.totalPids > 0 && len(truncated) >= t.totalPids {
					return
				}
				continue
			}
			out <- e
		}
	}()
	return out
}
