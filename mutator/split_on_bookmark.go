package mutator

import (
	"mreplay/event"
	"mreplay/session"
)

// SplitMode selects which side of the cutoff SplitOnBookmark emits.
type SplitMode int

const (
	SplitHead SplitMode = iota
	SplitTail
)

// SplitOnBookmark splits the stream at a bookmark id, emitting only the
// head (events before the cutoff) or the tail (the cutoff bookmark and
// everything after), per process (spec.md §4.1).
//
// Fork/wait ancestry tracking for child processes spawned before the cutoff
// (the source's ExecuteJail-adjacent SplitOnBookmark revision) is not
// reproduced here: this module tracks the cutoff per pid directly rather
// than propagating it through a fork-syscall parent/child map.
type SplitOnBookmark struct {
	Cutoff int
	Mode   SplitMode
}

func (s *SplitOnBookmark) Start(*Env) {}

func (s *SplitOnBookmark) Process(in <-chan *session.Event) <-chan *session.Event {
	out := make(chan *session.Event)
	go func() {
		defer close(out)
		pastCutoff := map[int]bool{}
		for e := range in {
			pid := eventPid(e)
			isPast := pastCutoff[pid]
			if e.Kind() == event.KindBookmark && e.Raw.BookmarkID == s.Cutoff {
				pastCutoff[pid] = true
				isPast = true
			}
			keep := (s.Mode == SplitHead && !isPast) || (s.Mode == SplitTail && isPast)
			if keep {
				out <- e
			}
		}
	}()
	return out
}
