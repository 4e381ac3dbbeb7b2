package mutator

import (
	"mreplay/event"
	"mreplay/session"
)

// Bookmark emits, at each matched location, a synchronisation barrier event
// whose id is a fresh scalar pulled from the shared environment's bookmark
// counter and whose npr equals the count of locations in this instance. Any
// bookmark with id 0 (reserved) already recorded in the session (one that
// belongs to a process) is stripped; bookmarks emitted by an earlier
// Bookmark stage pass through (spec.md §4.1).
type Bookmark struct {
	locs    []session.Location
	matcher *LocationMatcher
	id      int
}

// NewBookmark builds a Bookmark over locs.
func NewBookmark(locs []session.Location) (*Bookmark, error) {
	lm, err := NewLocationMatcher(locs)
	if err != nil {
		return nil, err
	}
	return &Bookmark{locs: locs, matcher: lm}, nil
}

// ID returns the bookmark id assigned during Start. Valid only after Start
// has run.
func (b *Bookmark) ID() int { return b.id }

func (b *Bookmark) Start(env *Env) {
	b.id = env.NextBookmarkID
	env.NextBookmarkID++
}

func (b *Bookmark) Process(in <-chan *session.Event) <-chan *session.Event {
	out := make(chan *session.Event)
	npr := len(b.locs)
	go func() {
		defer close(out)
		for e := range in {
			if e.Kind() == event.KindBookmark && e.Raw.BookmarkID == 0 && e.Proc() != nil {
				continue
			}
			if _, ok := b.matcher.Match(e); ok {
				out <- session.NewEvent(&event.Raw{
					Kind:       event.KindBookmark,
					Pid:        pidOf(e.Proc()),
					BookmarkID: b.id,
					Npr:        npr,
				})
			}
			out <- e
		}
	}()
	return out
}
