package mutator

import (
	"mreplay/event"
	"mreplay/session"
)

// Replay-facility flag bits for SetFlags/MutateOnTheFly, named after the
// source's ENABLE_ALL / STRICT_RPY constants.
const (
	FlagEnableAll uint32 = 0xFFFFFFFF
	FlagStrictRpy uint32 = 1 << 0
	FlagFixedIO   uint32 = 1 << 1
)

// SetFlags emits a replay-facility flag-set event at a single location
// (spec.md §4.1).
type SetFlags struct {
	flags   uint32
	dur     event.Duration
	extra   []byte
	matcher *LocationMatcher
}

// NewSetFlags builds a SetFlags anchored at loc.
func NewSetFlags(loc session.Location, flags uint32, dur event.Duration, extra []byte) (*SetFlags, error) {
	lm, err := NewLocationMatcher([]session.Location{loc})
	if err != nil {
		return nil, err
	}
	return &SetFlags{flags: flags, dur: dur, extra: extra, matcher: lm}, nil
}

func (s *SetFlags) Start(*Env) {}

func (s *SetFlags) Process(in <-chan *session.Event) <-chan *session.Event {
	out := make(chan *session.Event)
	go func() {
		defer close(out)
		for e := range in {
			if _, ok := s.matcher.Match(e); ok {
				out <- session.NewEvent(&event.Raw{
					Kind:     event.KindSetFlags,
					Pid:      pidOf(e.Proc()),
					Flags:    s.flags,
					Duration: s.dur,
					Extra:    s.extra,
				})
			}
			out <- e
		}
	}()
	return out
}

// NewIgnoreNextSyscall is SetFlags with flags=0, duration=until-next-syscall,
// and an optional substitute syscall-start encoded as the extra payload.
func NewIgnoreNextSyscall(loc session.Location, substitute *event.Raw) (*SetFlags, error) {
	var extra []byte
	if substitute != nil {
		extra = substitute.Encode()
	}
	return NewSetFlags(loc, 0, event.DurationUntilNextSyscall, extra)
}

// NewMutateOnTheFly anchors before firstEvent (equivalent to "after init's
// Start") with permanent duration, enabling on-the-fly mutation mode for
// the rest of the replay.
func NewMutateOnTheFly(firstEvent *session.Event) (*SetFlags, error) {
	return NewSetFlags(session.At(firstEvent, false), FlagEnableAll&^FlagStrictRpy, event.DurationPermanent, nil)
}

// NewSetFlagsInit sets initial per-session flags at the first event.
func NewSetFlagsInit(firstEvent *session.Event, flags uint32) (*SetFlags, error) {
	return NewSetFlags(session.At(firstEvent, false), flags, event.DurationPermanent, nil)
}
