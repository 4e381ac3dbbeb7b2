package replay

import (
	"context"

	"mreplay/event"
)

// FakeDriver is a reference Driver used by tests and by the explore
// command's --driver=fake mode, for demoing the explorer without a loaded
// scribe kernel module (SPEC_FULL.md §1). It "replays" a log by reading it
// back and reporting whichever canned outcome the caller configured.
type FakeDriver struct {
	// LogPath is the on-disk log this driver was opened over.
	LogPath string
	// Diverge, if set, is returned (wrapped in *DivergeError) from Wait.
	Diverge *DivergeEvent
	// Deadlock, if true, makes Wait return DeadlockError.
	Deadlock bool
	// Err, if set, is returned verbatim from Wait (simulating an
	// unexpected replay error).
	Err error

	initLoaders []func() error
	events      []*event.Raw
	closed      bool
}

// OpenFake opens a FakeDriver over the log at path, reading its events for
// inspection by tests. It implements OpenFunc.
func OpenFake(path string) (Driver, error) {
	log, err := event.OpenLog(path)
	if err != nil {
		return nil, err
	}
	defer log.Close()
	events, err := log.Events()
	if err != nil {
		return nil, err
	}
	return &FakeDriver{LogPath: path, events: events}, nil
}

func (f *FakeDriver) AddInitLoader(fn func() error) {
	f.initLoaders = append(f.initLoaders, fn)
}

func (f *FakeDriver) CheckDeadlock() error { return nil }

func (f *FakeDriver) Resume() error { return nil }

func (f *FakeDriver) Close() error {
	f.closed = true
	return nil
}

// Events returns the events read from the log, for assertions in tests.
func (f *FakeDriver) Events() []*event.Raw { return f.events }

func (f *FakeDriver) Wait(ctx context.Context) error {
	for _, fn := range f.initLoaders {
		if err := fn(); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return ContextClosedError{}
	}
	if f.Deadlock {
		return DeadlockError{}
	}
	if f.Diverge != nil {
		return &DivergeError{Event: f.Diverge}
	}
	if f.Err != nil {
		return f.Err
	}
	return nil
}
