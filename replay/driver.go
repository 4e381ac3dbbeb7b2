// Package replay defines the contract between the explorer and the
// external replay facility (spec.md §6 "Replay driver contract"), plus a
// FakeDriver reference implementation used by tests and by the
// --driver=fake mode of the explore command (SPEC_FULL.md §1).
package replay

import (
	"context"
	"fmt"

	"mreplay/event"
)

// DivergeEvent carries the payload a divergence report delivers: pid,
// number of events consumed, fatality, kind, and kind-specific fields
// (spec.md §4.4).
type DivergeEvent struct {
	Pid           int
	NumEvConsumed int
	Fatal         bool
	Kind          event.Kind
	Raw           *event.Raw
}

// DeadlockError is returned by Driver.Wait when the periodic deadlock check
// detects the replay is stuck.
type DeadlockError struct{}

func (DeadlockError) Error() string { return "replay: deadlock detected" }

// DivergeError is returned by Driver.Wait when the replay diverges from the
// recorded stream. PendingMutations is non-empty only in on-the-fly mode.
type DivergeError struct {
	Event            *DivergeEvent
	PendingMutations []*DivergeEvent
}

func (e *DivergeError) Error() string {
	return fmt.Sprintf("replay: diverged at pid %d kind %v", e.Event.Pid, e.Event.Kind)
}

// ContextClosedError is returned by Driver.Wait when the context was closed
// out from under it, expected during a Stop (spec.md §7).
type ContextClosedError struct{}

func (ContextClosedError) Error() string { return "replay: context closed" }

// Driver is the Context/Popen-equivalent contract spec.md §6 names. It has
// no on_mutation / on_bookmark hooks, neither as methods nor as channels: a
// caller sees only the outcome Wait returns (SPEC_FULL.md §4.3).
type Driver interface {
	// AddInitLoader registers a function invoked once before the replayed
	// program starts (spec.md §4.3 step 2: "register an init-loader that
	// invokes the isolation context's prepare").
	AddInitLoader(fn func() error)
	// CheckDeadlock performs a short, non-blocking kernel query. EPERM is
	// expected and must be ignored by the caller; any other error is
	// logged, not fatal (spec.md §5).
	CheckDeadlock() error
	// Wait blocks until the replay reaches a terminal or suspension state:
	// nil (clean completion), *DivergeError, DeadlockError, or
	// ContextClosedError.
	Wait(ctx context.Context) error
	// Resume continues a replay that was suspended for an on-the-fly
	// mutation callback.
	Resume() error
	// Close releases the driver and the replay process it wraps.
	Close() error
}

// OpenFunc opens a Driver over a log file. Replayer.Open, an OpenFunc, is
// the production seam named in SPEC_FULL.md §1: an environment with the kernel-level
// record/replay facility loaded substitutes a real implementation here;
// this module ships only OpenFake.
type OpenFunc func(logPath string) (Driver, error)
