package replay

import (
	"context"
	"errors"
	"time"

	cerrors "mreplay/errors"
	"mreplay/isolation"
	"mreplay/logging"
)

// Result is the terminal outcome of one Replayer.Run call (spec.md §4.3
// step 3).
type Result int

const (
	ResultSuccess Result = iota
	ResultDeadlock
	ResultDiverged
	ResultContextClosed
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultDeadlock:
		return "deadlocked"
	case ResultDiverged:
		return "diverged"
	case ResultContextClosed:
		return "context closed"
	default:
		return "unknown"
	}
}

// Replayer is the glue between an on-disk log and the external replay
// facility (spec.md §4.3). Open is the driver constructor (production code
// wires a kernel-backed Driver; tests and --driver=fake wire OpenFake).
// Jail, if non-nil, is prepared inside the init-loader before the replayed
// program starts.
type Replayer struct {
	Open OpenFunc
	Jail *isolation.Jail
}

// Run opens a driver over logPath, arms the one-second periodic deadlock
// check, waits for a terminal outcome, and always disarms/closes on exit
// (spec.md §4.3 steps 2-4).
func (r *Replayer) Run(ctx context.Context, logPath string) (Result, *DivergeEvent, error) {
	driver, err := r.Open(logPath)
	if err != nil {
		return 0, nil, cerrors.Wrap(err, cerrors.ErrIO, "open replay context")
	}

	if r.Jail != nil {
		driver.AddInitLoader(r.Jail.Prepare)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	done := make(chan error, 1)
	go func() { done <- driver.Wait(ctx) }()

	var waitErr error
loop:
	for {
		select {
		case <-ticker.C:
			if err := driver.CheckDeadlock(); err != nil && !errors.Is(err, errEPERM) {
				logging.WarnContext(ctx, "deadlock check failed", "error", err)
			}
		case waitErr = <-done:
			break loop
		}
	}

	if cerr := driver.Close(); cerr != nil {
		logging.WarnContext(ctx, "failed to close replay context", "error", cerr)
	}

	return classify(waitErr)
}

func classify(err error) (Result, *DivergeEvent, error) {
	if err == nil {
		return ResultSuccess, nil, nil
	}
	var dl DeadlockError
	if errors.As(err, &dl) {
		return ResultDeadlock, nil, nil
	}
	var cc ContextClosedError
	if errors.As(err, &cc) {
		return ResultContextClosed, nil, nil
	}
	var de *DivergeError
	if errors.As(err, &de) {
		return ResultDiverged, de.Event, nil
	}
	return 0, nil, cerrors.Wrap(err, cerrors.ErrUnexpectedReplay, "replay wait")
}

// errEPERM is a standalone sentinel kept local to this package: the deadlock
// check's EPERM tolerance (spec.md §5) does not need the syscall package's
// actual errno once the driver already classifies its own errors.
var errEPERM = errors.New("replay: permission denied")
