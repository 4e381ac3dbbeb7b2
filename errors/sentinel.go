// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Scratch directory and log file errors.
var (
	// ErrLogNotFound indicates the on-disk log for an execution does not exist.
	ErrLogNotFound = &ExploreError{
		Kind:   ErrNotFound,
		Detail: "execution log not found",
	}

	// ErrScratchLocked indicates another explorer run already holds the scratch lock.
	ErrScratchLocked = &ExploreError{
		Kind:   ErrAlreadyExists,
		Detail: "scratch directory is locked by another run",
	}

	// ErrLogWriteFailed indicates the mutated log could not be written.
	ErrLogWriteFailed = &ExploreError{
		Kind:   ErrIO,
		Detail: "failed to write execution log",
	}
)

// Pipeline errors.
var (
	// ErrAfterLastEvent indicates an after-anchor was placed on a stream's last event.
	ErrAfterLastEvent = &ExploreError{
		Kind:   ErrMalformedPipeline,
		Detail: "after-anchor on the last event of a stream",
	}

	// ErrBeforeAfterCollapse indicates two locations normalized to the same before-anchor.
	ErrBeforeAfterCollapse = &ExploreError{
		Kind:   ErrMalformedPipeline,
		Detail: "before/after anchors collapse onto the same event",
	}
)

// Scoring errors.
var (
	// ErrUnrecognizedMutation indicates scoring saw a mutator type it does not classify.
	ErrUnrecognizedMutation = &ExploreError{
		Kind:   ErrUnknownMutator,
		Detail: "unrecognized mutator type in scoring",
	}
)

// Session parsing errors.
var (
	// ErrNoSyscall indicates an event has no enclosing syscall.
	ErrNoSyscall = &ExploreError{
		Kind:   ErrInvalidState,
		Detail: "event has no enclosing syscall",
	}

	// ErrEventNotInList indicates an event's index was requested from a list that never appended it.
	ErrEventNotInList = &ExploreError{
		Kind:   ErrInvalidState,
		Detail: "event not in list",
	}

	// ErrNoInitProcess indicates the session has no pid-1 process.
	ErrNoInitProcess = &ExploreError{
		Kind:   ErrInvalidState,
		Detail: "no init process (pid 1) in session",
	}
)

// Replay driver errors.
var (
	// ErrReplayUnexpected wraps an unclassified error surfaced by the replay driver.
	ErrReplayUnexpected = &ExploreError{
		Kind:   ErrUnexpectedReplay,
		Detail: "unexpected replay driver error",
	}
)

// Isolation errors.
var (
	// ErrIsolationUnavailable indicates the jail environment is missing a precondition.
	ErrIsolationUnavailable = &ExploreError{
		Kind:   ErrPermission,
		Detail: "isolation environment unavailable",
	}

	// ErrMountFailed indicates a bind mount or union mount could not be established.
	ErrMountFailed = &ExploreError{
		Kind:   ErrIO,
		Detail: "failed to mount",
	}
)

// Configuration errors.
var (
	// ErrInvalidPattern indicates the mutation pattern string has an unrecognized character.
	ErrInvalidPattern = &ExploreError{
		Kind:   ErrInvalidConfig,
		Detail: "invalid mutation pattern",
	}

	// ErrMissingLogfile indicates no input log file path was configured.
	ErrMissingLogfile = &ExploreError{
		Kind:   ErrInvalidConfig,
		Detail: "logfile_path not set",
	}
)
