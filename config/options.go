// Package config defines the exploration run's configuration surface,
// spec.md §6 ("Configuration surface").
package config

import (
	"strings"

	cerrors "mreplay/errors"
)

// Options collects every recognised option spec.md §6 names.
type Options struct {
	// LogfilePath is the path to the recorded input log.
	LogfilePath string
	// OnTheFly enables mid-replay mutation callbacks.
	OnTheFly bool
	// VarIO relaxes fixed-I/O enforcement on the session.
	VarIO bool
	// NumSuccessToStop stops the explorer after this many successes.
	// Zero means unbounded.
	NumSuccessToStop int
	// Isolate wraps replays in the jailed context.
	Isolate bool
	// Linear selects linear vs quadratic-sqrt scoring.
	Linear bool
	// Pattern restricts allowed mutation kinds per depth; characters
	// {+, -, r, ., *} (where '*' expands to "-+").
	Pattern string
	// AddConstant, DelConstant, MatchConstant are scoring weights.
	AddConstant    int
	DelConstant    int
	MatchConstant  int
	// MaxDelete bounds a single deletion-extent search.
	MaxDelete int
	// MaxOtf bounds on-the-fly nesting depth.
	MaxOtf int
}

// Default returns the option set the original tool ships as defaults:
// deletion search bounded at 32 events, on-the-fly depth 4, linear scoring,
// constants add=1/del=2/match=3, no pattern restriction.
func Default() Options {
	return Options{
		Linear:        true,
		MaxDelete:     32,
		MaxOtf:        4,
		AddConstant:   1,
		DelConstant:   2,
		MatchConstant: 3,
	}
}

const validPatternChars = "+-r.*"

// Validate checks the option set for the invariants spec.md §6 and §7 name:
// a non-empty logfile path, a pattern over the recognised character set,
// and non-negative scoring constants.
func (o Options) Validate() error {
	if o.LogfilePath == "" {
		return cerrors.ErrMissingLogfile
	}
	for _, c := range o.Pattern {
		if !strings.ContainsRune(validPatternChars, c) {
			return cerrors.WrapWithDetail(nil, cerrors.ErrInvalidConfig, "validate pattern",
				"unrecognized pattern character: "+string(c))
		}
	}
	if o.AddConstant < 0 || o.DelConstant < 0 || o.MatchConstant < 0 {
		return cerrors.New(cerrors.ErrInvalidConfig, "validate", "scoring constants must be non-negative")
	}
	if o.MaxDelete < 0 {
		return cerrors.New(cerrors.ErrInvalidConfig, "validate", "max_delete must be non-negative")
	}
	if o.MaxOtf < 0 {
		return cerrors.New(cerrors.ErrInvalidConfig, "validate", "max_otf must be non-negative")
	}
	return nil
}
