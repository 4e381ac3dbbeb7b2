// Package explorer implements the search-tree scheduler of spec.md §4.2:
// a flat pool of Executions (candidate mutated replays) scored and
// deduplicated by signature, scheduled highest-score-first via a
// github.com/google/btree index, and driven by the divergence handler in
// mreplay/diverge.
package explorer

import (
	"golang.org/x/sys/unix"

	"mreplay/diverge"
	"mreplay/mutator"
	"mreplay/session"
)

// State is an Execution's place in its TODO → (RUNNING)? → {SUCCESS,
// FAILED} lifecycle (spec.md §3 invariants).
type State int

const (
	StateTODO State = iota
	StateRunning
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateTODO:
		return "TODO"
	case StateRunning:
		return "RUNNING"
	case StateSuccess:
		return "SUCCESS"
	case StateFailed:
		return "FAILED"
	default:
		return "unknown"
	}
}

// unreachableScore stands in for the "sacred event" penalty spec.md §9
// calls out as a literal too large for any fixed-width integer: any
// execution that deletes or inserts an event reaching exit/exit_group
// becomes permanently unschedulable.
const unreachableScore = -(1 << 62)

// Execution is a node in the search tree (spec.md §3 "Execution").
type Execution struct {
	explorer *Explorer
	parent   *Execution
	mutation mutator.Mutator
	action   diverge.Action

	state State
	score int64
	id    int
	depth int

	// sigList holds committed segments; sig is the in-progress one. Both
	// participate in Signature (spec.md §4.2 "Signature").
	sigList []string
	sig     string

	// mutationIndices and flyOffsets are per-pid (spec.md §3).
	mutationIndices map[int]int
	flyOffsets      map[int]int

	children []*Execution

	// logPath is set once generateLog has materialised this execution's
	// on-disk log (spec.md §4.3 step 1, idempotent per execution).
	logPath string

	// running, if non-nil, is the live session a RUNNING child inherits
	// from its parent instead of reloading from disk (spec.md §4.2
	// "On-the-fly mode").
	running *session.Session
	session *session.Session
}

// ID returns the execution's monotonically assigned id.
func (e *Execution) ID() int { return e.id }

// State returns the execution's current lifecycle state.
func (e *Execution) State() State { return e.state }

// Score returns the execution's current score.
func (e *Execution) Score() int64 { return e.score }

// Depth returns the execution's path length from root.
func (e *Execution) Depth() int { return e.depth }

// Parent returns the execution's parent, or nil for the root.
func (e *Execution) Parent() *Execution { return e.parent }

// Signature returns the segment list used for dedup (spec.md §3 "Two
// Executions with equal signature... are considered equivalent").
func (e *Execution) Signature() []string {
	return append(append([]string(nil), e.sigList...), e.sig)
}

// newRoot builds the Root Execution directly from the on-disk input log,
// wrapped in Nop (or SetFlagsInit when on-the-fly/var_io negative flags
// apply — spec.md §4.2 "constructs the Root Execution (containing either a
// Nop or a SetFlagsInit depending on mode)").
func newRoot(ex *Explorer, mutation mutator.Mutator) *Execution {
	return &Execution{
		explorer:        ex,
		mutation:        mutation,
		state:           StateTODO,
		depth:           0,
		id:              ex.nextID(),
		mutationIndices: map[int]int{},
		flyOffsets:      map[int]int{},
	}
}

// newChild builds a child Execution from a diverge.Proposal, applying the
// scoring and signature rules of spec.md §4.2 (mirroring the original
// Execution.__init__'s per-mutation-type dispatch).
func (e *Execution) newChild(p diverge.Proposal, mutationPid, mutationIndex int) *Execution {
	child := &Execution{
		explorer:        e.explorer,
		parent:          e,
		mutation:        p.Mutation,
		action:          p.Action,
		state:           StateTODO,
		score:           e.score,
		depth:           e.depth + 1,
		id:              e.explorer.nextID(),
		sigList:         append([]string(nil), e.sigList...),
		sig:             e.sig,
		mutationIndices: copyIntMap(e.mutationIndices),
		flyOffsets:      copyIntMap(e.flyOffsets),
	}
	child.mutationIndices[mutationPid] = mutationIndex
	if p.Running {
		child.state = StateRunning
		child.running = e.runningSession()
	}

	cfg := e.explorer.cfg
	switch p.Action {
	case diverge.ActionInsert:
		if sacredIn(p.Events) {
			child.score = unreachableScore
		} else {
			child.score += int64(cfg.AddConstant)
		}
		child.sig += "+"
	case diverge.ActionDelete:
		if sacredIn(p.Events) {
			child.score = unreachableScore
		} else {
			child.score += int64(cfg.DelConstant)*int64(len(p.Events)) + int64(cfg.MatchConstant)
		}
		child.sig += "-"
	case diverge.ActionReplace:
		child.sig += "+-"
	}
	return child
}

// sacredIn reports whether the last of events is enclosed by a syscall
// reaching exit/exit_group — the "sacred event" penalty spec.md §4.2 names.
// Only the last event is consulted, mirroring the original's
// `events[-1].syscall.nr`. A syscall-start event is its own enclosing
// syscall (session.Process.AddEvent sets a KindSyscallExtra event's
// .syscall to itself, matching session.py's current_syscall assignment
// order), so deleting or inserting a syscall-start event reaching
// exit/exit_group also trips the penalty.
func sacredIn(events []*session.Event) bool {
	if len(events) == 0 {
		return false
	}
	syscall := events[len(events)-1].Syscall()
	if syscall == nil {
		return false
	}
	return syscall.Raw.Nr == unix.SYS_EXIT || syscall.Raw.Nr == unix.SYS_EXIT_GROUP
}

// updateProgress rewards the matching prefix since this execution's
// mutation on pid, committing the current signature segment and starting a
// fresh one when the prefix grew (spec.md §4.2 "When progress is
// rewarded...").
func (e *Execution) updateProgress(pid, index int) {
	segmentLength := int64(index - e.mutationIndices[pid])
	if segmentLength > 0 {
		e.sigList = append(e.sigList, e.sig)
		e.sig = ""
	}
	if e.explorer.cfg.Linear {
		e.score += segmentLength * int64(e.explorer.cfg.MatchConstant)
	} else {
		e.score = isqrt(e.score*e.score + segmentLength*segmentLength*int64(e.explorer.cfg.MatchConstant))
	}
}

func (e *Execution) runningSession() *session.Session {
	if e.running != nil {
		return e.running
	}
	return e.session
}

func copyIntMap(m map[int]int) map[int]int {
	out := make(map[int]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// isqrt computes the integer square root via Newton's method, avoiding
// floating point in the non-linear scoring branch (spec.md §9 "Score
// arithmetic uses integers only").
func isqrt(n int64) int64 {
	if n <= 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
