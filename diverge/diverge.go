// Package diverge turns a single replay divergence into a set of candidate
// mutations, per spec.md §4.4. It does not itself create Executions (that
// is the explorer's job, since only the explorer knows about execution ids,
// depth, and the running-session tree) — it hands back Proposals, each one
// a ready-to-pipe Mutator plus enough metadata for the explorer to decide
// whether the resulting child starts fresh (TODO) or inherits the live
// session (RUNNING).
package diverge

import (
	"strings"

	"mreplay/event"
	cerrors "mreplay/errors"
	"mreplay/mutator"
	"mreplay/replay"
	"mreplay/session"
)

// Action classifies a Proposal's mutation kind, matching the pattern string
// characters spec.md §6 defines (+, -, r).
type Action int

const (
	ActionInsert Action = iota
	ActionDelete
	ActionReplace
)

func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionDelete:
		return "delete"
	case ActionReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Proposal is one candidate mutation generated in response to a divergence.
// Running reports whether the resulting execution should inherit the live
// session rather than start from a freshly materialised log (spec.md §4.4
// "Fatal vs mutating"). Events and Original surface the raw events behind
// Mutation so the explorer can score the proposal (spec.md §4.2) without
// reaching into the Mutator's unexported fields.
type Proposal struct {
	Action   Action
	Mutation mutator.Mutator
	Running  bool
	// Events holds the inserted events (ActionInsert) or the events
	// DeleteEvent was built over (ActionDelete).
	Events []*session.Event
	// Original and Replacement are set only for ActionReplace.
	Original, Replacement *session.Event
}

// Handler dispatches divergence events to the kind-specific handlers named
// in spec.md §4.4's table. Pattern and MaxDelete come straight from the
// configuration surface (spec.md §6); MaxOtf bounds on-the-fly nesting
// depth the same way.
type Handler struct {
	Pattern   string
	MaxDelete int
	MaxOtf    int
}

// New builds a Handler. With a MaxDelete of zero, takeUntilMatch walks no
// events past its start, so every deletion proposal covers only the start
// event itself; this is a valid, if unusual, configuration.
func New(pattern string, maxDelete, maxOtf int) *Handler {
	return &Handler{Pattern: pattern, MaxDelete: maxDelete, MaxOtf: maxOtf}
}

// Handle dispatches d to the kind-specific handler and returns the
// resulting Proposals. proc is the process the divergence occurred in;
// depth is the pattern depth (the new execution's depth in the search
// tree); otfDepth is the current on-the-fly nesting depth.
func (h *Handler) Handle(proc *session.Process, d *replay.DivergeEvent, depth, otfDepth int) ([]Proposal, error) {
	idx := culpritIndex(d)
	if idx < 0 || idx >= proc.Events.Len() {
		return nil, cerrors.New(cerrors.ErrInvalidState, "diverge handle", "culprit index out of range")
	}
	culprit := proc.Events.At(idx)
	todo := d.Fatal || otfDepth > h.MaxOtf

	switch d.Kind {
	case event.KindDivergeMemOwned:
		return h.handleMemOwned(proc, d, culprit, depth, todo)
	case event.KindDivergeEventType:
		if d.Raw != nil && d.Raw.Type == event.KindRdtsc {
			return h.handleRdtsc(d, culprit, depth, todo)
		}
		return h.handleType(depth, culprit)
	case event.KindDivergeSyscall:
		return h.handleSyscall(proc, d, culprit, depth, todo)
	case event.KindDivergeSyscallRet:
		return h.handleSyscallRet(proc, d, culprit, depth, todo)
	case event.KindDivergeDataContent:
		return h.handleDataContent(proc, d, culprit, depth, todo)
	default:
		return h.handleDefault(proc, culprit, depth, todo)
	}
}

// CulpritIndex exposes the culprit-index computation for callers (the
// explorer) that need it to drive progress scoring independently of Handle.
func CulpritIndex(d *replay.DivergeEvent) int {
	return culpritIndex(d)
}

// culpritIndex computes the index of the event that caused the divergence,
// per spec.md §4.4: num_ev_consumed minus one, with kind-specific
// adjustments. The DataContent adjustment applies regardless of fatality;
// the Syscall and MemOwned adjustments apply only when non-fatal.
func culpritIndex(d *replay.DivergeEvent) int {
	idx := d.NumEvConsumed - 1
	if !d.Fatal {
		switch d.Kind {
		case event.KindDivergeSyscall, event.KindDivergeMemOwned:
			idx++
		}
	}
	if d.Kind == event.KindDivergeDataContent {
		idx++
	}
	return idx
}

// enclosingSyscall returns e's enclosing syscall-start: itself for a
// syscall-start event (session.Process.AddEvent sets a KindSyscallExtra
// event's .syscall to itself), or its back-pointer for an interior event.
func enclosingSyscall(e *session.Event) *session.Event {
	return e.Syscall()
}

// firstPrecedingSignal walks backward from e and returns the earliest
// contiguous Signal event directly before it, or nil. Used to anchor the
// ignore-syscall flag-set ahead of any pending signal delivery, per
// spec.md §4.4 ("before any preceding signals but before the culprit").
func firstPrecedingSignal(proc *session.Process, e *session.Event) *session.Event {
	idx, err := proc.Events.Index(e)
	if err != nil {
		return nil
	}
	var found *session.Event
	for i := idx - 1; i >= 0; i-- {
		prev := proc.Events.At(i)
		if prev.Kind() != event.KindSignal {
			break
		}
		found = prev
	}
	return found
}

// allowed reports whether the pattern permits action a at depth. An empty
// pattern permits everything; a pattern exhausted before depth also
// permits everything (no restriction beyond the depths it names).
func (h *Handler) allowed(depth int, a Action) bool {
	if h.Pattern == "" {
		return true
	}
	expanded := expandPattern(h.Pattern)
	if depth < 0 || depth >= len(expanded) {
		return true
	}
	switch expanded[depth] {
	case '+':
		return a == ActionInsert
	case '-':
		return a == ActionDelete
	case 'r':
		return a == ActionReplace
	default:
		return true
	}
}

// expandPattern rewrites '*' into "-+" per spec.md §6, shifting every
// character after it one depth further.
func expandPattern(p string) string {
	var b strings.Builder
	for _, c := range p {
		if c == '*' {
			b.WriteString("-+")
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func appendProp(props *[]Proposal, p *Proposal) {
	if p != nil {
		*props = append(*props, *p)
	}
}

// addEvent inserts raw at loc, gated by the pattern. When todo is true the
// insertion is padded with a Nop carrying an encoded syscall-end, mirroring
// the original's fatal-path padding so a TODO child's body stays
// well-formed; the proposal is marked Running only on the non-todo path.
func (h *Handler) addEvent(depth int, loc session.Location, raw *event.Raw, todo bool) (*Proposal, error) {
	if !h.allowed(depth, ActionInsert) {
		return nil, nil
	}
	events := []*session.Event{session.NewEvent(raw)}
	if todo {
		events = append(events, session.NewEvent(&event.Raw{
			Kind:  event.KindNop,
			Pid:   raw.Pid,
			Extra: (&event.Raw{Kind: event.KindSyscallEnd}).Encode(),
		}))
	}
	m, err := mutator.NewInsertEventAt(loc, events)
	if err != nil {
		return nil, err
	}
	return &Proposal{Action: ActionInsert, Mutation: m, Running: !todo, Events: events}, nil
}

// deleteEvent drops events, gated by the pattern. A nil or empty extent
// (takeUntilMatch found no deletion-safe extent) yields no proposal.
func (h *Handler) deleteEvent(depth int, events []*session.Event) (*Proposal, error) {
	if !h.allowed(depth, ActionDelete) || len(events) == 0 {
		return nil, nil
	}
	return &Proposal{Action: ActionDelete, Mutation: mutator.NewDeleteEvent(events), Events: events}, nil
}

// replaceEvent substitutes repl for original, gated by the pattern.
func (h *Handler) replaceEvent(depth int, original, repl *session.Event, todo bool) (*Proposal, error) {
	if !h.allowed(depth, ActionReplace) {
		return nil, nil
	}
	m := &mutator.Replace{Map: map[*session.Event]*session.Event{original: repl}}
	return &Proposal{Action: ActionReplace, Mutation: m, Running: !todo, Original: original, Replacement: repl}, nil
}
