package diverge

import (
	"mreplay/event"
	"mreplay/mutator"
	"mreplay/replay"
	"mreplay/session"
)

// handleMemOwned inserts a matching memory-owned marker at the culprit and
// proposes deleting the intervening memory-access events up to one that
// matches the same address (spec.md §4.4 table, row MemOwned).
func (h *Handler) handleMemOwned(proc *session.Process, d *replay.DivergeEvent, culprit *session.Event, depth int, todo bool) ([]Proposal, error) {
	var props []Proposal

	kind := event.KindMemOwnedReadExtra
	if d.Raw.WriteAccess {
		kind = event.KindMemOwnedWriteExtra
	}
	add := &event.Raw{Kind: kind, Pid: d.Pid, Address: d.Raw.Address, WriteAccess: d.Raw.WriteAccess}
	ap, err := h.addEvent(depth, session.At(culprit, false), add, todo)
	if err != nil {
		return nil, err
	}
	appendProp(&props, ap)

	del := takeUntilMatch(proc, culprit, culprit, h.MaxDelete)
	dp, err := h.deleteEvent(depth, del)
	if err != nil {
		return nil, err
	}
	appendProp(&props, dp)
	return props, nil
}

// handleRdtsc inserts a synthetic Rdtsc event and deletes the culprit
// (spec.md §4.4 table, row EventType = Rdtsc).
func (h *Handler) handleRdtsc(d *replay.DivergeEvent, culprit *session.Event, depth int, todo bool) ([]Proposal, error) {
	var props []Proposal

	ap, err := h.addEvent(depth, session.At(culprit, false), &event.Raw{Kind: event.KindRdtsc, Pid: d.Pid}, todo)
	if err != nil {
		return nil, err
	}
	appendProp(&props, ap)

	dp, err := h.deleteEvent(depth, []*session.Event{culprit})
	if err != nil {
		return nil, err
	}
	appendProp(&props, dp)
	return props, nil
}

// handleType deletes the culprit (spec.md §4.4 table, row EventType other).
func (h *Handler) handleType(depth int, culprit *session.Event) ([]Proposal, error) {
	dp, err := h.deleteEvent(depth, []*session.Event{culprit})
	if err != nil {
		return nil, err
	}
	if dp == nil {
		return nil, nil
	}
	return []Proposal{*dp}, nil
}

// handleSyscall inserts an ignore-syscall flag-set ahead of any preceding
// signal, substituting the observed syscall, and proposes deleting the
// original syscall's extent up to a resync point (spec.md §4.4 table, row
// Syscall).
func (h *Handler) handleSyscall(proc *session.Process, d *replay.DivergeEvent, culprit *session.Event, depth int, todo bool) ([]Proposal, error) {
	var props []Proposal

	newSyscall := session.NewEvent(&event.Raw{Kind: event.KindSyscallExtra, Pid: d.Pid, Nr: d.Raw.Nr, Args: d.Raw.Args})
	loc := session.At(culprit, false)
	if enclosing := enclosingSyscall(culprit); enclosing != nil {
		if sig := firstPrecedingSignal(proc, enclosing); sig != nil {
			loc = session.At(sig, false)
		}
	}
	flag := &event.Raw{Kind: event.KindSetFlags, Pid: d.Pid, Duration: event.DurationUntilNextSyscall, Extra: newSyscall.Raw.Encode()}
	ap, err := h.addEvent(depth, loc, flag, todo)
	if err != nil {
		return nil, err
	}
	appendProp(&props, ap)

	del := takeUntilMatch(proc, culprit, newSyscall, h.MaxDelete)
	dp, err := h.deleteEvent(depth, del)
	if err != nil {
		return nil, err
	}
	appendProp(&props, dp)
	return props, nil
}

// handleSyscallRet inserts the ignore-syscall flag-set, replaces the
// syscall-start with one carrying the observed return value, and proposes
// deleting the body up to a resync point (spec.md §4.4 table, row
// SyscallRet).
func (h *Handler) handleSyscallRet(proc *session.Process, d *replay.DivergeEvent, culprit *session.Event, depth int, todo bool) ([]Proposal, error) {
	var props []Proposal

	syscall := enclosingSyscall(culprit)
	if syscall == nil {
		syscall = culprit
	}
	newSyscall := session.NewEvent(&event.Raw{Kind: event.KindSyscallExtra, Pid: d.Pid, Nr: syscall.Raw.Nr, Args: syscall.Raw.Args})
	loc := session.At(syscall, false)
	if sig := firstPrecedingSignal(proc, syscall); sig != nil {
		loc = session.At(sig, false)
	}
	flag := &event.Raw{Kind: event.KindSetFlags, Pid: d.Pid, Duration: event.DurationUntilNextSyscall, Extra: newSyscall.Raw.Encode()}
	ap, err := h.addEvent(depth, loc, flag, todo)
	if err != nil {
		return nil, err
	}
	appendProp(&props, ap)

	replaced := syscall.Raw.Clone()
	replaced.Ret = d.Raw.Ret
	rp, err := h.replaceEvent(depth, syscall, session.NewEvent(replaced), todo)
	if err != nil {
		return nil, err
	}
	appendProp(&props, rp)

	del := takeUntilMatch(proc, syscall, newSyscall, h.MaxDelete)
	dp, err := h.deleteEvent(depth, del)
	if err != nil {
		return nil, err
	}
	appendProp(&props, dp)
	return props, nil
}

// handleDataContent synthesises a replacement syscall body (a string-data
// event carrying the observed bytes, plus a syscall-end), inserts the
// ignore-syscall flag-set, and proposes deleting the original body
// (spec.md §4.4 table, row DataContent).
func (h *Handler) handleDataContent(proc *session.Process, d *replay.DivergeEvent, culprit *session.Event, depth int, todo bool) ([]Proposal, error) {
	var props []Proposal

	syscall := enclosingSyscall(culprit)
	var newSyscall *session.Event
	if syscall != nil {
		newSyscall = session.NewEvent(&event.Raw{Kind: event.KindSyscallExtra, Pid: d.Pid, Nr: syscall.Raw.Nr, Args: syscall.Raw.Args})
		loc := session.At(syscall, false)
		if sig := firstPrecedingSignal(proc, syscall); sig != nil {
			loc = session.At(sig, false)
		}
		flag := &event.Raw{Kind: event.KindSetFlags, Pid: d.Pid, Duration: event.DurationUntilNextSyscall, Extra: newSyscall.Raw.Encode()}
		ap, err := h.addEvent(depth, loc, flag, todo)
		if err != nil {
			return nil, err
		}
		appendProp(&props, ap)

		if h.allowed(depth, ActionInsert) {
			body := []*session.Event{
				session.NewEvent(&event.Raw{Kind: event.KindDataExtra, Pid: d.Pid, Data: d.Raw.Data}),
				session.NewEvent(&event.Raw{Kind: event.KindSyscallEnd, Pid: d.Pid, Nr: syscall.Raw.Nr}),
			}
			m, err := mutator.NewInsertEventAt(session.At(syscall, true), body)
			if err != nil {
				return nil, err
			}
			props = append(props, Proposal{Action: ActionInsert, Mutation: m, Running: !todo, Events: body})
		}
	}

	start, end := culprit, culprit
	if syscall != nil {
		start = syscall
	}
	if newSyscall != nil {
		end = newSyscall
	}
	del := takeUntilMatch(proc, start, end, h.MaxDelete)
	dp, err := h.deleteEvent(depth, del)
	if err != nil {
		return nil, err
	}
	appendProp(&props, dp)
	return props, nil
}

// handleDefault inserts a flag-set that skips the enclosing syscall
// entirely and proposes deleting its body (spec.md §4.4 table, row
// default).
func (h *Handler) handleDefault(proc *session.Process, culprit *session.Event, depth int, todo bool) ([]Proposal, error) {
	var props []Proposal

	syscall := enclosingSyscall(culprit)
	var newSyscall *session.Event
	if syscall != nil {
		newSyscall = session.NewEvent(&event.Raw{Kind: event.KindSyscallExtra, Pid: culprit.Raw.Pid, Nr: syscall.Raw.Nr, Args: syscall.Raw.Args})
		loc := session.At(syscall, false)
		if sig := firstPrecedingSignal(proc, syscall); sig != nil {
			loc = session.At(sig, false)
		}
		flag := &event.Raw{Kind: event.KindSetFlags, Pid: culprit.Raw.Pid, Duration: event.DurationUntilNextSyscall, Extra: newSyscall.Raw.Encode()}
		ap, err := h.addEvent(depth, loc, flag, todo)
		if err != nil {
			return nil, err
		}
		appendProp(&props, ap)
	}

	start, end := culprit, culprit
	if syscall != nil {
		start = syscall
	}
	if newSyscall != nil {
		end = newSyscall
	}
	del := takeUntilMatch(proc, start, end, h.MaxDelete)
	dp, err := h.deleteEvent(depth, del)
	if err != nil {
		return nil, err
	}
	appendProp(&props, dp)
	return props, nil
}
