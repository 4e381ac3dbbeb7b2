// Package event implements the binary record codec for replay logs.
//
// This stands in for the kernel-owned event codec named in spec.md §6: a
// length-prefixed discriminated record format, read via mmap and rewritten
// with Encode. Every mutator and divergence payload in this module operates
// on the Raw type defined here.
package event

import (
	"encoding/binary"
	"fmt"
)

// Kind discriminates the event record types spec.md §6 lists.
type Kind uint8

const (
	KindInit Kind = iota
	KindPid
	KindSyscallExtra
	KindSyscallEnd
	KindDataExtra
	KindData
	KindFence
	KindRdtsc
	KindResourceLockExtra
	KindResourceLock
	KindResourceUnlock
	KindMemOwnedReadExtra
	KindMemOwnedWriteExtra
	KindSetFlags
	KindNop
	KindIgnoreSyscall
	KindSignal
	KindQueueEof
	KindBookmark
	KindDivergeSyscall
	KindDivergeSyscallRet
	KindDivergeEventType
	KindDivergeDataContent
	KindDivergeMemOwned
)

var kindNames = map[Kind]string{
	KindInit:               "Init",
	KindPid:                "Pid",
	KindSyscallExtra:       "SyscallExtra",
	KindSyscallEnd:         "SyscallEnd",
	KindDataExtra:          "DataExtra",
	KindData:               "Data",
	KindFence:              "Fence",
	KindRdtsc:              "Rdtsc",
	KindResourceLockExtra:  "ResourceLockExtra",
	KindResourceLock:       "ResourceLock",
	KindResourceUnlock:     "ResourceUnlock",
	KindMemOwnedReadExtra:  "MemOwnedReadExtra",
	KindMemOwnedWriteExtra: "MemOwnedWriteExtra",
	KindSetFlags:           "SetFlags",
	KindNop:                "Nop",
	KindIgnoreSyscall:      "IgnoreSyscall",
	KindSignal:             "Signal",
	KindQueueEof:           "QueueEof",
	KindBookmark:           "Bookmark",
	KindDivergeSyscall:     "DivergeSyscall",
	KindDivergeSyscallRet:  "DivergeSyscallRet",
	KindDivergeEventType:   "DivergeEventType",
	KindDivergeDataContent: "DivergeDataContent",
	KindDivergeMemOwned:    "DivergeMemOwned",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// IsSyscallStart reports whether the kind opens a syscall extent.
func (k Kind) IsSyscallStart() bool {
	return k == KindSyscallExtra
}

// IsResourceLock reports whether the kind opens a resource-lock extent.
func (k Kind) IsResourceLock() bool {
	return k == KindResourceLockExtra || k == KindResourceLock
}

// IsMemoryAccess reports whether the kind is a memory-ownership marker.
func (k Kind) IsMemoryAccess() bool {
	return k == KindMemOwnedReadExtra || k == KindMemOwnedWriteExtra
}

// IsDivergence reports whether the kind is one of the divergence sub-kinds.
func (k Kind) IsDivergence() bool {
	switch k {
	case KindDivergeSyscall, KindDivergeSyscallRet, KindDivergeEventType,
		KindDivergeDataContent, KindDivergeMemOwned:
		return true
	}
	return false
}

// IsStringData reports whether the kind carries raw string/byte payload data.
func (k Kind) IsStringData() bool {
	return k == KindData || k == KindDataExtra
}

// Duration values for SetFlags events.
type Duration uint8

const (
	DurationUntilNextSyscall Duration = iota
	DurationPermanent
)

// Raw is the discriminated-union, codec-level event record. It is the
// "opaque record produced by the external codec" of spec.md §3, made
// concrete: one struct with the union of payload fields every Kind needs,
// exactly as Design Notes §9 prescribes ("tagged sum of event kinds with
// per-kind payloads").
type Raw struct {
	Kind Kind
	Pid  int

	// Syscall payload (SyscallExtra / SyscallEnd / DivergeSyscall / DivergeSyscallRet).
	Nr   int64
	Args [6]int64
	Ret  int64

	// Memory payload (MemOwnedReadExtra / MemOwnedWriteExtra / DivergeMemOwned).
	Address     uint64
	WriteAccess bool

	// Data payload (Data / DataExtra / DivergeDataContent).
	Data []byte

	// Resource payload (ResourceLockExtra / ResourceLock / ResourceUnlock).
	ResourceID int
	Serial     int

	// SetFlags / IgnoreSyscall payload.
	Flags    uint32
	Duration Duration
	Extra    []byte

	// DivergeEventType payload: the event kind the divergence is about.
	Type Kind

	// Divergence metadata (all Diverge* kinds).
	NumEvConsumed int
	Fatal         bool

	// Bookmark payload.
	BookmarkID int
	Npr        int
}

// Encode serializes the event to its wire form: a kind byte and
// length-prefixed fields, matching the external facility's log format
// closely enough to round-trip through this module's own Decode.
func (r *Raw) Encode() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(r.Kind))
	buf = appendVarint(buf, int64(r.Pid))

	switch r.Kind {
	case KindSyscallExtra, KindSyscallEnd, KindDivergeSyscall, KindDivergeSyscallRet:
		buf = appendVarint(buf, r.Nr)
		for _, a := range r.Args {
			buf = appendVarint(buf, a)
		}
		buf = appendVarint(buf, r.Ret)
	case KindMemOwnedReadExtra, KindMemOwnedWriteExtra, KindDivergeMemOwned:
		buf = appendUvarint(buf, r.Address)
		if r.WriteAccess {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindData, KindDataExtra, KindDivergeDataContent:
		buf = appendVarint(buf, int64(len(r.Data)))
		buf = append(buf, r.Data...)
	case KindResourceLockExtra, KindResourceLock, KindResourceUnlock:
		buf = appendVarint(buf, int64(r.ResourceID))
		buf = appendVarint(buf, int64(r.Serial))
	case KindSetFlags, KindIgnoreSyscall:
		buf = appendUvarint(buf, uint64(r.Flags))
		buf = append(buf, byte(r.Duration))
		buf = appendVarint(buf, int64(len(r.Extra)))
		buf = append(buf, r.Extra...)
	case KindBookmark:
		buf = appendVarint(buf, int64(r.BookmarkID))
		buf = appendVarint(buf, int64(r.Npr))
	case KindDivergeEventType:
		buf = append(buf, byte(r.Type))
	}

	if r.Kind.IsDivergence() {
		buf = appendVarint(buf, int64(r.NumEvConsumed))
		if r.Fatal {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}

	out := make([]byte, 0, len(buf)+4)
	out = appendUvarint(out, uint64(len(buf)))
	out = append(out, buf...)
	return out
}

// Decode reads one record from b, returning the parsed Raw event and the
// number of bytes consumed.
func Decode(b []byte) (*Raw, int, error) {
	length, n := binary.Uvarint(b)
	if n <= 0 {
		return nil, 0, fmt.Errorf("event: truncated length prefix")
	}
	total := n + int(length)
	if total > len(b) {
		return nil, 0, fmt.Errorf("event: truncated record, want %d bytes, have %d", total, len(b))
	}
	body := b[n:total]

	r := &Raw{}
	off := 0
	if off >= len(body) {
		return nil, 0, fmt.Errorf("event: empty record body")
	}
	r.Kind = Kind(body[off])
	off++

	pid, m := binary.Varint(body[off:])
	off += m
	r.Pid = int(pid)

	switch r.Kind {
	case KindSyscallExtra, KindSyscallEnd, KindDivergeSyscall, KindDivergeSyscallRet:
		var v int64
		v, m = binary.Varint(body[off:])
		off += m
		r.Nr = v
		for i := range r.Args {
			v, m = binary.Varint(body[off:])
			off += m
			r.Args[i] = v
		}
		v, m = binary.Varint(body[off:])
		off += m
		r.Ret = v
	case KindMemOwnedReadExtra, KindMemOwnedWriteExtra, KindDivergeMemOwned:
		var uv uint64
		uv, m = binary.Uvarint(body[off:])
		off += m
		r.Address = uv
		r.WriteAccess = body[off] == 1
		off++
	case KindData, KindDataExtra, KindDivergeDataContent:
		var v int64
		v, m = binary.Varint(body[off:])
		off += m
		dataLen := int(v)
		r.Data = append([]byte(nil), body[off:off+dataLen]...)
		off += dataLen
	case KindResourceLockExtra, KindResourceLock, KindResourceUnlock:
		var v int64
		v, m = binary.Varint(body[off:])
		off += m
		r.ResourceID = int(v)
		v, m = binary.Varint(body[off:])
		off += m
		r.Serial = int(v)
	case KindSetFlags, KindIgnoreSyscall:
		var uv uint64
		uv, m = binary.Uvarint(body[off:])
		off += m
		r.Flags = uint32(uv)
		r.Duration = Duration(body[off])
		off++
		var v int64
		v, m = binary.Varint(body[off:])
		off += m
		extraLen := int(v)
		r.Extra = append([]byte(nil), body[off:off+extraLen]...)
		off += extraLen
	case KindBookmark:
		var v int64
		v, m = binary.Varint(body[off:])
		off += m
		r.BookmarkID = int(v)
		v, m = binary.Varint(body[off:])
		off += m
		r.Npr = int(v)
	case KindDivergeEventType:
		r.Type = Kind(body[off])
		off++
	}

	if r.Kind.IsDivergence() {
		v, mm := binary.Varint(body[off:])
		off += mm
		r.NumEvConsumed = int(v)
		r.Fatal = body[off] == 1
		off++
	}

	return r, total, nil
}

// Clone returns a deep copy, used when a mutator substitutes one field
// (e.g. Replace, or a divergence handler rewriting Ret) without aliasing
// the original record.
func (r *Raw) Clone() *Raw {
	c := *r
	if r.Data != nil {
		c.Data = append([]byte(nil), r.Data...)
	}
	if r.Extra != nil {
		c.Extra = append([]byte(nil), r.Extra...)
	}
	return &c
}

func appendVarint(buf []byte, v int64) []byte {
	tmp := make([]byte, binary.MaxVarintLen64)
	n := binary.PutVarint(tmp, v)
	return append(buf, tmp[:n]...)
}

func appendUvarint(buf []byte, v uint64) []byte {
	tmp := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(tmp, v)
	return append(buf, tmp[:n]...)
}
