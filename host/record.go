package host

import (
	"fmt"
	"sync"

	"github.com/wippyai/extern-runtime/errors"
)

// Record is the address of an instance record in host memory.
// 0 is never a valid record.
type Record uint32

func (r Record) String() string {
	return fmt.Sprintf("0x%x", uint32(r))
}

// Record header layout. The region after HeaderSize belongs to the class.
const (
	HeaderSize uint32 = 16

	offMagic    uint32 = 0
	offClass    uint32 = 4
	offState    uint32 = 8
	offReserved uint32 = 12

	recordMagic uint32 = 0x6f626a21
	recordAlign uint32 = 8
)

type recordState uint32

const (
	stateConstructing recordState = iota + 1
	stateLive
	stateDying
)

func (s recordState) String() string {
	switch s {
	case stateConstructing:
		return "constructing"
	case stateLive:
		return "live"
	case stateDying:
		return "dying"
	default:
		return "free"
	}
}

// recordEntry is host bookkeeping kept outside record memory. gate is read
// locked by every callback delivery and write locked for the whole of
// construction and teardown, so callbacks never overlap either.
type recordEntry struct {
	class *classEntry
	gate  sync.RWMutex
	size  uint32
}

func (r *Runtime) entry(rec Record) (*recordEntry, bool) {
	r.recMu.RLock()
	defer r.recMu.RUnlock()
	e, ok := r.records[rec]
	return e, ok
}

// enter read-locks rec's gate and revalidates rec under it. When ok is true
// the caller must release e.gate with RUnlock.
func (r *Runtime) enter(rec Record) (e *recordEntry, st recordState, ok bool) {
	e, ok = r.entry(rec)
	if !ok {
		return nil, 0, false
	}
	e.gate.RLock()
	if cur, still := r.entry(rec); !still || cur != e {
		e.gate.RUnlock()
		return nil, 0, false
	}
	return e, r.state(rec), true
}

func (r *Runtime) state(rec Record) recordState {
	v, err := r.heap.ReadU32(uint32(rec) + offState)
	if err != nil {
		return 0
	}
	return recordState(v)
}

func (r *Runtime) setState(rec Record, s recordState) {
	_ = r.heap.WriteU32(uint32(rec)+offState, uint32(s))
}

func (r *Runtime) writeHeader(rec Record, class ClassID) error {
	base := uint32(rec)
	if err := r.heap.WriteU32(base+offMagic, recordMagic); err != nil {
		return err
	}
	if err := r.heap.WriteU32(base+offClass, uint32(class)); err != nil {
		return err
	}
	if err := r.heap.WriteU32(base+offState, uint32(stateConstructing)); err != nil {
		return err
	}
	return r.heap.WriteU32(base+offReserved, 0)
}

// ClassOf reads the class of rec from its header.
func (r *Runtime) ClassOf(rec Record) (ClassID, error) {
	e, ok := r.entry(rec)
	if !ok {
		return 0, errors.New(errors.PhaseHost, errors.KindNotFound).
			Record(uint32(rec)).
			Detail("no such record").
			Build()
	}
	magic, err := r.heap.ReadU32(uint32(rec) + offMagic)
	if err != nil {
		return 0, err
	}
	if magic != recordMagic {
		return 0, errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Class(e.class.desc.Name).
			Record(uint32(rec)).
			Detail("corrupt record header").
			Build()
	}
	id, err := r.heap.ReadU32(uint32(rec) + offClass)
	if err != nil {
		return 0, err
	}
	return ClassID(id), nil
}

// ClassName returns the class name of rec, or "" if rec is not a record.
func (r *Runtime) ClassName(rec Record) string {
	e, ok := r.entry(rec)
	if !ok {
		return ""
	}
	return e.class.desc.Name
}

// Live reports whether rec is constructed and not yet being destroyed.
func (r *Runtime) Live(rec Record) bool {
	if _, ok := r.entry(rec); !ok {
		return false
	}
	return r.state(rec) == stateLive
}

// Exists reports whether rec is allocated, in any lifecycle state.
func (r *Runtime) Exists(rec Record) bool {
	_, ok := r.entry(rec)
	return ok
}

// RecordU32 reads the 32-bit word at off within rec's class region.
func (r *Runtime) RecordU32(rec Record, off uint32) (uint32, error) {
	addr, err := r.classOffset(rec, off)
	if err != nil {
		return 0, err
	}
	return r.heap.ReadU32(addr)
}

// SetRecordU32 writes the 32-bit word at off within rec's class region.
func (r *Runtime) SetRecordU32(rec Record, off, v uint32) error {
	addr, err := r.classOffset(rec, off)
	if err != nil {
		return err
	}
	return r.heap.WriteU32(addr, v)
}

func (r *Runtime) classOffset(rec Record, off uint32) (uint32, error) {
	e, ok := r.entry(rec)
	if !ok {
		return 0, errors.New(errors.PhaseHost, errors.KindNotFound).
			Record(uint32(rec)).
			Detail("no such record").
			Build()
	}
	if off < HeaderSize || off+4 > e.size || off+4 < off {
		return 0, errors.OutOfBounds(errors.PhaseHost, off, e.size)
	}
	return uint32(rec) + off, nil
}
