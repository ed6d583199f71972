package host

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/extern-runtime/errors"
	"github.com/wippyai/extern-runtime/heap"
	"github.com/wippyai/extern-runtime/resource"
)

// Runtime is the host: it owns record memory, the class table, message
// dispatch, the clock scheduler and the symbol table.
type Runtime struct {
	log     *zap.Logger
	heap    *heap.Heap
	objects *resource.Table
	sched   *scheduler
	symbols *symbolTable

	records map[Record]*recordEntry
	recMu   sync.RWMutex

	classes     []*classEntry
	classByName map[string]ClassID
	classMu     sync.RWMutex

	closed atomic.Bool
}

// New creates a runtime with its own host memory.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	maxPages := cfg.MaxHeapPages
	if maxPages == 0 {
		maxPages = cfg.HeapPages
	}
	h, err := heap.New(ctx, cfg.HeapPages, maxPages)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindAllocation, err, "create host memory")
	}

	r := &Runtime{
		log:         cfg.logger(),
		heap:        h,
		objects:     resource.New(),
		records:     make(map[Record]*recordEntry),
		classByName: make(map[string]ClassID),
	}
	r.sched = newScheduler(r)
	r.symbols, err = newSymbolTable(h)
	if err != nil {
		_ = h.Close(ctx)
		return nil, err
	}

	r.objects.Watch(func(e resource.Event) {
		r.log.Debug("object "+e.Type.String(),
			zap.Stringer("handle", e.Handle),
			zap.Uint32("class_id", uint32(e.Kind)))
	})
	return r, nil
}

// Close frees every live record, running class Free hooks, then releases
// host memory.
func (r *Runtime) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	for _, rec := range r.Instances() {
		_ = r.free(rec)
	}
	r.sched.close()
	_ = r.objects.Close()
	return r.heap.Close(ctx)
}

// Objects is the table holding the Go side of embedded objects. Adapters
// store a value here and keep its handle in the record's class region.
func (r *Runtime) Objects() *resource.Table {
	return r.objects
}

// Heap returns host memory.
func (r *Runtime) Heap() *heap.Heap {
	return r.heap
}

// NewInstance allocates a record of class className and constructs its
// object. If construction fails the record is released and a
// construction failure is returned; nothing else is affected.
func (r *Runtime) NewInstance(className string, args ...Atom) (Record, error) {
	if r.closed.Load() {
		return 0, errors.Closed(errors.PhaseConstruct, "runtime")
	}
	ce, ok := r.classByNameEntry(className)
	if !ok {
		err := errors.NotFound(errors.PhaseConstruct, "class", className)
		r.report(0, err)
		return 0, err
	}

	ptr, err := r.heap.Alloc(ce.desc.RecordSize, recordAlign)
	if err != nil {
		cerr := errors.Construction(className, 0, err)
		r.report(0, cerr)
		return 0, cerr
	}
	rec := Record(ptr)
	if err := r.writeHeader(rec, ce.id); err != nil {
		r.heap.Free(ptr, ce.desc.RecordSize, recordAlign)
		return 0, errors.Construction(className, ptr, err)
	}

	e := &recordEntry{class: ce, size: ce.desc.RecordSize}
	e.gate.Lock()
	defer e.gate.Unlock()

	r.recMu.Lock()
	r.records[rec] = e
	r.recMu.Unlock()

	if ce.desc.New != nil {
		if err := r.construct(ce, rec, args); err != nil {
			r.abandon(rec, e)
			cerr := errors.Construction(className, ptr, err)
			r.report(0, cerr)
			return 0, cerr
		}
	}

	r.setState(rec, stateLive)
	r.log.Debug("instance created", recordFields(ce, rec)...)
	return rec, nil
}

func (r *Runtime) construct(ce *classEntry, rec Record, args []Atom) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.CallbackPanic(ce.desc.Name, "new", uint32(rec), p)
		}
	}()
	return ce.desc.New(rec, args)
}

// abandon releases a record whose constructor failed. Clocks the
// constructor created are not the object's anymore; they are dropped.
func (r *Runtime) abandon(rec Record, e *recordEntry) {
	r.setState(rec, stateDying)
	r.sched.releaseOwner(rec, false)

	r.recMu.Lock()
	delete(r.records, rec)
	r.recMu.Unlock()

	_ = r.heap.WriteU32(uint32(rec)+offMagic, 0)
	r.heap.Free(uint32(rec), e.size, recordAlign)
}

// Free destroys rec: the class Free hook runs exactly once, then the host
// verifies no clock owned by rec is still armed, then memory is released.
// An armed clock at that point is a cancellation race; it is unset, reported
// and returned as an error, and the record is freed regardless.
//
// Callbacks for rec never run concurrently with construction or teardown.
// Free must not be called from inside a callback running on rec.
func (r *Runtime) Free(rec Record) error {
	if r.closed.Load() {
		return errors.Closed(errors.PhaseHost, "runtime")
	}
	return r.free(rec)
}

func (r *Runtime) free(rec Record) error {
	e, ok := r.entry(rec)
	if !ok {
		return errors.New(errors.PhaseHost, errors.KindNotFound).
			Record(uint32(rec)).
			Detail("free of unknown record").
			Build()
	}

	e.gate.Lock()
	defer e.gate.Unlock()

	if cur, still := r.entry(rec); !still || cur != e {
		return errors.New(errors.PhaseHost, errors.KindNotFound).
			Record(uint32(rec)).
			Detail("record freed concurrently").
			Build()
	}
	if st := r.state(rec); st != stateLive {
		return errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Class(e.class.desc.Name).
			Record(uint32(rec)).
			Detail("record is %s", st).
			Build()
	}
	r.setState(rec, stateDying)

	if e.class.desc.Free != nil {
		r.destroy(e.class, rec)
	}

	raceErr := r.sched.releaseOwner(rec, true)

	r.recMu.Lock()
	delete(r.records, rec)
	r.recMu.Unlock()

	_ = r.heap.WriteU32(uint32(rec)+offMagic, 0)
	r.heap.Free(uint32(rec), e.size, recordAlign)
	r.log.Debug("instance freed", recordFields(e.class, rec)...)
	return raceErr
}

func (r *Runtime) destroy(ce *classEntry, rec Record) {
	defer func() {
		if p := recover(); p != nil {
			r.report(rec, errors.CallbackPanic(ce.desc.Name, "free", uint32(rec), p))
		}
	}()
	ce.desc.Free(rec)
}

// Instances returns all allocated records in address order.
func (r *Runtime) Instances() []Record {
	r.recMu.RLock()
	out := make([]Record, 0, len(r.records))
	for rec := range r.records {
		out = append(out, rec)
	}
	r.recMu.RUnlock()

	slices.Sort(out)
	return out
}
