package wrapper

import (
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/wippyai/extern-runtime/class"
	"github.com/wippyai/extern-runtime/clock"
	"github.com/wippyai/extern-runtime/errors"
	"github.com/wippyai/extern-runtime/host"
	"github.com/wippyai/extern-runtime/resource"
	"github.com/wippyai/extern-runtime/symbol"
)

// Wrapped is the contract a user type satisfies through its pointer.
type Wrapped[T any] interface {
	*T

	// Init constructs the object. It runs once, before any message or clock
	// callback can reach the object.
	Init(o *Object[T], args []host.Atom) error

	// ClassName is the name the class is registered under.
	ClassName() string

	// ClassSetup binds the methods of the class.
	ClassSetup(c *class.Class[T])
}

// Destroyer is implemented by types that need cleanup before their record
// is released.
type Destroyer interface {
	Destroy()
}

// Object is the Go side of one host record: the user value plus the
// services it needs from the host.
type Object[T any] struct {
	value  T
	rt     *host.Runtime
	rec    host.Record
	clocks []*clock.Handle
	mu     sync.Mutex
	dead   atomic.Bool
}

// Wrapped returns the user value.
func (o *Object[T]) Wrapped() *T {
	return &o.value
}

// Record returns the host record the object lives in.
func (o *Object[T]) Record() host.Record {
	return o.rec
}

// Runtime returns the owning host.
func (o *Object[T]) Runtime() *host.Runtime {
	return o.rt
}

// NewClock creates a clock whose firings call fn on this object. The clock
// only remembers the record; the object is looked up again on every firing.
// Clocks created here are closed automatically before the object is
// destroyed.
func (o *Object[T]) NewClock(fn func(*T)) (*clock.Handle, error) {
	rt, rec := o.rt, o.rec
	h, err := clock.New(rt, rec, func() {
		obj, err := Lookup[T](rt, rec)
		if err != nil {
			rt.Report(rec, err)
			return
		}
		fn(obj.Wrapped())
	})
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.clocks = append(o.clocks, h)
	o.mu.Unlock()
	return h, nil
}

// Symbol interns s in the host symbol table.
func (o *Object[T]) Symbol(s string) (*symbol.Ref, error) {
	return symbol.Intern(o.rt, s)
}

// Post writes to the host console on behalf of the object.
func (o *Object[T]) Post(format string, args ...any) {
	o.rt.PostFrom(o.rec, format, args...)
}

// Error writes an error line to the host console on behalf of the object.
func (o *Object[T]) Error(format string, args ...any) {
	o.rt.PostError(o.rec, format, args...)
}

func (o *Object[T]) closeClocks() {
	o.mu.Lock()
	clocks := o.clocks
	o.clocks = nil
	o.mu.Unlock()

	for _, h := range clocks {
		if err := h.Close(); err != nil {
			o.rt.Report(o.rec, err)
		}
	}
}

// Register registers T as a host class. It must run once per type, at
// load time, before any instance of the class is created.
func Register[T any, PT Wrapped[T]](rt *host.Runtime) (host.ClassID, error) {
	var zero T
	name := PT(&zero).ClassName()

	c := class.New[T](name, func(rec host.Record) (*T, error) {
		o, err := Lookup[T](rt, rec)
		if err != nil {
			return nil, err
		}
		return o.Wrapped(), nil
	})
	PT(&zero).ClassSetup(c)

	return rt.RegisterClass(c.Descriptor(
		func(rec host.Record, args []host.Atom) error {
			return construct[T, PT](rt, rec, args)
		},
		func(rec host.Record) {
			destroy[T](rt, rec)
		},
	))
}

// construct builds the object and publishes it into the record only once
// Init has succeeded, so a failed construction leaves no object behind.
func construct[T any, PT Wrapped[T]](rt *host.Runtime, rec host.Record, args []host.Atom) error {
	id, err := rt.ClassOf(rec)
	if err != nil {
		return err
	}

	o := &Object[T]{rt: rt, rec: rec}
	if err := PT(&o.value).Init(o, args); err != nil {
		o.closeClocks()
		return err
	}

	h, err := rt.Objects().Insert(resource.Kind(id), o)
	if err != nil {
		o.closeClocks()
		return errors.Wrap(errors.PhaseConstruct, errors.KindAllocation, err, "store object")
	}
	if err := rt.SetRecordU32(rec, class.SlotOffset, uint32(h)); err != nil {
		rt.Objects().Remove(h)
		o.closeClocks()
		return err
	}
	return nil
}

// destroy tears the object down: its clocks first, so no firing can reach
// a destroyed value, then Destroy, then the slot.
func destroy[T any](rt *host.Runtime, rec host.Record) {
	o, err := Lookup[T](rt, rec)
	if err != nil {
		rt.Report(rec, err)
		return
	}
	if !o.dead.CompareAndSwap(false, true) {
		return
	}

	o.closeClocks()
	if d, ok := any(o.Wrapped()).(Destroyer); ok {
		d.Destroy()
	}

	h, err := rt.RecordU32(rec, class.SlotOffset)
	if err != nil {
		rt.Report(rec, err)
		return
	}
	if err := rt.SetRecordU32(rec, class.SlotOffset, 0); err != nil {
		rt.Report(rec, err)
	}
	if _, ok := rt.Objects().Remove(resource.Handle(h)); !ok {
		rt.Report(rec, errors.New(errors.PhaseHost, errors.KindNotFound).
			Class(rt.ClassName(rec)).
			Record(uint32(rec)).
			Detail("object slot %s already released", resource.Handle(h)).
			Build())
	}
}

// Lookup returns the object embedded in rec. It is the only code that reads
// the object slot; the slot handle is checked against the record's class.
func Lookup[T any](rt *host.Runtime, rec host.Record) (*Object[T], error) {
	id, err := rt.ClassOf(rec)
	if err != nil {
		return nil, err
	}
	h, err := rt.RecordU32(rec, class.SlotOffset)
	if err != nil {
		return nil, err
	}
	if h == 0 {
		return nil, errors.New(errors.PhaseDispatch, errors.KindNotFound).
			Class(rt.ClassName(rec)).
			Record(uint32(rec)).
			Detail("record holds no object").
			Build()
	}

	v, err := rt.Objects().Resolve(resource.Handle(h), resource.Kind(id))
	if err != nil {
		kind := errors.KindNotFound
		if stderrors.Is(err, resource.ErrKind) {
			kind = errors.KindTypeMismatch
		}
		return nil, errors.New(errors.PhaseDispatch, kind).
			Class(rt.ClassName(rec)).
			Record(uint32(rec)).
			Detail("object slot %s", resource.Handle(h)).
			Cause(err).
			Build()
	}
	o, ok := v.(*Object[T])
	if !ok {
		return nil, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			Class(rt.ClassName(rec)).
			Record(uint32(rec)).
			Value(v).
			Detail("record does not hold a %T", o).
			Build()
	}
	return o, nil
}
