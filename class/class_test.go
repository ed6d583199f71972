package class

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"

	"github.com/wippyai/extern-runtime/errors"
	"github.com/wippyai/extern-runtime/host"
)

type counter struct {
	last  atomic.Int64
	f     atomic.Uint64
	bangs atomic.Int32
	sym   atomic.Uint32
	list  []host.Atom
}

func (c *counter) Set(v int64) { c.last.Store(v) }
func (c *counter) Bang() { c.bangs.Add(1) }
func (c *counter) SetFloat(v float64) { c.f.Store(uint64(v)) }
func (c *counter) Name(s host.Symbol) { c.sym.Store(uint32(s)) }
func (c *counter) List(a []host.Atom) { c.list = a }
func (c *counter) Explode(host.Symbol) { panic("boom") }

func newRuntime(t *testing.T) *host.Runtime {
	t.Helper()
	r, err := host.New(context.Background(), host.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func TestClass_Dispatch(t *testing.T) {
	r := newRuntime(t)
	obj := &counter{}
	c := New[counter]("counter", func(host.Record) (*counter, error) { return obj, nil })
	c.AddMethodInt(host.SelectorInt, (*counter).Set)
	c.AddMethodFloat(host.SelectorFloat, (*counter).SetFloat)
	c.AddMethodBang((*counter).Bang)
	c.AddMethodSymbol("name", (*counter).Name)
	c.AddMethodList("list", (*counter).List)

	if got := c.Selectors(); len(got) != 5 || got[2] != host.SelectorBang {
		t.Fatalf("Selectors() = %v", got)
	}

	desc := c.Descriptor(nil, nil)
	if desc.RecordSize != host.HeaderSize+SlotSize {
		t.Errorf("RecordSize = %d", desc.RecordSize)
	}
	if _, err := r.RegisterClass(desc); err != nil {
		t.Fatal(err)
	}
	rec, err := r.NewInstance("counter")
	if err != nil {
		t.Fatal(err)
	}

	if err := r.SendInt(rec, 42); err != nil {
		t.Fatal(err)
	}
	if obj.last.Load() != 42 {
		t.Errorf("last = %d, want 42", obj.last.Load())
	}

	if err := r.SendFloat(rec, 7.5); err != nil {
		t.Fatal(err)
	}
	if obj.f.Load() != 7 {
		t.Errorf("float = %d, want 7", obj.f.Load())
	}

	_ = r.SendBang(rec)
	_ = r.SendBang(rec)
	if obj.bangs.Load() != 2 {
		t.Errorf("bangs = %d, want 2", obj.bangs.Load())
	}

	sym, _ := r.Gensym([]byte("hi"))
	if err := r.Send(rec, "name", host.Sym(sym)); err != nil {
		t.Fatal(err)
	}
	if host.Symbol(obj.sym.Load()) != sym {
		t.Error("symbol not delivered")
	}

	if err := r.Send(rec, "list", host.Long(1), host.Sym(sym)); err != nil {
		t.Fatal(err)
	}
	if len(obj.list) != 2 || obj.list[0] != host.Long(1) {
		t.Errorf("list = %v", obj.list)
	}
}

func TestClass_PanicContained(t *testing.T) {
	r := newRuntime(t)
	obj := &counter{}
	c := New[counter]("counter", func(host.Record) (*counter, error) { return obj, nil })
	c.AddMethodSymbol("explode", (*counter).Explode)
	c.AddMethodInt(host.SelectorInt, (*counter).Set)

	if _, err := r.RegisterClass(c.Descriptor(nil, nil)); err != nil {
		t.Fatal(err)
	}
	rec, _ := r.NewInstance("counter")

	err := r.Send(rec, "explode")
	if !stderrors.Is(err, errors.ErrCallbackPanic) {
		t.Fatalf("Send = %v, want callback panic", err)
	}
	var xe *errors.Error
	if stderrors.As(err, &xe) && (xe.Class != "counter" || xe.Selector != "explode") {
		t.Errorf("error attributed to %s.%s", xe.Class, xe.Selector)
	}

	if err := r.SendInt(rec, 3); err != nil {
		t.Fatalf("dispatch after panic: %v", err)
	}
	if obj.last.Load() != 3 {
		t.Error("object unusable after a contained panic")
	}
}

func TestClass_LookupError(t *testing.T) {
	r := newRuntime(t)
	missing := stderrors.New("no object")
	var calls atomic.Int32
	c := New[counter]("counter", func(host.Record) (*counter, error) { return nil, missing })
	c.AddMethodBang(func(*counter) { calls.Add(1) })

	if _, err := r.RegisterClass(c.Descriptor(nil, nil)); err != nil {
		t.Fatal(err)
	}
	rec, _ := r.NewInstance("counter")

	if err := r.SendBang(rec); !stderrors.Is(err, missing) {
		t.Errorf("SendBang = %v, want lookup error", err)
	}
	if calls.Load() != 0 {
		t.Error("method ran without an object")
	}
}

func TestClass_Trampoline(t *testing.T) {
	r := newRuntime(t)
	var seen host.Record
	c := New[counter]("raw", nil)
	c.AddMethodTrampoline("poke", []host.ArgType{host.ArgLong}, func(rec host.Record, args []host.Atom) error {
		seen = rec
		if args[0].Long < 0 {
			panic("negative")
		}
		return nil
	})

	if _, err := r.RegisterClass(c.Descriptor(nil, nil)); err != nil {
		t.Fatal(err)
	}
	rec, _ := r.NewInstance("raw")

	if err := r.Send(rec, "poke", host.Long(1)); err != nil {
		t.Fatal(err)
	}
	if seen != rec {
		t.Errorf("trampoline got %v, want %v", seen, rec)
	}
	if err := r.Send(rec, "poke", host.Long(-1)); !stderrors.Is(err, errors.ErrCallbackPanic) {
		t.Errorf("Send = %v, want callback panic", err)
	}
}

func TestClass_DuplicateSelectorRejected(t *testing.T) {
	r := newRuntime(t)
	c := New[counter]("dup", func(host.Record) (*counter, error) { return &counter{}, nil })
	c.AddMethodInt("x", (*counter).Set)
	c.AddMethodInt("x", (*counter).Set)

	if _, err := r.RegisterClass(c.Descriptor(nil, nil)); err == nil {
		t.Fatal("expected duplicate selector to be rejected")
	}
}

func TestClass_DescriptorIsCopy(t *testing.T) {
	c := New[counter]("counter", nil)
	c.AddMethodBang((*counter).Bang)
	desc := c.Descriptor(nil, nil)
	c.AddMethodInt("int", (*counter).Set)

	if len(desc.Methods) != 1 {
		t.Errorf("descriptor changed after later additions: %d methods", len(desc.Methods))
	}
}
