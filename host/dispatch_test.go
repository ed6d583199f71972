package host

import (
	"bytes"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/extern-runtime/errors"
	"github.com/wippyai/extern-runtime/heap"
)

type recorded struct {
	mu   sync.Mutex
	args [][]Atom
}

func (r *recorded) trampoline(_ Record, args []Atom) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.args = append(r.args, args)
	return nil
}

func (r *recorded) last() []Atom {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.args) == 0 {
		return nil
	}
	return r.args[len(r.args)-1]
}

func TestSend_Coercion(t *testing.T) {
	r, _ := newTestRuntime(t)
	var got recorded
	_, err := r.RegisterClass(ClassDescriptor{
		Name:       "obj",
		RecordSize: HeaderSize,
		Methods: []Method{
			{Selector: SelectorInt, Args: []ArgType{ArgLong}, Fn: got.trampoline},
			{Selector: SelectorFloat, Args: []ArgType{ArgFloat}, Fn: got.trampoline},
			{Selector: "set", Args: []ArgType{ArgLong, ArgSymbol}, Fn: got.trampoline},
			{Selector: "list", Args: []ArgType{ArgSymbol, ArgRest}, Fn: got.trampoline},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := r.NewInstance("obj")
	if err != nil {
		t.Fatal(err)
	}
	foo, _ := r.Gensym([]byte("foo"))

	tests := []struct {
		name     string
		selector string
		args     []Atom
		want     []Atom
	}{
		{"long as long", SelectorInt, []Atom{Long(5)}, []Atom{Long(5)}},
		{"float truncates to long", SelectorInt, []Atom{Float(2.9)}, []Atom{Long(2)}},
		{"long widens to float", SelectorFloat, []Atom{Long(3)}, []Atom{Float(3)}},
		{"missing long defaults", SelectorInt, nil, []Atom{Long(0)}},
		{"missing symbol defaults", "set", []Atom{Long(1)}, []Atom{Long(1), Sym(r.EmptySymbol())}},
		{"rest passes through", "list", []Atom{Sym(foo), Long(1), Float(2)}, []Atom{Sym(foo), Long(1), Float(2)}},
		{"empty rest", "list", []Atom{Sym(foo)}, []Atom{Sym(foo)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Send(rec, tt.selector, tt.args...); err != nil {
				t.Fatalf("Send: %v", err)
			}
			last := got.last()
			if len(last) != len(tt.want) {
				t.Fatalf("args = %v, want %v", last, tt.want)
			}
			for i := range last {
				if last[i] != tt.want[i] {
					t.Errorf("arg %d = %v, want %v", i, last[i], tt.want[i])
				}
			}
		})
	}
}

func TestSend_TypeMismatch(t *testing.T) {
	r, logs := newTestRuntime(t)
	var got recorded
	_, err := r.RegisterClass(ClassDescriptor{
		Name:       "obj",
		RecordSize: HeaderSize,
		Methods: []Method{
			{Selector: SelectorInt, Args: []ArgType{ArgLong}, Fn: got.trampoline},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := r.NewInstance("obj")
	sym, _ := r.Gensym([]byte("x"))

	for _, args := range [][]Atom{{Sym(sym)}, {Long(1), Long(2)}} {
		err := r.Send(rec, SelectorInt, args...)
		var xe *errors.Error
		if !stderrors.As(err, &xe) || xe.Kind != errors.KindTypeMismatch {
			t.Fatalf("Send(%v) = %v, want type mismatch", args, err)
		}
		if xe.Record != uint32(rec) {
			t.Errorf("error record = %#x, want %v", xe.Record, rec)
		}
	}
	if got.last() != nil {
		t.Error("trampoline must not run on mismatched arguments")
	}
	if logs.FilterField(zap.String("kind", string(errors.KindTypeMismatch))).Len() != 2 {
		t.Error("mismatches should be posted")
	}
}

func TestSend_UnknownSelector(t *testing.T) {
	r, logs := newTestRuntime(t)
	if _, err := r.RegisterClass(ClassDescriptor{Name: "obj", RecordSize: HeaderSize}); err != nil {
		t.Fatal(err)
	}
	rec, _ := r.NewInstance("obj")

	err := r.Send(rec, "frobnicate")
	var xe *errors.Error
	if !stderrors.As(err, &xe) || xe.Kind != errors.KindNotFound {
		t.Fatalf("error = %v, want not found", err)
	}
	if logs.FilterMessage(`obj: doesn't understand "frobnicate"`).Len() != 1 {
		t.Errorf("missing console post, got %v", logs.All())
	}
}

func TestSend_UnknownRecord(t *testing.T) {
	r, _ := newTestRuntime(t)
	if err := r.SendBang(Record(4096)); err == nil {
		t.Fatal("expected error for unknown record")
	}
}

func TestSend_TrampolineErrorAndPanic(t *testing.T) {
	r, logs := newTestRuntime(t)
	fail := stderrors.New("nope")
	_, err := r.RegisterClass(ClassDescriptor{
		Name:       "obj",
		RecordSize: HeaderSize,
		Methods: []Method{
			{Selector: "fail", Fn: func(Record, []Atom) error { return fail }},
			{Selector: "panic", Fn: func(Record, []Atom) error { panic("oops") }},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := r.NewInstance("obj")

	if err := r.Send(rec, "fail"); !stderrors.Is(err, fail) {
		t.Errorf("Send(fail) = %v, want %v", err, fail)
	}

	err = r.Send(rec, "panic")
	if !stderrors.Is(err, errors.ErrCallbackPanic) {
		t.Fatalf("Send(panic) = %v, want callback panic", err)
	}
	var xe *errors.Error
	if stderrors.As(err, &xe) && xe.Selector != "panic" {
		t.Errorf("selector = %q", xe.Selector)
	}
	if logs.FilterMessage("host diagnostic").Len() != 2 {
		t.Errorf("diagnostics = %d, want 2", logs.FilterMessage("host diagnostic").Len())
	}
	if !r.Live(rec) {
		t.Error("record should survive a callback panic")
	}
}

func TestSend_ConcurrentSameRecord(t *testing.T) {
	r, _ := newTestRuntime(t)
	var total atomic.Int64
	_, err := r.RegisterClass(ClassDescriptor{
		Name:       "obj",
		RecordSize: HeaderSize,
		Methods: []Method{{
			Selector: SelectorInt,
			Args:     []ArgType{ArgLong},
			Fn: func(_ Record, args []Atom) error {
				total.Add(args[0].Long)
				return nil
			},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := r.NewInstance("obj")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = r.SendInt(rec, 1)
			}
		}()
	}
	wg.Wait()

	if total.Load() != 800 {
		t.Errorf("total = %d, want 800", total.Load())
	}
}

func TestSend_ConcurrentWithHeapGrowth(t *testing.T) {
	r, _ := newTestRuntime(t)
	var total atomic.Int64
	_, err := r.RegisterClass(ClassDescriptor{
		Name:       "obj",
		RecordSize: HeaderSize,
		Methods: []Method{{
			Selector: SelectorInt,
			Args:     []ArgType{ArgLong},
			Fn: func(_ Record, args []Atom) error {
				total.Add(args[0].Long)
				return nil
			},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := r.NewInstance("obj")
	pages := r.Heap().Size() / heap.PageSize

	stop := make(chan struct{})
	var sent atomic.Int64
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if err := r.SendInt(rec, 1); err != nil {
				t.Errorf("SendInt: %v", err)
				return
			}
			sent.Add(1)
		}
	}()

	// each symbol is large enough that interning keeps growing host memory
	for i := range 40 {
		text := bytes.Repeat([]byte{byte('a' + i%26)}, 30*1024)
		text = append(text, byte('0'+i/26))
		if _, err := r.Gensym(text); err != nil {
			t.Errorf("Gensym %d: %v", i, err)
			break
		}
	}
	close(stop)
	wg.Wait()

	if grown := r.Heap().Size() / heap.PageSize; grown <= pages {
		t.Errorf("heap did not grow: %d pages before, %d after", pages, grown)
	}
	if total.Load() != sent.Load() {
		t.Errorf("total = %d, want %d", total.Load(), sent.Load())
	}
}

func TestSignature(t *testing.T) {
	desc := ClassDescriptor{
		Name:       "obj",
		RecordSize: HeaderSize,
		Methods: []Method{{
			Selector: "m",
			Args:     []ArgType{ArgLong, ArgFloat, ArgSymbol, ArgRest},
			Fn:       func(Record, []Atom) error { return nil },
		}},
	}

	sig, ok := desc.Signature("m")
	if !ok || len(sig) != 4 {
		t.Fatalf("Signature = %v, %v", sig, ok)
	}
	if _, ok := sig[0].(wit.S64); !ok {
		t.Errorf("arg 0 = %T, want wit.S64", sig[0])
	}
	if _, ok := sig[1].(wit.F64); !ok {
		t.Errorf("arg 1 = %T, want wit.F64", sig[1])
	}
	if _, ok := sig[2].(wit.String); !ok {
		t.Errorf("arg 2 = %T, want wit.String", sig[2])
	}
	td, ok := sig[3].(*wit.TypeDef)
	if !ok {
		t.Fatalf("arg 3 = %T, want *wit.TypeDef", sig[3])
	}
	if _, ok := td.Kind.(*wit.List); !ok {
		t.Errorf("rest kind = %T, want *wit.List", td.Kind)
	}

	if _, ok := desc.Signature("missing"); ok {
		t.Error("Signature of unknown selector should fail")
	}
}
