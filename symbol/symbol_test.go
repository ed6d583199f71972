package symbol

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/wippyai/extern-runtime/errors"
	"github.com/wippyai/extern-runtime/host"
)

func newRuntime(t *testing.T) *host.Runtime {
	t.Helper()
	r, err := host.New(context.Background(), host.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func TestIntern_RoundTrip(t *testing.T) {
	r := newRuntime(t)

	for _, s := range []string{"", "foo", "héllo wörld", "日本語", "a b\tc"} {
		ref, err := Intern(r, s)
		if err != nil {
			t.Fatalf("Intern(%q): %v", s, err)
		}
		got, err := ref.Text()
		if err != nil {
			t.Fatalf("Text(): %v", err)
		}
		if got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
		// reads are repeatable
		if again, _ := ref.Text(); again != s {
			t.Errorf("second read %q -> %q", s, again)
		}
	}
}

func TestIntern_Identity(t *testing.T) {
	r := newRuntime(t)

	a, _ := Intern(r, "same")
	b, _ := FromBytes(r, []byte("same"))
	c, _ := Intern(r, "other")

	if !a.Equal(b) {
		t.Error("equal text should give equal refs")
	}
	if a.Symbol() != b.Symbol() {
		t.Error("equal text should share the host symbol")
	}
	if a.Equal(c) {
		t.Error("different text should not be equal")
	}

	var nilRef *Ref
	if a.Equal(nilRef) || !nilRef.Equal(nil) {
		t.Error("nil handling in Equal")
	}
}

func TestIntern_EncodingFailure(t *testing.T) {
	r := newRuntime(t)
	before := r.SymbolCount()

	tests := []struct {
		name string
		fn   func() (*Ref, error)
	}{
		{"invalid utf8 string", func() (*Ref, error) { return Intern(r, "a\xffb") }},
		{"invalid utf8 bytes", func() (*Ref, error) { return FromBytes(r, []byte{0xc3, 0x28}) }},
		{"embedded nul", func() (*Ref, error) { return Intern(r, "a\x00b") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := tt.fn()
			if ref != nil {
				t.Error("expected no ref")
			}
			if !stderrors.Is(err, errors.ErrEncoding) {
				t.Errorf("error = %v, want encoding error", err)
			}
		})
	}

	if r.SymbolCount() != before {
		t.Errorf("symbol table grew from %d to %d on rejected input", before, r.SymbolCount())
	}
}

func TestText_InvalidHostBytes(t *testing.T) {
	r := newRuntime(t)
	raw, err := r.Gensym([]byte{'o', 'k', 0xff})
	if err != nil {
		t.Fatal(err)
	}
	ref := FromSymbol(r, raw)

	if _, err := ref.Text(); !stderrors.Is(err, errors.ErrEncoding) {
		t.Errorf("Text() = %v, want encoding error", err)
	}
	if got := ref.String(); got != "ok\uFFFD" {
		t.Errorf("String() = %q, want replacement character", got)
	}
	b, err := ref.Bytes()
	if err != nil || len(b) != 3 || b[2] != 0xff {
		t.Errorf("Bytes() = %x, %v", b, err)
	}
}

func TestAssign(t *testing.T) {
	r := newRuntime(t)
	a, _ := Intern(r, "a")
	b, _ := Intern(r, "b")
	count := r.SymbolCount()

	a.Assign(b)
	if !a.Equal(b) {
		t.Error("Assign should rebind")
	}
	if got, _ := a.Text(); got != "b" {
		t.Errorf("Text() = %q after Assign", got)
	}
	if r.SymbolCount() != count {
		t.Error("Assign must not intern new text")
	}

	if err := a.Set("c"); err != nil {
		t.Fatal(err)
	}
	if got, _ := a.Text(); got != "c" {
		t.Errorf("Text() = %q after Set", got)
	}
	if got, _ := b.Text(); got != "b" {
		t.Error("Set must not affect other refs")
	}
	if err := a.Set("\xff"); err == nil {
		t.Error("Set with invalid text should fail")
	}
	if got, _ := a.Text(); got != "c" {
		t.Error("failed Set must leave the ref unchanged")
	}
}

func TestClone(t *testing.T) {
	r := newRuntime(t)
	a, _ := Intern(r, "x")
	c := a.Clone()
	b, _ := Intern(r, "y")
	a.Assign(b)

	if got, _ := c.Text(); got != "x" {
		t.Errorf("clone followed the original: %q", got)
	}
}

func TestFormat(t *testing.T) {
	r := newRuntime(t)
	ref, _ := Intern(r, "hi")

	if got := fmt.Sprintf("%v", ref); got != "hi" {
		t.Errorf("%%v = %q", got)
	}
	if got := fmt.Sprintf("%q", ref); got != `"hi"` {
		t.Errorf("%%q = %q", got)
	}
	if ref.Atom() != host.Sym(ref.Symbol()) {
		t.Error("Atom() should carry the symbol")
	}
}

func TestAssign_Concurrent(t *testing.T) {
	r := newRuntime(t)
	a, _ := Intern(r, "a")
	b, _ := Intern(r, "b")
	target, _ := Intern(r, "a")

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				if i%2 == 0 {
					target.Assign(a)
				} else {
					target.Assign(b)
				}
				txt, err := target.Text()
				if err != nil || (txt != "a" && txt != "b") {
					t.Errorf("read %q, %v", txt, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
