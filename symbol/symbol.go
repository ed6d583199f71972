package symbol

import (
	"bytes"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/wippyai/extern-runtime/errors"
	"github.com/wippyai/extern-runtime/host"
)

// Table is the host symbol table ABI.
type Table interface {
	Gensym(name []byte) (host.Symbol, error)
	SymbolName(sym host.Symbol) ([]byte, error)
}

// Ref refers to a host symbol. The text itself lives in the host table and
// is never copied into the Ref; rebinding only swaps the reference.
// A Ref is safe for concurrent use.
type Ref struct {
	t   Table
	sym atomic.Uint32
}

// Intern returns a Ref to the host symbol for s. Text that is not valid
// UTF-8 or contains a NUL byte cannot be represented and is rejected with an
// encoding error; the table is left unchanged.
func Intern(t Table, s string) (*Ref, error) {
	if !utf8.ValidString(s) {
		return nil, errors.Encoding("symbol text is not valid UTF-8", []byte(s))
	}
	if strings.IndexByte(s, 0) >= 0 {
		return nil, errors.Encoding("symbol text contains NUL", []byte(s))
	}
	return gensym(t, []byte(s))
}

// FromBytes is Intern for raw bytes.
func FromBytes(t Table, b []byte) (*Ref, error) {
	if !utf8.Valid(b) {
		return nil, errors.Encoding("symbol text is not valid UTF-8", b)
	}
	if bytes.IndexByte(b, 0) >= 0 {
		return nil, errors.Encoding("symbol text contains NUL", b)
	}
	return gensym(t, b)
}

func gensym(t Table, b []byte) (*Ref, error) {
	sym, err := t.Gensym(b)
	if err != nil {
		return nil, err
	}
	return FromSymbol(t, sym), nil
}

// FromSymbol wraps a symbol the host already owns, for example one received
// as a message argument.
func FromSymbol(t Table, sym host.Symbol) *Ref {
	r := &Ref{t: t}
	r.sym.Store(uint32(sym))
	return r
}

// Symbol returns the host symbol currently referenced.
func (r *Ref) Symbol() host.Symbol {
	return host.Symbol(r.sym.Load())
}

// Atom returns the referenced symbol as a message argument.
func (r *Ref) Atom() host.Atom {
	return host.Sym(r.Symbol())
}

// Bytes returns a copy of the symbol text as stored by the host.
func (r *Ref) Bytes() ([]byte, error) {
	return r.t.SymbolName(r.Symbol())
}

// Text returns the symbol text. The host entry is read, never consumed.
// Bytes that are not valid UTF-8 yield an encoding error.
func (r *Ref) Text() (string, error) {
	b, err := r.Bytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.Encoding("host symbol is not valid UTF-8", b)
	}
	return string(b), nil
}

// String renders the text for display, replacing invalid bytes with U+FFFD.
func (r *Ref) String() string {
	b, err := r.Bytes()
	if err != nil {
		return r.Symbol().String()
	}
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

// Assign rebinds r to the symbol src refers to.
func (r *Ref) Assign(src *Ref) {
	r.sym.Store(uint32(src.Symbol()))
}

// Set rebinds r to the symbol for s, interning it if needed. On error r is
// unchanged.
func (r *Ref) Set(s string) error {
	n, err := Intern(r.t, s)
	if err != nil {
		return err
	}
	r.Assign(n)
	return nil
}

// Equal reports whether r and o refer to the same host symbol. Symbols are
// deduplicated, so this is also text equality.
func (r *Ref) Equal(o *Ref) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.Symbol() == o.Symbol()
}

// Clone returns an independent Ref to the same symbol.
func (r *Ref) Clone() *Ref {
	return FromSymbol(r.t, r.Symbol())
}

// Format implements fmt.Formatter so %q quotes the display text.
func (r *Ref) Format(f fmt.State, verb rune) {
	switch verb {
	case 'q':
		fmt.Fprintf(f, "%q", r.String())
	case 'x':
		fmt.Fprintf(f, "%#x", uint32(r.Symbol()))
	default:
		fmt.Fprint(f, r.String())
	}
}
