package host

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/wippyai/extern-runtime/errors"
	"github.com/wippyai/extern-runtime/heap"
)

// Symbol is the address of interned, NUL-terminated text in host memory.
// Equal symbols are the same address. 0 is never a valid symbol.
type Symbol uint32

func (s Symbol) String() string {
	return fmt.Sprintf("sym@0x%x", uint32(s))
}

// symbolTable interns text into host memory. Entries are never freed.
type symbolTable struct {
	heap   *heap.Heap
	byName map[string]Symbol
	byAddr map[Symbol]struct{}
	none   Symbol
	mu     sync.RWMutex
}

func newSymbolTable(h *heap.Heap) (*symbolTable, error) {
	st := &symbolTable{
		heap:   h,
		byName: make(map[string]Symbol),
		byAddr: make(map[Symbol]struct{}),
	}
	none, err := st.intern(nil)
	if err != nil {
		return nil, err
	}
	st.none = none
	return st, nil
}

func (st *symbolTable) empty() Symbol {
	return st.none
}

func (st *symbolTable) intern(name []byte) (Symbol, error) {
	if bytes.IndexByte(name, 0) >= 0 {
		return 0, errors.New(errors.PhaseSymbol, errors.KindInvalidInput).
			Detail("symbol text contains NUL byte").
			Build()
	}

	// Fast path: read-only lookup
	st.mu.RLock()
	if sym, ok := st.byName[string(name)]; ok {
		st.mu.RUnlock()
		return sym, nil
	}
	st.mu.RUnlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	// Double-check after acquiring write lock
	if sym, ok := st.byName[string(name)]; ok {
		return sym, nil
	}

	size := uint32(len(name)) + 1
	ptr, err := st.heap.Alloc(size, 1)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseSymbol, errors.KindAllocation, err, "intern symbol")
	}
	// memory is zeroed, so the terminator is already in place
	if err := st.heap.Write(ptr, name); err != nil {
		st.heap.Free(ptr, size, 1)
		return 0, err
	}

	sym := Symbol(ptr)
	st.byName[string(name)] = sym
	st.byAddr[sym] = struct{}{}
	return sym, nil
}

func (st *symbolTable) name(sym Symbol) ([]byte, error) {
	st.mu.RLock()
	_, ok := st.byAddr[sym]
	st.mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.PhaseSymbol, errors.KindNotFound).
			Value(uint32(sym)).
			Detail("unknown symbol 0x%x", uint32(sym)).
			Build()
	}
	return st.heap.ReadCString(uint32(sym))
}

func (st *symbolTable) len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byAddr)
}

// Gensym returns the unique symbol for name, interning it on first use.
// The bytes are stored verbatim; only an embedded NUL is rejected.
// Safe for concurrent use.
func (r *Runtime) Gensym(name []byte) (Symbol, error) {
	return r.symbols.intern(name)
}

// SymbolName returns a copy of the text of sym. The table entry is left
// untouched and stays valid for the life of the runtime.
func (r *Runtime) SymbolName(sym Symbol) ([]byte, error) {
	return r.symbols.name(sym)
}

// EmptySymbol returns the symbol for the empty string.
func (r *Runtime) EmptySymbol() Symbol {
	return r.symbols.empty()
}

// SymbolCount returns the number of interned symbols.
func (r *Runtime) SymbolCount() int {
	return r.symbols.len()
}
