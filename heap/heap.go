package heap

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	externruntime "github.com/wippyai/extern-runtime"
	"github.com/wippyai/extern-runtime/errors"
)

// PageSize is the size of one memory page in bytes.
const PageSize = 65536

// minAlign is the smallest alignment and size granule handed out.
const minAlign = 8

var (
	_ externruntime.Memory      = (*Heap)(nil)
	_ externruntime.Allocator   = (*Heap)(nil)
	_ externruntime.MemorySizer = (*Heap)(nil)
)

// Heap is host linear memory with an allocator on top.
type Heap struct {
	runtime wazero.Runtime
	module  api.Module
	mem     *Wrapper

	free   []block
	inUse  uint32
	mu     sync.Mutex
	closed bool

	// access guards the memory buffer: accessors hold it shared, Grow
	// replaces the buffer under the exclusive lock. Lock order is mu, access.
	access sync.RWMutex
}

type block struct {
	off  uint32
	size uint32
}

// New instantiates a heap of pages initial pages that may grow to maxPages.
func New(ctx context.Context, pages, maxPages uint32) (*Heap, error) {
	if pages == 0 {
		pages = 1
	}
	if maxPages < pages {
		maxPages = pages
	}
	if maxPages > 65536 {
		return nil, errors.InvalidInput(errors.PhaseHeap, "max pages exceeds 65536")
	}

	cfg := wazero.NewRuntimeConfig().WithMemoryLimitPages(maxPages)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)

	mod, err := rt.InstantiateWithConfig(ctx, encodeMemoryModule(pages, maxPages),
		wazero.NewModuleConfig().WithName("host-heap"))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseHeap, errors.KindAllocation, err, "instantiate heap memory")
	}

	mem := mod.ExportedMemory(memoryName)
	if mem == nil {
		_ = rt.Close(ctx)
		return nil, errors.NotFound(errors.PhaseHeap, "memory export", memoryName)
	}

	h := &Heap{
		runtime: rt,
		module:  mod,
		mem:     &Wrapper{Mem: mem},
	}
	// [0, minAlign) stays reserved so no allocation is ever at address 0
	h.free = []block{{off: minAlign, size: mem.Size() - minAlign}}
	return h, nil
}

// Alloc returns zeroed memory of at least size bytes aligned to align.
func (h *Heap) Alloc(size, align uint32) (uint32, error) {
	size = roundUp(max(size, 1), minAlign)
	align = max(align, minAlign)
	if align&(align-1) != 0 {
		return 0, errors.InvalidInput(errors.PhaseHeap, "alignment must be a power of two")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, errors.Closed(errors.PhaseHeap, "heap")
	}

	ptr, ok := h.carve(size, align)
	if !ok {
		if err := h.grow(size + align); err != nil {
			return 0, err
		}
		ptr, ok = h.carve(size, align)
		if !ok {
			return 0, errors.AllocationFailed(size, align)
		}
	}

	if err := h.Write(ptr, make([]byte, size)); err != nil {
		return 0, err
	}
	h.inUse += size
	return ptr, nil
}

// Free returns a block obtained from Alloc. Size and align must match the
// allocation.
func (h *Heap) Free(ptr, size, align uint32) {
	if ptr == 0 {
		return
	}
	size = roundUp(max(size, 1), minAlign)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.insert(block{off: ptr, size: size})
	h.inUse -= size
}

// InUse returns the number of bytes currently allocated.
func (h *Heap) InUse() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inUse
}

// Size returns the current memory size in bytes.
func (h *Heap) Size() uint32 {
	h.access.RLock()
	defer h.access.RUnlock()
	return h.mem.Mem.Size()
}

// Close releases the underlying wazero runtime.
func (h *Heap) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.free = nil
	h.mu.Unlock()

	h.access.Lock()
	defer h.access.Unlock()
	return h.runtime.Close(ctx)
}

func (h *Heap) carve(size, align uint32) (uint32, bool) {
	for i, b := range h.free {
		start := roundUp(b.off, align)
		end := b.off + b.size
		if start+size > end || start < b.off {
			continue
		}

		var rest []block
		if start > b.off {
			rest = append(rest, block{off: b.off, size: start - b.off})
		}
		if start+size < end {
			rest = append(rest, block{off: start + size, size: end - start - size})
		}
		h.free = append(h.free[:i], append(rest, h.free[i+1:]...)...)
		return start, true
	}
	return 0, false
}

func (h *Heap) grow(need uint32) error {
	pages := (need + PageSize - 1) / PageSize
	h.access.Lock()
	prev, ok := h.mem.Mem.Grow(pages)
	h.access.Unlock()
	if !ok {
		return errors.New(errors.PhaseHeap, errors.KindAllocation).
			Detail("cannot grow memory by %d pages", pages).
			Build()
	}
	h.insert(block{off: prev * PageSize, size: pages * PageSize})
	return nil
}

// insert adds b to the address-ordered free list, merging neighbours.
func (h *Heap) insert(b block) {
	i := 0
	for i < len(h.free) && h.free[i].off < b.off {
		i++
	}
	h.free = append(h.free, block{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = b

	if i+1 < len(h.free) && h.free[i].off+h.free[i].size == h.free[i+1].off {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	if i > 0 && h.free[i-1].off+h.free[i-1].size == h.free[i].off {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
}

func roundUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

// Memory access is delegated to the wrapped wazero memory with the buffer
// held shared, so a concurrent Grow never swaps it out mid-access.

// Read returns a copy of length bytes at offset.
func (h *Heap) Read(offset, length uint32) ([]byte, error) {
	h.access.RLock()
	defer h.access.RUnlock()
	return h.mem.Read(offset, length)
}

// Write writes data at offset.
func (h *Heap) Write(offset uint32, data []byte) error {
	h.access.RLock()
	defer h.access.RUnlock()
	return h.mem.Write(offset, data)
}

// ReadU8 reads an unsigned 8-bit value.
func (h *Heap) ReadU8(offset uint32) (uint8, error) {
	h.access.RLock()
	defer h.access.RUnlock()
	return h.mem.ReadU8(offset)
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (h *Heap) ReadU32(offset uint32) (uint32, error) {
	h.access.RLock()
	defer h.access.RUnlock()
	return h.mem.ReadU32(offset)
}

// ReadU64 reads an unsigned 64-bit little-endian value.
func (h *Heap) ReadU64(offset uint32) (uint64, error) {
	h.access.RLock()
	defer h.access.RUnlock()
	return h.mem.ReadU64(offset)
}

// WriteU8 writes an unsigned 8-bit value.
func (h *Heap) WriteU8(offset uint32, v uint8) error {
	h.access.RLock()
	defer h.access.RUnlock()
	return h.mem.WriteU8(offset, v)
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (h *Heap) WriteU32(offset uint32, v uint32) error {
	h.access.RLock()
	defer h.access.RUnlock()
	return h.mem.WriteU32(offset, v)
}

// WriteU64 writes an unsigned 64-bit little-endian value.
func (h *Heap) WriteU64(offset uint32, v uint64) error {
	h.access.RLock()
	defer h.access.RUnlock()
	return h.mem.WriteU64(offset, v)
}

// ReadCString returns a copy of the NUL-terminated bytes starting at offset.
func (h *Heap) ReadCString(offset uint32) ([]byte, error) {
	h.access.RLock()
	defer h.access.RUnlock()

	size := h.mem.Mem.Size()
	if offset >= size {
		return nil, errors.OutOfBounds(errors.PhaseHeap, offset, size)
	}
	view, ok := h.mem.Mem.Read(offset, size-offset)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseHeap, offset, size)
	}
	for i, c := range view {
		if c == 0 {
			out := make([]byte, i)
			copy(out, view[:i])
			return out, nil
		}
	}
	return nil, errors.New(errors.PhaseHeap, errors.KindOutOfBounds).
		Detail("unterminated string at offset %d", offset).
		Build()
}
