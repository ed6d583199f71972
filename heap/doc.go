// Package heap provides the host's linear memory.
//
// Records and symbol text are stored in a single wazero memory instance,
// instantiated from a minimal module that exports nothing but its memory.
// The Heap pairs that memory with a first-fit allocator:
//
//	h, err := heap.New(ctx, 1, 256)
//	if err != nil {
//	    return err
//	}
//	defer h.Close(ctx)
//
//	ptr, err := h.Alloc(24, 8)
//	h.WriteU32(ptr, 0x6f626a21)
//	h.Free(ptr, 24, 8)
//
// Address 0 is never handed out so it can serve as a null record. Memory
// grows by whole 64KiB pages on demand and never shrinks.
package heap
