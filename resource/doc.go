// Package resource keeps Go values that records refer to by handle.
//
// Go values cannot live in host memory, so an embedded object, a clock
// callback or anything else a record points at on the Go side is stored
// in a Table and referenced by a 32-bit Handle that fits in a record word.
//
//	t := resource.New()
//	h, err := t.Insert(kind, obj)
//	v, err := t.Resolve(h, kind)
//	t.Remove(h)
//
// Handles carry the generation of their slot. Once a value is removed,
// its old handle reports ErrStale even after the slot has been reused,
// and a handle read from the wrong kind of record reports ErrKind.
//
// View narrows a table to one kind and one Go type:
//
//	clocks := resource.NewView[*clock](t, clockKind)
//
// Observers registered with Watch see every insert and removal.
package resource
