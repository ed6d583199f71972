package resource

// View gives typed access to the values of one kind in a table.
type View[T any] struct {
	table *Table
	kind  Kind
}

// NewView returns a view over t restricted to kind.
func NewView[T any](t *Table, kind Kind) *View[T] {
	return &View[T]{table: t, kind: kind}
}

// Insert stores value under the view's kind.
func (v *View[T]) Insert(value T) (Handle, error) {
	return v.table.Insert(v.kind, value)
}

// Get returns the value behind h if it belongs to this view.
func (v *View[T]) Get(h Handle) (T, bool) {
	var zero T
	val, err := v.table.Resolve(h, v.kind)
	if err != nil {
		return zero, false
	}
	typed, ok := val.(T)
	return typed, ok
}

// Remove releases h if it belongs to this view.
func (v *View[T]) Remove(h Handle) (T, bool) {
	var zero T
	if _, err := v.table.Resolve(h, v.kind); err != nil {
		return zero, false
	}
	val, ok := v.table.Remove(h)
	if !ok {
		return zero, false
	}
	typed, ok := val.(T)
	return typed, ok
}

// Each iterates the view's values.
func (v *View[T]) Each(fn func(Handle, T) bool) {
	v.table.Each(func(h Handle, kind Kind, val any) bool {
		if kind != v.kind {
			return true
		}
		typed, ok := val.(T)
		if !ok {
			return true
		}
		return fn(h, typed)
	})
}
