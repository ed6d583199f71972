package class

import (
	"github.com/wippyai/extern-runtime/errors"
	"github.com/wippyai/extern-runtime/host"
)

// Slot layout in the class region of a record. The first word holds the
// object table handle; the second is reserved.
const (
	SlotOffset = host.HeaderSize
	SlotSize   = uint32(8)
)

// Lookup recovers the user object embedded in rec.
type Lookup[T any] func(rec host.Record) (*T, error)

// Class collects the method table of one user type during registration.
// It is not safe for concurrent use and is discarded once the descriptor
// has been built.
type Class[T any] struct {
	lookup  Lookup[T]
	name    string
	methods []host.Method
}

// New starts a method table for the class name. lookup is called by every
// trampoline to find the target object.
func New[T any](name string, lookup Lookup[T]) *Class[T] {
	return &Class[T]{name: name, lookup: lookup}
}

// Name returns the class name.
func (c *Class[T]) Name() string {
	return c.name
}

// Selectors returns the bound selectors in the order they were added.
func (c *Class[T]) Selectors() []string {
	out := make([]string, len(c.methods))
	for i, m := range c.methods {
		out[i] = m.Selector
	}
	return out
}

// AddMethodInt binds selector to a method taking one integer.
func (c *Class[T]) AddMethodInt(selector string, fn func(*T, int64)) {
	c.bind(selector, []host.ArgType{host.ArgLong}, func(obj *T, args []host.Atom) {
		fn(obj, args[0].Long)
	})
}

// AddMethodFloat binds selector to a method taking one float.
func (c *Class[T]) AddMethodFloat(selector string, fn func(*T, float64)) {
	c.bind(selector, []host.ArgType{host.ArgFloat}, func(obj *T, args []host.Atom) {
		fn(obj, args[0].Float)
	})
}

// AddMethod binds selector to a method without arguments.
func (c *Class[T]) AddMethod(selector string, fn func(*T)) {
	c.bind(selector, nil, func(obj *T, _ []host.Atom) {
		fn(obj)
	})
}

// AddMethodBang binds the bang message.
func (c *Class[T]) AddMethodBang(fn func(*T)) {
	c.AddMethod(host.SelectorBang, fn)
}

// AddMethodSymbol binds selector to a method taking one symbol.
func (c *Class[T]) AddMethodSymbol(selector string, fn func(*T, host.Symbol)) {
	c.bind(selector, []host.ArgType{host.ArgSymbol}, func(obj *T, args []host.Atom) {
		fn(obj, args[0].Sym)
	})
}

// AddMethodList binds selector to a method receiving every argument as-is.
func (c *Class[T]) AddMethodList(selector string, fn func(*T, []host.Atom)) {
	c.bind(selector, []host.ArgType{host.ArgRest}, fn)
}

// AddMethodTrampoline binds a hand-written trampoline. It is called with the
// raw record and must find its own object. Panics are still contained.
func (c *Class[T]) AddMethodTrampoline(selector string, args []host.ArgType, fn host.Trampoline) {
	c.methods = append(c.methods, host.Method{
		Selector: selector,
		Args:     args,
		Fn:       guard(c.name, selector, fn),
	})
}

// bind creates the single trampoline shared by all instances for selector.
func (c *Class[T]) bind(selector string, args []host.ArgType, call func(*T, []host.Atom)) {
	lookup := c.lookup
	tramp := func(rec host.Record, atoms []host.Atom) error {
		obj, err := lookup(rec)
		if err != nil {
			return err
		}
		call(obj, atoms)
		return nil
	}
	c.methods = append(c.methods, host.Method{
		Selector: selector,
		Args:     args,
		Fn:       guard(c.name, selector, tramp),
	})
}

// guard converts a panic escaping fn into an error at the trampoline edge.
func guard(class, selector string, fn host.Trampoline) host.Trampoline {
	return func(rec host.Record, args []host.Atom) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = errors.CallbackPanic(class, selector, uint32(rec), p)
			}
		}()
		return fn(rec, args)
	}
}

// Descriptor builds the host registration record. The record reserves
// SlotSize bytes after the host header for the object handle.
func (c *Class[T]) Descriptor(newHook func(host.Record, []host.Atom) error, freeHook func(host.Record)) host.ClassDescriptor {
	methods := make([]host.Method, len(c.methods))
	copy(methods, c.methods)
	return host.ClassDescriptor{
		Name:       c.name,
		RecordSize: host.HeaderSize + SlotSize,
		New:        newHook,
		Free:       freeHook,
		Methods:    methods,
	}
}
