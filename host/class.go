package host

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/extern-runtime/errors"
)

// ClassID identifies a registered class. 0 is never assigned.
type ClassID uint32

// Trampoline is the callback ABI: the host calls it with the raw record and
// the coerced message arguments.
type Trampoline func(rec Record, args []Atom) error

// Method binds a message selector to a trampoline.
type Method struct {
	Fn       Trampoline
	Selector string
	Args     []ArgType
}

// Signature returns the WIT types of the method arguments.
func (m Method) Signature() []wit.Type {
	out := make([]wit.Type, len(m.Args))
	for i, a := range m.Args {
		out[i] = a.WIT()
	}
	return out
}

// ClassDescriptor is the registration record for one class: its name,
// record layout and callback table.
type ClassDescriptor struct {
	// New constructs the object for a freshly allocated, zeroed record.
	New func(rec Record, args []Atom) error

	// Free tears the object down before the record memory is released.
	Free func(rec Record)

	Name string

	Methods []Method

	// RecordSize is the full record size including the host header.
	RecordSize uint32
}

// Method returns the method bound to selector.
func (d ClassDescriptor) Method(selector string) (Method, bool) {
	for _, m := range d.Methods {
		if m.Selector == selector {
			return m, true
		}
	}
	return Method{}, false
}

// Signature returns the WIT argument types of selector.
func (d ClassDescriptor) Signature(selector string) ([]wit.Type, bool) {
	m, ok := d.Method(selector)
	if !ok {
		return nil, false
	}
	return m.Signature(), true
}

type classEntry struct {
	methods map[string]Method
	desc    ClassDescriptor
	id      ClassID
}

func validateDescriptor(desc ClassDescriptor) error {
	if desc.Name == "" {
		return errors.Registration("", "class name cannot be empty")
	}
	if desc.RecordSize < HeaderSize {
		return errors.Registration(desc.Name, "record size smaller than host header")
	}
	seen := make(map[string]bool, len(desc.Methods))
	for _, m := range desc.Methods {
		if m.Selector == "" {
			return errors.Registration(desc.Name, "method selector cannot be empty")
		}
		if m.Fn == nil {
			return errors.Registration(desc.Name, "method "+m.Selector+" has no trampoline")
		}
		if seen[m.Selector] {
			return errors.Registration(desc.Name, "duplicate method "+m.Selector)
		}
		seen[m.Selector] = true
		for i, a := range m.Args {
			if a < ArgLong || a > ArgRest {
				return errors.Registration(desc.Name, "method "+m.Selector+" has invalid argument type")
			}
			if a == ArgRest && i != len(m.Args)-1 {
				return errors.Registration(desc.Name, "method "+m.Selector+": rest argument must be last")
			}
		}
	}
	return nil
}

// RegisterClass registers desc once at load time. The descriptor is copied;
// later changes to the caller's value have no effect.
func (r *Runtime) RegisterClass(desc ClassDescriptor) (ClassID, error) {
	if r.closed.Load() {
		return 0, errors.Closed(errors.PhaseLoad, "runtime")
	}
	if err := validateDescriptor(desc); err != nil {
		return 0, err
	}

	r.classMu.Lock()
	defer r.classMu.Unlock()

	if _, exists := r.classByName[desc.Name]; exists {
		return 0, errors.Registration(desc.Name, "class already registered")
	}

	methods := make([]Method, len(desc.Methods))
	copy(methods, desc.Methods)
	desc.Methods = methods

	ce := &classEntry{
		id:      ClassID(len(r.classes) + 1),
		desc:    desc,
		methods: make(map[string]Method, len(methods)),
	}
	for _, m := range methods {
		m.Args = append([]ArgType(nil), m.Args...)
		ce.methods[m.Selector] = m
	}

	r.classes = append(r.classes, ce)
	r.classByName[desc.Name] = ce.id
	r.log.Debug("class registered", classFields(ce)...)
	return ce.id, nil
}

// Class returns the descriptor registered under name.
func (r *Runtime) Class(name string) (ClassDescriptor, ClassID, bool) {
	r.classMu.RLock()
	defer r.classMu.RUnlock()

	id, ok := r.classByName[name]
	if !ok {
		return ClassDescriptor{}, 0, false
	}
	return r.classes[id-1].desc, id, true
}

// Classes returns the names of all registered classes in registration order.
func (r *Runtime) Classes() []string {
	r.classMu.RLock()
	defer r.classMu.RUnlock()

	out := make([]string, len(r.classes))
	for i, ce := range r.classes {
		out[i] = ce.desc.Name
	}
	return out
}

func (r *Runtime) classByID(id ClassID) (*classEntry, bool) {
	r.classMu.RLock()
	defer r.classMu.RUnlock()

	if id == 0 || int(id) > len(r.classes) {
		return nil, false
	}
	return r.classes[id-1], true
}

func (r *Runtime) classByNameEntry(name string) (*classEntry, bool) {
	r.classMu.RLock()
	defer r.classMu.RUnlock()

	id, ok := r.classByName[name]
	if !ok {
		return nil, false
	}
	return r.classes[id-1], true
}
