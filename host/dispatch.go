package host

import (
	"github.com/wippyai/extern-runtime/errors"
)

// Conventional selectors.
const (
	SelectorBang  = "bang"
	SelectorInt   = "int"
	SelectorFloat = "float"
)

// Send delivers the message selector with args to rec. Arguments are
// coerced to the method's declared types before the trampoline runs.
// Unknown selectors, argument mismatches and trampoline errors are posted to
// the console and returned.
func (r *Runtime) Send(rec Record, selector string, args ...Atom) error {
	e, st, ok := r.enter(rec)
	if !ok {
		err := errors.New(errors.PhaseDispatch, errors.KindNotFound).
			Selector(selector).
			Record(uint32(rec)).
			Detail("no such record").
			Build()
		r.report(0, err)
		return err
	}
	defer e.gate.RUnlock()

	if st != stateLive {
		err := errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
			Class(e.class.desc.Name).
			Selector(selector).
			Record(uint32(rec)).
			Detail("record is %s", st).
			Build()
		r.report(rec, err)
		return err
	}

	m, ok := e.class.methods[selector]
	if !ok {
		r.PostError(rec, "%s: doesn't understand %q", e.class.desc.Name, selector)
		return errors.New(errors.PhaseDispatch, errors.KindNotFound).
			Class(e.class.desc.Name).
			Selector(selector).
			Record(uint32(rec)).
			Detail("method not found").
			Build()
	}

	coerced, err := r.coerce(e.class.desc.Name, m, args)
	if err != nil {
		if xe, ok := err.(*errors.Error); ok {
			xe.Record = uint32(rec)
		}
		r.report(rec, err)
		return err
	}

	if err := r.invoke(e.class, rec, m, coerced); err != nil {
		r.report(rec, err)
		return err
	}
	return nil
}

// SendBang delivers a bang message.
func (r *Runtime) SendBang(rec Record) error {
	return r.Send(rec, SelectorBang)
}

// SendInt delivers an int message.
func (r *Runtime) SendInt(rec Record, v int64) error {
	return r.Send(rec, SelectorInt, Long(v))
}

// SendFloat delivers a float message.
func (r *Runtime) SendFloat(rec Record, v float64) error {
	return r.Send(rec, SelectorFloat, Float(v))
}

// invoke runs the trampoline. A panic escaping it is contained here so host
// code never unwinds.
func (r *Runtime) invoke(ce *classEntry, rec Record, m Method, args []Atom) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.CallbackPanic(ce.desc.Name, m.Selector, uint32(rec), p)
		}
	}()
	return m.Fn(rec, args)
}

func (r *Runtime) coerce(class string, m Method, args []Atom) ([]Atom, error) {
	out := make([]Atom, 0, max(len(m.Args), len(args)))

	for i, want := range m.Args {
		if want == ArgRest {
			if i < len(args) {
				out = append(out, args[i:]...)
			}
			return out, nil
		}

		if i >= len(args) {
			out = append(out, r.defaultAtom(want))
			continue
		}

		a := args[i]
		switch {
		case want == ArgLong && a.Type == AtomLong,
			want == ArgFloat && a.Type == AtomFloat,
			want == ArgSymbol && a.Type == AtomSymbol:
			out = append(out, a)
		case want == ArgLong && a.Type == AtomFloat:
			out = append(out, Long(int64(a.Float)))
		case want == ArgFloat && a.Type == AtomLong:
			out = append(out, Float(float64(a.Long)))
		default:
			return nil, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
				Class(class).
				Selector(m.Selector).
				Value(a).
				Detail("argument %d: expected %s, got %s", i, want, a.Type).
				Build()
		}
	}

	if len(args) > len(m.Args) {
		return nil, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			Class(class).
			Selector(m.Selector).
			Detail("too many arguments: expected %d, got %d", len(m.Args), len(args)).
			Build()
	}
	return out, nil
}

func (r *Runtime) defaultAtom(t ArgType) Atom {
	switch t {
	case ArgFloat:
		return Float(0)
	case ArgSymbol:
		return Sym(r.symbols.empty())
	default:
		return Long(0)
	}
}
