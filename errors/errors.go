package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad      Phase = "load"      // class registration
	PhaseConstruct Phase = "construct" // instance creation
	PhaseDispatch  Phase = "dispatch"  // message delivery
	PhaseClock     Phase = "clock"     // deferred execution
	PhaseSymbol    Phase = "symbol"    // symbol table access
	PhaseHeap      Phase = "heap"      // host memory
	PhaseHost      Phase = "host"      // host runtime lifecycle
)

// Kind categorizes the error
type Kind string

const (
	KindConstruction     Kind = "construction_failure"
	KindEncoding         Kind = "encoding"
	KindCallbackPanic    Kind = "callback_panic"
	KindCancellationRace Kind = "cancellation_race"
	KindNotFound         Kind = "not_found"
	KindRegistration     Kind = "registration"
	KindInvalidInput     Kind = "invalid_input"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindAllocation       Kind = "allocation"
	KindTypeMismatch     Kind = "type_mismatch"
	KindClosed           Kind = "closed"
)

// Sentinels for errors.Is. Only Phase and Kind take part in matching.
var (
	ErrConstruction     = &Error{Phase: PhaseConstruct, Kind: KindConstruction}
	ErrEncoding         = &Error{Phase: PhaseSymbol, Kind: KindEncoding}
	ErrCallbackPanic    = &Error{Phase: PhaseDispatch, Kind: KindCallbackPanic}
	ErrCancellationRace = &Error{Phase: PhaseClock, Kind: KindCancellationRace}
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Class    string
	Selector string
	Detail   string
	Record   uint32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Class != "" {
		b.WriteString(" in ")
		b.WriteString(e.Class)
		if e.Selector != "" {
			b.WriteByte('.')
			b.WriteString(e.Selector)
		}
	} else if e.Selector != "" {
		b.WriteString(" in ")
		b.WriteString(e.Selector)
	}

	if e.Record != 0 {
		fmt.Fprintf(&b, " (record 0x%x)", e.Record)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Class sets the class name
func (b *Builder) Class(name string) *Builder {
	b.err.Class = name
	return b
}

// Selector sets the message selector
func (b *Builder) Selector(sel string) *Builder {
	b.err.Selector = sel
	return b
}

// Record sets the record address
func (b *Builder) Record(rec uint32) *Builder {
	b.err.Record = rec
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Construction creates a construction failure for a new record
func Construction(class string, rec uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseConstruct,
		Kind:   KindConstruction,
		Class:  class,
		Record: rec,
		Detail: "object could not be constructed",
		Cause:  cause,
	}
}

// Encoding creates an encoding error for symbol text
func Encoding(detail string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  PhaseSymbol,
		Kind:   KindEncoding,
		Detail: fmt.Sprintf("%s: %x", detail, preview),
	}
}

// CallbackPanic converts a recovered panic value into an error
func CallbackPanic(class, selector string, rec uint32, recovered any) *Error {
	e := &Error{
		Phase:    PhaseDispatch,
		Kind:     KindCallbackPanic,
		Class:    class,
		Selector: selector,
		Record:   rec,
		Value:    recovered,
		Detail:   fmt.Sprintf("method panicked: %v", recovered),
	}
	if err, ok := recovered.(error); ok {
		e.Cause = err
	}
	return e
}

// CancellationRace creates an error for a clock firing after its owner began destruction
func CancellationRace(rec uint32, detail string) *Error {
	return &Error{
		Phase:  PhaseClock,
		Kind:   KindCancellationRace,
		Record: rec,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(class, detail string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindRegistration,
		Class:  class,
		Detail: detail,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("offset %d out of bounds (length %d)", offset, length),
		Value:  offset,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(size, align uint32) *Error {
	return &Error{
		Phase:  PhaseHeap,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// Closed creates an error for an operation on a closed component
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s closed", component),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
