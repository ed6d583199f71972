// Package errors provides structured error types for the extern runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the class, selector and record involved plus a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
//		Class("simp").
//		Selector("int").
//		Detail("argument 0: expected long, got symbol").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Construction("simp", rec, cause)
//	err := errors.Encoding("invalid UTF-8 sequence", data)
//
// Sentinels (ErrConstruction, ErrEncoding, ErrCallbackPanic,
// ErrCancellationRace) match any error of the same Phase and Kind:
//
//	if errors.Is(err, xerrors.ErrEncoding) { ... }
package errors
