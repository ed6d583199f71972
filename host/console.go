package host

import (
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/extern-runtime/errors"
)

// Post writes an informational line to the host console.
func (r *Runtime) Post(format string, args ...any) {
	r.log.Info(fmt.Sprintf(format, args...), zap.String("source", "post"))
}

// PostFrom writes an informational line attributed to rec.
func (r *Runtime) PostFrom(rec Record, format string, args ...any) {
	fields := append(r.fieldsFor(rec), zap.String("source", "post"))
	r.log.Info(fmt.Sprintf(format, args...), fields...)
}

// PostError writes an error line attributed to rec.
func (r *Runtime) PostError(rec Record, format string, args ...any) {
	r.log.Error(fmt.Sprintf(format, args...), r.fieldsFor(rec)...)
}

// Report posts err as a diagnostic attributed to rec. Adapters use it for
// failures detected outside a host call, such as a late clock firing.
func (r *Runtime) Report(rec Record, err error) {
	r.report(rec, err)
}

// report posts err as a host-visible diagnostic. Cancellation races are
// invariant violations and are flagged as fatal.
func (r *Runtime) report(rec Record, err error) {
	fields := r.fieldsFor(rec)

	var xe *errors.Error
	if stderrors.As(err, &xe) {
		fields = append(fields,
			zap.String("phase", string(xe.Phase)),
			zap.String("kind", string(xe.Kind)))
		if xe.Selector != "" {
			fields = append(fields, zap.String("selector", xe.Selector))
		}
	}
	if stderrors.Is(err, errors.ErrCancellationRace) {
		fields = append(fields, zap.Bool("fatal", true))
	}
	fields = append(fields, zap.Error(err))

	r.log.Error("host diagnostic", fields...)
}

func (r *Runtime) fieldsFor(rec Record) []zap.Field {
	if rec == 0 {
		return nil
	}
	if e, ok := r.entry(rec); ok {
		return recordFields(e.class, rec)
	}
	return []zap.Field{zap.Stringer("record", rec)}
}

func recordFields(ce *classEntry, rec Record) []zap.Field {
	return []zap.Field{
		zap.String("class", ce.desc.Name),
		zap.Stringer("record", rec),
	}
}

func classFields(ce *classEntry) []zap.Field {
	return []zap.Field{
		zap.String("class", ce.desc.Name),
		zap.Uint32("class_id", uint32(ce.id)),
		zap.Uint32("record_size", ce.desc.RecordSize),
		zap.Int("methods", len(ce.methods)),
	}
}
