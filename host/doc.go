// Package host models the runtime that owns embedded objects.
//
// The host allocates a fixed-layout record per instance in its own linear
// memory, calls class hooks to construct and destroy the object living in
// the record, and delivers named messages to it. It also provides the
// services objects call back into: a logical-time clock scheduler, a
// deduplicated symbol table and a console.
//
// # Records
//
// A record starts with a 16-byte header owned by the host:
//
//	[0:4)   magic
//	[4:8)   class id
//	[8:12)  lifecycle state
//	[12:16) reserved
//
// The bytes after HeaderSize belong to the class. Records are zeroed on
// allocation.
//
// # Lifecycle
//
// NewInstance runs the class New hook exactly once; if it fails the record
// is released and a construction failure is reported. Free runs the Free
// hook exactly once, then checks that the object cancelled its clocks.
// Message and clock callbacks never run while a record is being
// constructed or torn down, but several callbacks may run on one record at
// the same time.
//
// # Time
//
// Host time is logical and measured in milliseconds. Advance moves it
// forward and fires due clocks on the calling goroutine; Run drives Advance
// from a wall clock ticker.
//
// # Diagnostics
//
// Console output and host diagnostics go to the runtime's zap logger.
// Cancellation races are logged with fatal=true.
package host
