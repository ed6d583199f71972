// Package externruntime lets Go object types run inside a host runtime that
// exclusively owns record allocation, object lifetime and message dispatch.
//
// The host allocates a fixed-size opaque record per instance and invokes
// callbacks on it. User logic lives alongside that record without the host
// knowing anything about user-level types.
//
// # Architecture Overview
//
//	externruntime/       Root package with core Memory and Allocator interfaces
//	├── host/            Host runtime: records, classes, dispatch, clocks, symbols
//	├── heap/            Host linear memory (wazero) and record allocator
//	├── resource/        Handle table for the Go side of embedded objects
//	├── class/           Class registration: typed methods to host trampolines
//	├── wrapper/         Wrapper/Wrapped adapter embedding a typed object in a record
//	├── clock/           Deferred, cancelable re-entry into an object method
//	├── symbol/          References into the host's deduplicated symbol table
//	├── errors/          Structured error types
//	└── cmd/extern-run/  Scripted and interactive host sessions
//
// # Quick Start
//
// Define an object type and register it once at load time:
//
//	type Counter struct {
//	    n atomic.Int64
//	}
//
//	func (c *Counter) Init(o *wrapper.Object[Counter], args []host.Atom) error { return nil }
//	func (c *Counter) ClassName() string                                       { return "counter" }
//	func (c *Counter) ClassSetup(cl *class.Class[Counter]) {
//	    cl.AddMethodInt("int", func(c *Counter, v int64) { c.n.Store(v) })
//	}
//
//	rt, _ := host.New(ctx, host.DefaultConfig())
//	defer rt.Close(ctx)
//
//	wrapper.Register[Counter](rt)
//	rec, _ := rt.NewInstance("counter")
//	rt.SendInt(rec, 42)
//
// # Thread Safety
//
// The host may deliver callbacks concurrently, for different records and for
// the same record. The only ordering it guarantees is around the lifecycle:
// no message or clock callback runs while a record is being constructed or
// torn down. The adapter hands out shared access to the embedded object and
// performs no locking; object types that mutate state must synchronize
// internally.
//
// # Memory Model
//
// Records and symbol text live in host linear memory. Symbol text is never
// freed: the symbol table lives for the life of the runtime.
package externruntime
