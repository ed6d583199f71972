// Package wrapper embeds a typed Go object in a host record.
//
// The host decides when objects are born and when they die; the wrapper
// translates those instants into calls on the user type:
//
//	type Counter struct{ n atomic.Int64 }
//
//	func (c *Counter) ClassName() string { return "counter" }
//
//	func (c *Counter) ClassSetup(cl *class.Class[Counter]) {
//	    cl.AddMethodInt("int", func(c *Counter, v int64) { c.n.Store(v) })
//	}
//
//	func (c *Counter) Init(o *wrapper.Object[Counter], args []host.Atom) error {
//	    return nil
//	}
//
//	id, err := wrapper.Register[Counter](rt)
//
// Init runs exactly once per record and the object becomes reachable only
// after it succeeds. Teardown closes the object's clocks, calls Destroy if
// the type has one, and releases the slot, exactly once per record.
//
// The wrapper adds no locking. Messages for one record may arrive on
// several goroutines at once, so user types keep their own state safe,
// typically with atomics.
package wrapper
