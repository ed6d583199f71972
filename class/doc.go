// Package class builds host method tables for a Go type.
//
// Each Add* call creates one trampoline at registration time. The
// trampoline is shared by every instance: it recovers the target object
// from the raw record through the Lookup function, unpacks the coerced
// arguments and calls the typed method. A panic in the method is recovered
// at the trampoline and returned to the host as a callback panic error.
//
//	c := class.New[Counter]("counter", lookup)
//	c.AddMethodInt("int", (*Counter).Set)
//	c.AddMethodBang((*Counter).Bang)
//	desc := c.Descriptor(newHook, freeHook)
package class
