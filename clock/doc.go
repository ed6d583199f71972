// Package clock provides deferred, cancelable re-entry into user code
// through the host scheduler.
//
// A Handle has at most one pending firing. Delay while armed replaces the
// pending firing rather than adding another, and Close guarantees the
// callback does not run afterwards. A firing observed after Close means the
// host broke that guarantee; it is dropped and reported as a cancellation
// race.
package clock
