package clock

import (
	"sync"
	"sync/atomic"

	"github.com/wippyai/extern-runtime/errors"
	"github.com/wippyai/extern-runtime/host"
)

// Timer is the host clock ABI.
type Timer interface {
	ClockNew(owner host.Record, fn func()) (host.ClockID, error)
	ClockDelay(id host.ClockID, ms float64) error
	ClockUnset(id host.ClockID) error
	ClockFree(id host.ClockID) error
	ClockArmed(id host.ClockID) bool
	Report(rec host.Record, err error)
}

// Handle owns one host clock that re-enters fn when it elapses.
type Handle struct {
	t      Timer
	fn     func()
	owner  host.Record
	id     host.ClockID
	closed atomic.Bool
	mu     sync.Mutex
}

// New creates a disarmed clock owned by owner.
func New(t Timer, owner host.Record, fn func()) (*Handle, error) {
	if fn == nil {
		return nil, errors.InvalidInput(errors.PhaseClock, "clock callback cannot be nil")
	}
	h := &Handle{t: t, owner: owner, fn: fn}
	id, err := t.ClockNew(owner, h.tick)
	if err != nil {
		return nil, err
	}
	h.id = id
	return h, nil
}

func (h *Handle) tick() {
	if h.closed.Load() {
		h.t.Report(h.owner, errors.CancellationRace(uint32(h.owner), "clock fired after close"))
		return
	}
	h.fn()
}

// ID returns the host clock id.
func (h *Handle) ID() host.ClockID {
	return h.id
}

// Delay schedules one firing ms milliseconds from now. If a firing is
// already pending it is moved, not added to.
func (h *Handle) Delay(ms float64) error {
	if h.closed.Load() {
		return errors.Closed(errors.PhaseClock, "clock")
	}
	return h.t.ClockDelay(h.id, ms)
}

// Unset cancels the pending firing, if any. The clock can be delayed again.
func (h *Handle) Unset() error {
	if h.closed.Load() {
		return nil
	}
	return h.t.ClockUnset(h.id)
}

// Armed reports whether a firing is pending.
func (h *Handle) Armed() bool {
	if h.closed.Load() {
		return false
	}
	return h.t.ClockArmed(h.id)
}

// Close cancels any pending firing and releases the host clock. A firing
// already running on another goroutine is waited for, so the callback never
// runs after Close returns. Close must not be called from the clock's own
// callback; use Unset there. Closing twice is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return nil
	}
	// closed is only set once the host has released the clock, so a firing
	// that still observes it was delivered after release
	err := h.t.ClockFree(h.id)
	h.closed.Store(true)
	return err
}
