package host

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/extern-runtime/errors"
	"github.com/wippyai/extern-runtime/resource"
)

// ClockID is a host clock handle. 0 is never a valid clock.
type ClockID uint32

// clockKind tags clock entries in the scheduler's handle table.
const clockKind resource.Kind = 1

type clockEntry struct {
	fn    func()
	when  float64
	seq   uint64
	index int
	owner Record
	id    ClockID
	armed bool

	// parked is set for a zero-delay arm made during Advance; the entry
	// waits outside the queue until the next pass.
	parked bool

	// firing is held across delivery so ClockFree can wait it out.
	firing sync.Mutex
}

// scheduler keeps logical host time in milliseconds and a queue of armed
// clocks ordered by firing time, then arming order.
type scheduler struct {
	rt      *Runtime
	table   *resource.Table
	clocks  *resource.View[*clockEntry]
	queue   clockQueue
	parked  []*clockEntry
	now     float64
	seq     uint64
	running bool
	mu      sync.Mutex
	advance sync.Mutex
}

func newScheduler(rt *Runtime) *scheduler {
	table := resource.New()
	return &scheduler{
		rt:     rt,
		table:  table,
		clocks: resource.NewView[*clockEntry](table, clockKind),
	}
}

func (s *scheduler) close() {
	s.mu.Lock()
	s.queue = nil
	s.parked = nil
	s.mu.Unlock()
	_ = s.table.Close()
}

func (s *scheduler) get(id ClockID) (*clockEntry, error) {
	c, ok := s.clocks.Get(resource.Handle(id))
	if !ok {
		return nil, errors.New(errors.PhaseClock, errors.KindNotFound).
			Value(uint32(id)).
			Detail("unknown clock %d", id).
			Build()
	}
	return c, nil
}

// ClockNew creates a clock owned by rec that runs fn when it elapses. The
// owner must be allocated; constructors may create clocks for their record.
func (r *Runtime) ClockNew(owner Record, fn func()) (ClockID, error) {
	if fn == nil {
		return 0, errors.InvalidInput(errors.PhaseClock, "clock callback cannot be nil")
	}
	if !r.Exists(owner) {
		return 0, errors.New(errors.PhaseClock, errors.KindNotFound).
			Record(uint32(owner)).
			Detail("clock owner is not a record").
			Build()
	}

	c := &clockEntry{owner: owner, fn: fn, index: -1}
	h, err := r.sched.clocks.Insert(c)
	if err != nil {
		return 0, errors.Closed(errors.PhaseClock, "scheduler")
	}
	c.id = ClockID(h)
	return c.id, nil
}

// ClockDelay arms id to fire ms milliseconds from now. Arming an armed
// clock moves its single pending firing instead of adding another. A clock
// armed for the current instant while Advance is running fires on the next
// pass, so a callback rearming itself with no delay cannot stall Advance.
func (r *Runtime) ClockDelay(id ClockID, ms float64) error {
	s := r.sched
	c, err := s.get(id)
	if err != nil {
		return err
	}
	if ms < 0 {
		ms = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	c.when = s.now + ms
	c.seq = s.seq

	if s.running && c.when <= s.now {
		if c.parked {
			return nil
		}
		if c.armed {
			heap.Remove(&s.queue, c.index)
		}
		c.armed, c.parked = true, true
		s.parked = append(s.parked, c)
		return nil
	}

	if c.parked {
		s.unpark(c)
	}
	if c.armed {
		heap.Fix(&s.queue, c.index)
		return nil
	}
	c.armed = true
	heap.Push(&s.queue, c)
	return nil
}

// ClockUnset cancels the pending firing of id, if any.
func (r *Runtime) ClockUnset(id ClockID) error {
	c, err := r.sched.get(id)
	if err != nil {
		return err
	}
	r.sched.unset(c)
	return nil
}

// ClockFree cancels and releases id. The handle is invalid afterwards. If
// the callback of id is running on another goroutine, ClockFree waits for it
// to return; it must not be called from that callback itself.
func (r *Runtime) ClockFree(id ClockID) error {
	c, err := r.sched.get(id)
	if err != nil {
		return err
	}
	c.firing.Lock()
	defer c.firing.Unlock()
	r.sched.unset(c)
	r.sched.clocks.Remove(resource.Handle(id))
	return nil
}

// ClockArmed reports whether id has a pending firing.
func (r *Runtime) ClockArmed(id ClockID) bool {
	c, err := r.sched.get(id)
	if err != nil {
		return false
	}
	r.sched.mu.Lock()
	defer r.sched.mu.Unlock()
	return c.armed
}

// Now returns logical host time in milliseconds.
func (r *Runtime) Now() float64 {
	r.sched.mu.Lock()
	defer r.sched.mu.Unlock()
	return r.sched.now
}

// Advance moves host time forward by ms, firing due clocks in order on the
// calling goroutine. Callbacks may rearm clocks; a rearmed clock that falls
// inside the window fires again within the same call, unless it was armed
// with no delay, in which case it fires on the next call.
func (r *Runtime) Advance(ms float64) {
	s := r.sched
	s.advance.Lock()
	defer s.advance.Unlock()

	s.mu.Lock()
	target := s.now + max(ms, 0)
	s.running = true
	s.mu.Unlock()
	defer s.endPass()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 || s.queue[0].when > target {
			s.now = target
			s.mu.Unlock()
			return
		}
		c := heap.Pop(&s.queue).(*clockEntry)
		c.armed = false
		if c.when > s.now {
			s.now = c.when
		}
		s.mu.Unlock()

		r.fire(c)
	}
}

// Run drives host time from the wall clock, advancing by tick every tick,
// until ctx is done.
func (r *Runtime) Run(ctx context.Context, tick time.Duration) error {
	if tick <= 0 {
		return errors.InvalidInput(errors.PhaseClock, "tick must be positive")
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	step := float64(tick) / float64(time.Millisecond)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Advance(step)
		}
	}
}

// fire delivers one clock firing with the owner's gate held for reading, so
// teardown cannot start while the callback runs. A firing dequeued just
// before its owner was freed is dropped. A firing for a dead owner whose
// clock is still registered is a cancellation race.
func (r *Runtime) fire(c *clockEntry) {
	owner, id := c.owner, c.id
	e, st, ok := r.enter(owner)
	if !ok || st != stateLive {
		if ok {
			e.gate.RUnlock()
		}
		if cur, registered := r.sched.clocks.Get(resource.Handle(id)); registered && cur == c {
			r.report(owner, errors.CancellationRace(uint32(owner), "clock fired while owner is "+st.String()))
			return
		}
		r.log.Debug("dropped firing for freed record",
			zap.Stringer("record", owner), zap.Uint32("clock", uint32(id)))
		return
	}
	defer e.gate.RUnlock()

	c.firing.Lock()
	defer c.firing.Unlock()
	if cur, registered := r.sched.clocks.Get(resource.Handle(id)); !registered || cur != c {
		r.log.Debug("dropped firing for released clock",
			zap.Stringer("record", owner), zap.Uint32("clock", uint32(id)))
		return
	}

	defer func() {
		if p := recover(); p != nil {
			err := errors.CallbackPanic(e.class.desc.Name, "clock", uint32(owner), p)
			r.report(owner, err)
		}
	}()
	r.log.Debug("clock fired", append(recordFields(e.class, owner), zap.Uint32("clock", uint32(id)))...)
	c.fn()
}

// endPass requeues the clocks parked during Advance.
func (s *scheduler) endPass() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	for _, c := range s.parked {
		c.parked = false
		heap.Push(&s.queue, c)
	}
	s.parked = nil
}

// unpark must be called with s.mu held. The clock is left disarmed.
func (s *scheduler) unpark(c *clockEntry) {
	for i, p := range s.parked {
		if p == c {
			s.parked = append(s.parked[:i], s.parked[i+1:]...)
			break
		}
	}
	c.parked, c.armed = false, false
}

func (s *scheduler) unset(c *clockEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.parked {
		s.unpark(c)
		return
	}
	if c.armed {
		heap.Remove(&s.queue, c.index)
		c.armed = false
	}
}

// releaseOwner drops every clock owned by rec. When verify is set, a clock
// that is still armed means the object did not cancel it during teardown:
// that is reported as a cancellation race and returned.
func (s *scheduler) releaseOwner(rec Record, verify bool) error {
	var owned []*clockEntry
	s.clocks.Each(func(_ resource.Handle, c *clockEntry) bool {
		if c.owner == rec {
			owned = append(owned, c)
		}
		return true
	})

	var raceErr error
	for _, c := range owned {
		s.mu.Lock()
		armed := c.armed
		s.mu.Unlock()

		if armed && verify {
			raceErr = errors.CancellationRace(uint32(rec), "clock still armed at teardown")
			s.rt.report(rec, raceErr)
		} else if verify {
			s.rt.log.Warn("clock not released by its owner",
				append(s.rt.fieldsFor(rec), zap.Uint32("clock", uint32(c.id)))...)
		}
		s.unset(c)
		s.clocks.Remove(resource.Handle(c.id))
	}
	return raceErr
}

// clockQueue implements heap.Interface over armed clocks.
type clockQueue []*clockEntry

func (q clockQueue) Len() int { return len(q) }

func (q clockQueue) Less(i, j int) bool {
	if q[i].when != q[j].when {
		return q[i].when < q[j].when
	}
	return q[i].seq < q[j].seq
}

func (q clockQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *clockQueue) Push(x any) {
	c := x.(*clockEntry)
	c.index = len(*q)
	*q = append(*q, c)
}

func (q *clockQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	c.index = -1
	*q = old[:n-1]
	return c
}
