package resource

import "sync"

type slot struct {
	value any
	kind  Kind
	gen   uint8
	live  bool
}

// Table maps handles to Go values. Removed slots are reused with a bumped
// generation; a slot whose generation is exhausted is retired instead.
type Table struct {
	slots     []slot
	free      []uint32
	observers []Observer
	live      int
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

// New returns an empty table.
func New() *Table {
	return &Table{
		slots: make([]slot, 0, 64),
		free:  make([]uint32, 0, 16),
	}
}

// Insert stores value under kind.
func (t *Table) Insert(kind Kind, value any) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		if len(t.slots) >= maxSlots {
			t.mu.Unlock()
			return 0, ErrFull
		}
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot{})
	}

	s := &t.slots[idx]
	s.value, s.kind, s.live = value, kind, true
	h := makeHandle(idx, s.gen)
	t.live++
	t.mu.Unlock()

	t.notify(Event{Type: EventInserted, Handle: h, Kind: kind, Value: value})
	return h, nil
}

// lookup must be called with t.mu held.
func (t *Table) lookup(h Handle) (*slot, error) {
	i := h.slot()
	if i < 0 || i >= len(t.slots) {
		return nil, ErrInvalid
	}
	s := &t.slots[i]
	if !s.live || s.gen != h.Generation() {
		return nil, ErrStale
	}
	return s, nil
}

// Get returns the value behind h regardless of kind.
func (t *Table) Get(h Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, err := t.lookup(h)
	if err != nil {
		return nil, false
	}
	return s.value, true
}

// Resolve returns the value behind h if it was stored under kind. The
// error is ErrInvalid, ErrStale or ErrKind.
func (t *Table) Resolve(h Handle, kind Kind) (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, err := t.lookup(h)
	if err != nil {
		return nil, err
	}
	if s.kind != kind {
		return nil, ErrKind
	}
	return s.value, nil
}

// Remove releases h, calling Drop on values implementing Dropper.
func (t *Table) Remove(h Handle) (any, bool) {
	t.mu.Lock()
	s, err := t.lookup(h)
	if err != nil {
		t.mu.Unlock()
		return nil, false
	}
	value, kind := s.value, s.kind
	s.value, s.live = nil, false
	if s.gen < maxGeneration {
		s.gen++
		t.free = append(t.free, uint32(h.slot()))
	}
	t.live--
	t.mu.Unlock()

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	t.notify(Event{Type: EventRemoved, Handle: h, Kind: kind, Value: value})
	return value, true
}

// Watch registers an observer for inserts and removals.
func (t *Table) Watch(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Len returns the number of live values.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Each calls fn for every live value until it returns false. It iterates
// a snapshot, so fn may insert or remove.
func (t *Table) Each(fn func(Handle, Kind, any) bool) {
	t.mu.RLock()
	snapshot := make([]slot, len(t.slots))
	copy(snapshot, t.slots)
	t.mu.RUnlock()

	for i, s := range snapshot {
		if !s.live {
			continue
		}
		if !fn(makeHandle(uint32(i), s.gen), s.kind, s.value) {
			return
		}
	}
}

// Close drops every value and rejects further inserts. Observers are not
// notified of values dropped by Close.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	slots := t.slots
	t.slots, t.free, t.live = nil, nil, 0
	t.mu.Unlock()

	for _, s := range slots {
		if !s.live {
			continue
		}
		if d, ok := s.value.(Dropper); ok {
			d.Drop()
		}
	}
	return nil
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	observers := t.observers
	t.obsMu.RUnlock()
	for _, o := range observers {
		o(e)
	}
}
