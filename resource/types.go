package resource

import (
	"errors"
	"fmt"
)

// Handle refers to a value in a Table. The low 24 bits select a slot and
// the high 8 bits carry the slot generation at insertion, so a handle kept
// past Remove never resolves to whatever reuses the slot. 0 is never issued.
type Handle uint32

const (
	indexBits     = 24
	indexMask     = 1<<indexBits - 1
	maxGeneration = 1<<(32-indexBits) - 1
	maxSlots      = indexMask
)

func makeHandle(slot uint32, gen uint8) Handle {
	return Handle(uint32(gen)<<indexBits | (slot + 1))
}

// slot returns the zero-based slot index, or -1 for the zero handle.
func (h Handle) slot() int {
	return int(uint32(h)&indexMask) - 1
}

// Generation returns the slot generation encoded in h.
func (h Handle) Generation() uint8 {
	return uint8(uint32(h) >> indexBits)
}

func (h Handle) String() string {
	if h == 0 {
		return "#nil"
	}
	return fmt.Sprintf("#%d.%d", h.slot()+1, h.Generation())
}

// Kind tags what a stored value is: a class id for embedded objects, a
// fixed tag for host-internal entries.
type Kind uint32

var (
	ErrClosed  = errors.New("resource table closed")
	ErrFull    = errors.New("resource table full")
	ErrInvalid = errors.New("invalid handle")
	ErrStale   = errors.New("stale handle")
	ErrKind    = errors.New("handle refers to another kind")
)

// EventType distinguishes lifecycle notifications.
type EventType uint8

const (
	EventInserted EventType = iota
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventInserted:
		return "inserted"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event is delivered to observers after a value enters or leaves a table.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives lifecycle events. It runs on the goroutine that
// changed the table, outside the table lock.
type Observer func(Event)

// Dropper is optionally implemented by values that need cleanup when they
// leave a table.
type Dropper interface {
	Drop()
}
