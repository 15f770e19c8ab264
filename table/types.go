package table

import (
	"github.com/wippyai/refcount/ptr"
)

// Handle is an opaque reference to a slot in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// EventType identifies a table event.
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

// Event describes a change to a table slot.
type Event struct {
	Handle Handle
	Weak   bool
	Type   EventType
}

// Observer receives table events.
type Observer interface {
	OnTableEvent(Event)
}

// Slot is the content of a table entry: either a shared handle or a weak
// handle, as reported by IsWeak.
type Slot[T any] struct {
	Shared ptr.Shared[T]
	Weak   ptr.Weak[T]
	IsWeak bool
}

// UseCount returns the shared count of the block the slot refers to.
func (s Slot[T]) UseCount() int64 {
	if s.IsWeak {
		return s.Weak.UseCount()
	}
	return s.Shared.UseCount()
}

// Release gives up the unit held by the slot and leaves it empty.
func (s *Slot[T]) Release() {
	if s.IsWeak {
		s.Weak.Release()
	} else {
		s.Shared.Release()
	}
	*s = Slot[T]{}
}

func (s Slot[T]) String() string {
	if s.IsWeak {
		return s.Weak.String()
	}
	return s.Shared.String()
}
