package control

// EventType identifies a control block lifecycle transition.
type EventType uint8

const (
	EventCreated EventType = iota
	EventPayloadDestroyed
	EventFreed
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventPayloadDestroyed:
		return "payload_destroyed"
	case EventFreed:
		return "freed"
	default:
		return "unknown"
	}
}

// Event represents a control block lifecycle event.
type Event struct {
	Block *Block
	Size  uintptr
	Kind  Kind
	Type  EventType
}

// Observer receives notifications about control block lifecycle events.
// Observers run synchronously on the goroutine that caused the transition.
type Observer interface {
	OnBlockEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnBlockEvent calls f(e).
func (f ObserverFunc) OnBlockEvent(e Event) {
	f(e)
}
