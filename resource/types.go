package resource

// Handle is an opaque reference to a host resource.
// Handle 0 is never issued and marks a consumed reference.
type Handle uint32

// Invalid is the poisoned handle value left behind by Take and Release.
const Invalid Handle = 0

// TypeID distinguishes resource kinds stored in a Table.
type TypeID uint16

// EventType identifies a resource lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Event describes a resource lifecycle change in a Table.
type Event struct {
	Value  any
	Handle Handle
	TypeID TypeID
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is optionally implemented by resource values that need cleanup.
type Dropper interface {
	Drop()
}
