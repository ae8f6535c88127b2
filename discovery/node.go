package discovery

// NodeFlags selects the lifecycle and naming behaviour of a created node
// (§3 Data Model, "Coordination Node").
type NodeFlags int

const (
	// Persistent nodes outlive the session that created them.
	Persistent NodeFlags = iota
	// Ephemeral nodes vanish when their creating session ends or expires.
	Ephemeral
	// PersistentSequential nodes are persistent, with a monotonic suffix
	// appended to their path at creation time.
	PersistentSequential
	// EphemeralSequential nodes are ephemeral, with a monotonic suffix
	// appended to their path at creation time. This is the flag the
	// Provider Server uses to advertise "host:port" under
	// /service/method/<seq> (§6.3).
	EphemeralSequential
)

func (f NodeFlags) sequential() bool {
	return f == PersistentSequential || f == EphemeralSequential
}

func (f NodeFlags) ephemeral() bool {
	return f == Ephemeral || f == EphemeralSequential
}

// EventType distinguishes the kinds of change a watch can report.
type EventType int

const (
	// EventDataChanged fires when a watched node's data is overwritten.
	EventDataChanged EventType = iota
	// EventDeleted fires when a watched node (or its owning lease) is removed.
	EventDeleted
)

// NodeEvent is delivered on the channel returned by GetData/Exists when a
// watch is requested. The §9 redesign target turns the store's native
// callback-style watch into this simple message-passing shape.
type NodeEvent struct {
	Path string
	Type EventType
	Data []byte
}
