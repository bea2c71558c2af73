package model

// EventRecord is an archived gateway event.
type EventRecord struct {
	EventID    string // Primary key (gateway-assigned, or stamped on receipt)
	EventType  string // Gateway event type (e.g., "room_update")
	Payload    []byte // Raw event JSON as received
	ReceivedAt int64  // Relay receive timestamp (µs since epoch)
	InstanceID string // Relay instance that archived the event
}

// TransitionRecord is an archived session state transition.
type TransitionRecord struct {
	State      string // Session state: disconnected, connected, reconnecting, failed
	Attempt    int    // Reconnection attempt number, 0 outside reconnection
	OccurredAt int64  // Transition timestamp (µs since epoch)
	InstanceID string // Relay instance that observed the transition
}
