package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-namespaced: "message." for reconciler notifications,
// "presence." for roster updates and "session." for lifecycle transitions.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
