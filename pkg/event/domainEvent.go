package event

// DomainEvent is implemented by every event that travels through the saga.
// The aggregate id doubles as the saga correlation id and as the partition
// key on the broker, so all events of one saga instance stay ordered.
type DomainEvent interface {
	// AggregateID returns the saga correlation id (the order id).
	AggregateID() string
	// EventType returns the closed event type tag used for topic resolution.
	EventType() string
}
