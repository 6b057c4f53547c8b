package idempotency

import "time"

// Record marks "this saga step, for this aggregate, already executed".
// Its existence implies the step's local mutation committed exactly once; a
// duplicate delivery must not re-mutate state but may re-emit the step's
// outbound events from the cached response.
type Record struct {
	Key         string // "{aggregateId}:{stepName}", unique
	EventType   string // inbound stream the step consumed
	Response    []byte // cached outbound events for safe re-emission
	ProcessedAt time.Time
	ExpiresAt   time.Time
}

// KeyFor builds the idempotency key for a saga step execution.
func KeyFor(aggregateID, step string) string {
	return aggregateID + ":" + step
}
