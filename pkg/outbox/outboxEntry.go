package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zoff-tech/go-order-saga/pkg/event"
)

// Status represents the relay status of an outbox entry.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPublished Status = "PUBLISHED"
	StatusFailed    Status = "FAILED"
)

// Entry represents a domain event captured in the outbox table, pending or
// relayed to the broker.
type Entry struct {
	ID            string     `json:"id"`
	AggregateType string     `json:"aggregate_type"`
	AggregateID   string     `json:"aggregate_id"`
	EventType     string     `json:"event_type"`
	Payload       []byte     `json:"payload"`
	Status        Status     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
}

// NewEntry serializes a domain event into a pending outbox entry.
func NewEntry(aggregateType string, ev event.DomainEvent) (*Entry, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("outbox: marshal %s event: %w", ev.EventType(), err)
	}
	return &Entry{
		ID:            uuid.NewString(),
		AggregateType: aggregateType,
		AggregateID:   ev.AggregateID(),
		EventType:     ev.EventType(),
		Payload:       payload,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
