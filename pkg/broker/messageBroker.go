package broker

import (
	"context"
	"time"
)

// Publisher defines the operations to publish messages to a broker. The key
// is the aggregate/correlation id; implementations use it as the partition or
// ordering key so all events of one saga instance are delivered in order.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error
	// Close cleans up any resources (connections).
	Close() error
}

// Message represents an inbound record delivered to a consumer handler.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler is invoked for every message delivered by a consumer. Returning a
// non-nil error leaves the message unacknowledged so the broker redelivers
// it; returning nil acknowledges it.
type Handler func(ctx context.Context, msg *Message) error
