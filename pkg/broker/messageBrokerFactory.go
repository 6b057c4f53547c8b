package broker

import (
	"context"
	"fmt"

	"github.com/zoff-tech/go-order-saga/pkg/config"
)

// NewPublisher creates the publisher configured in settings.
func NewPublisher(ctx context.Context, cfg *config.BrokerSettings) (Publisher, error) {
	switch cfg.Type {
	case "kafka":
		return NewKafkaBroker(ctx, cfg)
	case "rabbitmq":
		return NewRabbitMqBroker(ctx, cfg)
	case "gcp-pubsub":
		return NewPubSubClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported broker type: %s", cfg.Type)
	}
}
