package broker

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/go-order-saga/pkg/config"
)

// KafkaBrokerCreator defines a function type for creating Kafka publishers.
type KafkaBrokerCreator func(ctx context.Context, settings *config.BrokerSettings) (Publisher, error)

// NewKafkaBroker is the default implementation of KafkaBrokerCreator.
var NewKafkaBroker KafkaBrokerCreator = func(ctx context.Context, settings *config.BrokerSettings) (Publisher, error) {
	if len(settings.Brokers) == 0 {
		return nil, fmt.Errorf("kafka broker: at least one broker is required")
	}

	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(settings.Brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka broker: create producer: %w", err)
	}
	return &kafkaBroker{producer: producer}, nil
}

type kafkaBroker struct {
	producer sarama.SyncProducer
}

func (k *kafkaBroker) Publish(ctx context.Context, topic, key string, payload []byte, headers map[string]string) error {
	tracer := otel.Tracer("go-order-saga")
	ctx, span := tracer.Start(ctx, "Publish",
		trace.WithAttributes(
			semconv.MessagingSystemKey.String("kafka"),
			semconv.MessagingDestinationKindKey.String("topic"),
			semconv.MessagingDestinationKey.String(topic),
			semconv.MessagingKafkaMessageKeyKey.String(key),
		),
	)
	defer span.End()

	// Inject the trace context into the message headers
	propagator := otel.GetTextMapPropagator()
	traceHeaders := make(map[string]string)
	propagator.Inject(ctx, propagation.MapCarrier(traceHeaders))

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	for k, v := range traceHeaders {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	if _, _, err := k.producer.SendMessage(msg); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(
		attribute.Int("messaging.message_payload_size_bytes", len(payload)),
	)

	return nil
}

func (k *kafkaBroker) Close() error {
	return k.producer.Close()
}
