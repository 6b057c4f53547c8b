package broker

import (
	"context"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

const consumeBackoff = time.Second

// Consumer wraps a Sarama consumer group with manual, success-only offset
// commits: a message is acknowledged only after its handler returns nil, so
// failed steps are redelivered by the broker.
type Consumer struct {
	group   sarama.ConsumerGroup
	groupID string
	logger  zerolog.Logger
}

// NewConsumer constructs a consumer for the supplied brokers and consumer group.
func NewConsumer(brokers []string, groupID string, logger zerolog.Logger) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka consumer: at least one broker is required")
	}
	if groupID == "" {
		return nil, errors.New("kafka consumer: group id is required")
	}

	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}

	c := &Consumer{group: group, groupID: groupID, logger: logger}
	go c.consumeErrors()
	return c, nil
}

// Run subscribes to the topics and invokes the handler for each record. The
// call blocks until the context is canceled.
func (c *Consumer) Run(ctx context.Context, topics []string, handler Handler) error {
	if len(topics) == 0 {
		return errors.New("kafka consumer: at least one topic is required")
	}
	if handler == nil {
		return errors.New("kafka consumer: handler is required")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.group.Consume(ctx, topics, &groupHandler{consumer: c, handler: handler})
		if err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error().Err(err).Str("group", c.groupID).Msg("kafka consumer: consume error")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(consumeBackoff):
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

func (c *Consumer) consumeErrors() {
	for err := range c.group.Errors() {
		c.logger.Error().Err(err).Str("group", c.groupID).Msg("kafka consumer: group error")
	}
}

type groupHandler struct {
	consumer *Consumer
	handler  Handler
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		headers := make(map[string]string, len(message.Headers))
		for _, hdr := range message.Headers {
			headers[string(hdr.Key)] = string(hdr.Value)
		}

		msg := &Message{
			Topic:     message.Topic,
			Key:       message.Key,
			Value:     message.Value,
			Headers:   headers,
			Timestamp: message.Timestamp,
		}

		if err := h.handler(session.Context(), msg); err != nil {
			// Leave the offset unmarked; the session restarts and the broker
			// redelivers from the last committed offset.
			return err
		}

		session.MarkMessage(message, "")
		session.Commit()
	}
	return nil
}
