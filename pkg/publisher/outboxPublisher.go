package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoff-tech/go-order-saga/pkg/broker"
	"github.com/zoff-tech/go-order-saga/pkg/config"
	"github.com/zoff-tech/go-order-saga/pkg/event"
	"github.com/zoff-tech/go-order-saga/pkg/outbox"
)

const retrySweepLock = "outbox-retry-sweep"

// Lock is the mutual-exclusion primitive guarding the slow retry sweep.
type Lock interface {
	TryAcquire(ctx context.Context, name string) (release func(), acquired bool, err error)
}

// OutboxPublisher drains pending outbox entries and relays them to the
// broker. It runs two sweeps: a fast one for first attempts, bounding
// happy-path latency, and a slow one for bounded retries, bounding resource
// usage when the broker misbehaves. Entries that exhaust the retry ceiling
// are marked FAILED and left for manual inspection.
type OutboxPublisher struct {
	repo   outbox.Repository
	broker broker.Publisher
	lock   Lock
	tracer trace.Tracer
	log    zerolog.Logger

	pollInterval  time.Duration
	retryInterval time.Duration
	batchSize     int
	maxRetries    int
}

func NewOutboxPublisher(repo outbox.Repository, pub broker.Publisher, lock Lock, cfg config.PublisherSettings, log zerolog.Logger) *OutboxPublisher {
	return &OutboxPublisher{
		repo:          repo,
		broker:        pub,
		lock:          lock,
		tracer:        otel.Tracer("go-order-saga"),
		log:           log,
		pollInterval:  cfg.PollInterval,
		retryInterval: cfg.RetryInterval,
		batchSize:     cfg.BatchSize,
		maxRetries:    cfg.MaxRetries,
	}
}

// Run blocks until the context is canceled or a configuration error (an
// event type with no mapped topic) is detected.
func (p *OutboxPublisher) Run(ctx context.Context) error {
	fast := time.NewTicker(p.pollInterval)
	defer fast.Stop()
	slow := time.NewTicker(p.retryInterval)
	defer slow.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-fast.C:
			if err := p.SweepPending(ctx); err != nil {
				return err
			}
		case <-slow.C:
			if err := p.SweepRetryable(ctx); err != nil {
				return err
			}
		}
	}
}

// SweepPending relays first-attempt entries, oldest first.
func (p *OutboxPublisher) SweepPending(ctx context.Context) error {
	entries, err := p.repo.FetchPending(ctx, p.batchSize)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to fetch pending outbox entries")
		return nil
	}
	return p.relayAll(ctx, entries)
}

// SweepRetryable relays previously failed entries still below the retry
// ceiling. The sweep is guarded by a distributed lock so only one worker
// instance retries at a time.
func (p *OutboxPublisher) SweepRetryable(ctx context.Context) error {
	if p.lock != nil {
		release, acquired, err := p.lock.TryAcquire(ctx, retrySweepLock)
		if err != nil {
			p.log.Error().Err(err).Msg("failed to acquire retry sweep lock")
			return nil
		}
		if !acquired {
			return nil
		}
		defer release()
	}

	entries, err := p.repo.FetchRetryable(ctx, p.batchSize, p.maxRetries)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to fetch retryable outbox entries")
		return nil
	}
	return p.relayAll(ctx, entries)
}

func (p *OutboxPublisher) relayAll(ctx context.Context, entries []outbox.Entry) error {
	for _, entry := range entries {
		if err := p.relay(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (p *OutboxPublisher) relay(ctx context.Context, entry outbox.Entry) error {
	ctx, span := p.tracer.Start(ctx, "RelayOutboxEntry", trace.WithAttributes(
		attribute.String("entry.id", entry.ID),
		attribute.String("entry.aggregate_id", entry.AggregateID),
		attribute.String("entry.event_type", entry.EventType),
		attribute.Int("entry.retry_count", entry.RetryCount),
	))
	defer span.End()

	topic, err := event.TopicFor(entry.EventType)
	if err != nil {
		// Misconfigured topic map, not a transient fault: stop the worker.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("publisher: %w", err)
	}

	headers := map[string]string{
		"x-event-type":     entry.EventType,
		"x-aggregate-type": entry.AggregateType,
	}

	if err := p.broker.Publish(ctx, topic, entry.AggregateID, entry.Payload, headers); err != nil {
		p.log.Warn().Err(err).
			Str("entry_id", entry.ID).
			Str("topic", topic).
			Int("retry_count", entry.RetryCount).
			Msg("failed to publish outbox entry")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if entry.RetryCount+1 >= p.maxRetries {
			if err := p.repo.MarkFailed(ctx, entry.ID, err.Error()); err != nil {
				p.log.Error().Err(err).Str("entry_id", entry.ID).Msg("failed to mark outbox entry failed")
			}
		} else {
			if err := p.repo.IncrementRetry(ctx, entry.ID, err.Error()); err != nil {
				p.log.Error().Err(err).Str("entry_id", entry.ID).Msg("failed to update retry count")
			}
		}
		return nil
	}

	if err := p.repo.MarkPublished(ctx, entry.ID); err != nil {
		p.log.Error().Err(err).Str("entry_id", entry.ID).Msg("failed to mark outbox entry published")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return nil
}
