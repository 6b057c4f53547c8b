package saga

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zoff-tech/go-order-saga/pkg/broker"
	"github.com/zoff-tech/go-order-saga/pkg/event"
	"github.com/zoff-tech/go-order-saga/pkg/idempotency"
	"github.com/zoff-tech/go-order-saga/pkg/outbox"
	"github.com/zoff-tech/go-order-saga/pkg/store"
)

const defaultRecordTTL = 24 * time.Hour

// HandlerFunc performs a step's local mutation and returns the outbound
// events to append to the outbox. It runs inside an open local transaction
// carried in the context. A recognized business failure is not an error:
// the handler expresses it by returning the failure or compensation events.
// A returned error wrapping ErrPoison drops the message; any other error
// rolls the transaction back and leaves the message unacknowledged for
// broker redelivery.
type HandlerFunc func(ctx context.Context, payload []byte) ([]event.DomainEvent, error)

// Executor is the per-step listener shape shared by all participants:
// idempotency check, then local mutation, idempotency record and outbox
// append in one local transaction. On duplicate delivery it re-emits the
// step's cached outbound events without re-mutating, so saga progress is
// never stalled by redelivery.
type Executor struct {
	step          string // idempotency key suffix, e.g. "RESERVE_STOCK"
	aggregateType string // outbox participant tag, e.g. "PRODUCT"
	tx            store.TxManager
	idem          idempotency.Store
	ledger        outbox.Ledger
	handle        HandlerFunc
	ttl           time.Duration
	log           zerolog.Logger
}

// Option customises the executor during construction.
type Option func(*Executor)

// WithRecordTTL overrides the idempotency record TTL.
func WithRecordTTL(ttl time.Duration) Option {
	return func(e *Executor) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Executor) { e.log = log }
}

func NewExecutor(step, aggregateType string, tx store.TxManager, idem idempotency.Store, ledger outbox.Ledger, handle HandlerFunc, opts ...Option) *Executor {
	e := &Executor{
		step:          step,
		aggregateType: aggregateType,
		tx:            tx,
		idem:          idem,
		ledger:        ledger,
		handle:        handle,
		ttl:           defaultRecordTTL,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// cachedEvent is one outbound event stored in the idempotency record's
// response for re-emission on duplicate delivery.
type cachedEvent struct {
	EventType   string          `json:"eventType"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
}

// Process handles one delivery of the step's inbound message. The producer
// always sets the partition key to the aggregate id, so the executor keys
// idempotency on the message key without decoding the payload.
func (e *Executor) Process(ctx context.Context, msg *broker.Message) error {
	aggregateID := string(msg.Key)
	if aggregateID == "" {
		e.log.Error().Str("step", e.step).Str("topic", msg.Topic).Msg("dropping message without aggregate key")
		return nil
	}

	key := idempotency.KeyFor(aggregateID, e.step)

	rec, err := e.idem.Get(ctx, key)
	if err != nil {
		return err
	}
	if rec != nil {
		return e.replay(ctx, aggregateID, rec)
	}

	err = e.tx.Do(ctx, func(ctx context.Context) error {
		events, err := e.handle(ctx, msg.Value)
		if err != nil {
			return err
		}

		cached := make([]cachedEvent, 0, len(events))
		for _, ev := range events {
			entry, err := outbox.NewEntry(e.aggregateType, ev)
			if err != nil {
				return err
			}
			if err := e.ledger.Append(ctx, entry); err != nil {
				return err
			}
			cached = append(cached, cachedEvent{
				EventType:   entry.EventType,
				AggregateID: entry.AggregateID,
				Payload:     entry.Payload,
			})
		}

		response, err := json.Marshal(cached)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		return e.idem.Save(ctx, &idempotency.Record{
			Key:         key,
			EventType:   msg.Topic,
			Response:    response,
			ProcessedAt: now,
			ExpiresAt:   now.Add(e.ttl),
		})
	})

	if errors.Is(err, ErrPoison) {
		e.log.Error().Err(err).
			Str("step", e.step).
			Str("aggregate_id", aggregateID).
			Msg("dropping poison message")
		return nil
	}
	return err
}

// replay re-appends the cached outbound events so a duplicate delivery still
// moves the saga forward, without re-running the mutation.
func (e *Executor) replay(ctx context.Context, aggregateID string, rec *idempotency.Record) error {
	var cached []cachedEvent
	if err := json.Unmarshal(rec.Response, &cached); err != nil {
		e.log.Error().Err(err).Str("key", rec.Key).Msg("unreadable cached response, acknowledging duplicate")
		return nil
	}

	e.log.Info().
		Str("step", e.step).
		Str("aggregate_id", aggregateID).
		Int("events", len(cached)).
		Msg("duplicate delivery, re-emitting cached events")

	if len(cached) == 0 {
		return nil
	}

	return e.tx.Do(ctx, func(ctx context.Context) error {
		for _, c := range cached {
			entry := &outbox.Entry{
				ID:            uuid.NewString(),
				AggregateType: e.aggregateType,
				AggregateID:   c.AggregateID,
				EventType:     c.EventType,
				Payload:       c.Payload,
				Status:        outbox.StatusPending,
				CreatedAt:     time.Now().UTC(),
			}
			if err := e.ledger.Append(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	})
}
