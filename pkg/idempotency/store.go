package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/zoff-tech/go-order-saga/pkg/store"
)

// Store is the exactly-once-effect gate shared by all saga step executors.
type Store interface {
	// Get returns the record for the key, or nil when the step has not run
	// (expired records count as absent).
	Get(ctx context.Context, key string) (*Record, error)
	// Save persists the record. It must be called inside the caller's active
	// local transaction, together with the step's mutation and outbox append.
	Save(ctx context.Context, rec *Record) error
	// DeleteExpired removes records past their TTL and reports how many.
	DeleteExpired(ctx context.Context) (int64, error)
}

// PostgresStore persists idempotency records in the participant's own local
// postgres database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*Record, error) {
	tracer := otel.Tracer("go-order-saga")
	ctx, span := tracer.Start(ctx, "IdempotencyGet")
	defer span.End()
	start := time.Now()

	var rec Record
	err := store.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT key, event_type, response, processed_at, expires_at FROM idempotency_records
         WHERE key = $1 AND expires_at > $2`,
		key, time.Now().UTC()).
		Scan(&rec.Key, &rec.EventType, &rec.Response, &rec.ProcessedAt, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	store.AddDBStatsToSpan(span, "IdempotencyGet", 1, time.Since(start))
	return &rec, nil
}

func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	tx, ok := store.TxFrom(ctx)
	if !ok {
		return store.ErrNoTransaction
	}

	tracer := otel.Tracer("go-order-saga")
	ctx, span := tracer.Start(ctx, "IdempotencySave")
	defer span.End()
	start := time.Now()

	_, err := tx.ExecContext(ctx,
		`INSERT INTO idempotency_records (key, event_type, response, processed_at, expires_at)
         VALUES ($1, $2, $3, $4, $5)`,
		rec.Key, rec.EventType, rec.Response, rec.ProcessedAt, rec.ExpiresAt)
	if err != nil {
		span.RecordError(err)
		return err
	}

	store.AddDBStatsToSpan(span, "IdempotencySave", 1, time.Since(start))
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	tracer := otel.Tracer("go-order-saga")
	ctx, span := tracer.Start(ctx, "IdempotencyDeleteExpired")
	defer span.End()
	start := time.Now()

	res, err := store.QuerierFrom(ctx, s.db).ExecContext(ctx,
		`DELETE FROM idempotency_records WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	store.AddDBStatsToSpan(span, "IdempotencyDeleteExpired", int(deleted), time.Since(start))
	return deleted, nil
}
