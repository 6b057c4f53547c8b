package outbox

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/zoff-tech/go-order-saga/pkg/store"
)

// PostgresRepository persists outbox entries in the participant's own local
// postgres database.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, entry *Entry) error {
	tx, ok := store.TxFrom(ctx)
	if !ok {
		return store.ErrNoTransaction
	}

	tracer := otel.Tracer("go-order-saga")
	ctx, span := tracer.Start(ctx, "OutboxAppend")
	defer span.End()
	start := time.Now()

	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox_entries (id, aggregate_type, aggregate_id, event_type, payload, status, retry_count, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.AggregateType, entry.AggregateID, entry.EventType,
		entry.Payload, entry.Status, entry.RetryCount, entry.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return err
	}

	store.AddDBStatsToSpan(span, "OutboxAppend", 1, time.Since(start))
	return nil
}

func (r *PostgresRepository) FetchPending(ctx context.Context, limit int) ([]Entry, error) {
	return r.fetch(ctx, "FetchPending",
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, retry_count, created_at FROM outbox_entries
         WHERE status = $1 AND retry_count = 0
         ORDER BY created_at ASC LIMIT $2`,
		StatusPending, limit)
}

func (r *PostgresRepository) FetchRetryable(ctx context.Context, limit, maxRetries int) ([]Entry, error) {
	return r.fetch(ctx, "FetchRetryable",
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, retry_count, created_at FROM outbox_entries
         WHERE status = $1 AND retry_count > 0 AND retry_count < $2
         ORDER BY created_at ASC LIMIT $3`,
		StatusPending, maxRetries, limit)
}

func (r *PostgresRepository) fetch(ctx context.Context, spanName, query string, args ...any) ([]Entry, error) {
	tracer := otel.Tracer("go-order-saga")
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()
	start := time.Now()

	rows, err := store.QuerierFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		e.Status = StatusPending
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.RetryCount, &e.CreatedAt); err != nil {
			span.RecordError(err)
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	store.AddDBStatsToSpan(span, spanName, len(entries), time.Since(start))
	return entries, nil
}

func (r *PostgresRepository) MarkPublished(ctx context.Context, entryID string) error {
	return r.exec(ctx, "MarkPublished",
		`UPDATE outbox_entries SET status=$1, published_at=$2, error_message='' WHERE id=$3`,
		StatusPublished, time.Now().UTC(), entryID)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, entryID, errorMessage string) error {
	return r.exec(ctx, "MarkFailed",
		`UPDATE outbox_entries SET status=$1, error_message=$2 WHERE id=$3`,
		StatusFailed, errorMessage, entryID)
}

func (r *PostgresRepository) IncrementRetry(ctx context.Context, entryID, errorMessage string) error {
	return r.exec(ctx, "IncrementRetry",
		`UPDATE outbox_entries SET retry_count = retry_count + 1, error_message=$1 WHERE id=$2`,
		errorMessage, entryID)
}

func (r *PostgresRepository) exec(ctx context.Context, spanName, query string, args ...any) error {
	tracer := otel.Tracer("go-order-saga")
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()
	start := time.Now()

	_, err := store.QuerierFrom(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return err
	}

	store.AddDBStatsToSpan(span, spanName, 1, time.Since(start))
	return nil
}
