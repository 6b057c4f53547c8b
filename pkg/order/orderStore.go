package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/zoff-tech/go-order-saga/pkg/store"
)

// ErrNotFound is returned when no order exists for the id.
var ErrNotFound = errors.New("order: not found")

// Store defines the database operations for the order aggregate.
type Store interface {
	// Create inserts a new PENDING order. Must run inside the caller's
	// transaction, together with the order.created outbox append.
	Create(ctx context.Context, o *Order) error
	// Finish moves a PENDING order to a terminal status with a reason.
	// Terminal states are never left; finishing an already-finished order is
	// a no-op.
	Finish(ctx context.Context, orderID string, status Status, reason string) error
	Get(ctx context.Context, orderID string) (*Order, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, o *Order) error {
	tx, ok := store.TxFrom(ctx)
	if !ok {
		return store.ErrNoTransaction
	}

	tracer := otel.Tracer("go-order-saga")
	ctx, span := tracer.Start(ctx, "OrderCreate")
	defer span.End()
	start := time.Now()

	_, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, product_id, quantity, coupon_id, amount, status, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		o.ID, o.UserID, o.ProductID, o.Quantity, o.CouponID, o.Amount, o.Status, o.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return err
	}

	store.AddDBStatsToSpan(span, "OrderCreate", 1, time.Since(start))
	return nil
}

func (s *PostgresStore) Finish(ctx context.Context, orderID string, status Status, reason string) error {
	tracer := otel.Tracer("go-order-saga")
	ctx, span := tracer.Start(ctx, "OrderFinish")
	defer span.End()
	start := time.Now()

	// The status guard keeps COMPLETED and FAILED terminal.
	_, err := store.QuerierFrom(ctx, s.db).ExecContext(ctx,
		`UPDATE orders SET status=$1, failure_reason=$2, updated_at=$3 WHERE id=$4 AND status=$5`,
		status, reason, time.Now().UTC(), orderID, StatusPending)
	if err != nil {
		span.RecordError(err)
		return err
	}

	store.AddDBStatsToSpan(span, "OrderFinish", 1, time.Since(start))
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, orderID string) (*Order, error) {
	var o Order
	err := store.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, user_id, product_id, quantity, coupon_id, amount, status, failure_reason, created_at, updated_at
         FROM orders WHERE id=$1`, orderID).
		Scan(&o.ID, &o.UserID, &o.ProductID, &o.Quantity, &o.CouponID, &o.Amount, &o.Status, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
