package promotion

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/zoff-tech/go-order-saga/pkg/store"
)

// ErrCouponUnavailable is the recognized business failure of the coupon
// reservation step: the coupon does not exist, is expired, or is already used.
var ErrCouponUnavailable = errors.New("promotion: coupon unavailable")

// Coupon status values.
const (
	CouponAvailable = "AVAILABLE"
	CouponUsed      = "USED"
	CouponExpired   = "EXPIRED"
)

// Usage records which coupon a saga instance consumed, so compensation can
// restore it from local state alone.
type Usage struct {
	OrderID   string
	CouponID  string
	Discount  int64
	Released  bool
	CreatedAt time.Time
}

// Store defines the database operations of the promotion participant. All
// mutating methods must run inside the caller's transaction.
type Store interface {
	// Use marks an AVAILABLE coupon as USED and returns its discount amount.
	// Returns ErrCouponUnavailable when the coupon cannot be reserved.
	Use(ctx context.Context, couponID string) (int64, error)
	// Restore returns a USED coupon to AVAILABLE.
	Restore(ctx context.Context, couponID string) error
	SaveUsage(ctx context.Context, u *Usage) error
	GetUsage(ctx context.Context, orderID string) (*Usage, error)
	ReleaseUsage(ctx context.Context, orderID string) error
	GetStatus(ctx context.Context, couponID string) (string, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Use(ctx context.Context, couponID string) (int64, error) {
	tx, ok := store.TxFrom(ctx)
	if !ok {
		return 0, store.ErrNoTransaction
	}

	tracer := otel.Tracer("go-order-saga")
	ctx, span := tracer.Start(ctx, "CouponUse")
	defer span.End()
	start := time.Now()

	var discount int64
	err := tx.QueryRowContext(ctx,
		`UPDATE coupons SET status = $1, updated_at = $2
         WHERE id = $3 AND status = $4 AND expires_at > $2
         RETURNING discount_amount`,
		CouponUsed, time.Now().UTC(), couponID, CouponAvailable).Scan(&discount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrCouponUnavailable
	}
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	store.AddDBStatsToSpan(span, "CouponUse", 1, time.Since(start))
	return discount, nil
}

func (s *PostgresStore) Restore(ctx context.Context, couponID string) error {
	tx, ok := store.TxFrom(ctx)
	if !ok {
		return store.ErrNoTransaction
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE coupons SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		CouponAvailable, time.Now().UTC(), couponID, CouponUsed)
	return err
}

func (s *PostgresStore) SaveUsage(ctx context.Context, u *Usage) error {
	tx, ok := store.TxFrom(ctx)
	if !ok {
		return store.ErrNoTransaction
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO coupon_usages (order_id, coupon_id, discount, released, created_at)
         VALUES ($1, $2, $3, $4, $5)`,
		u.OrderID, u.CouponID, u.Discount, u.Released, u.CreatedAt)
	return err
}

func (s *PostgresStore) GetUsage(ctx context.Context, orderID string) (*Usage, error) {
	var u Usage
	err := store.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT order_id, coupon_id, discount, released, created_at FROM coupon_usages WHERE order_id = $1`,
		orderID).
		Scan(&u.OrderID, &u.CouponID, &u.Discount, &u.Released, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) ReleaseUsage(ctx context.Context, orderID string) error {
	tx, ok := store.TxFrom(ctx)
	if !ok {
		return store.ErrNoTransaction
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE coupon_usages SET released = TRUE WHERE order_id = $1`, orderID)
	return err
}

func (s *PostgresStore) GetStatus(ctx context.Context, couponID string) (string, error) {
	var status string
	err := store.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT status FROM coupons WHERE id = $1`, couponID).Scan(&status)
	if err != nil {
		return "", err
	}
	return status, nil
}
