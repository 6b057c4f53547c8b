package payment

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/zoff-tech/go-order-saga/pkg/store"
)

// ErrInsufficientBalance is the recognized business failure of the funds
// deduction step.
var ErrInsufficientBalance = errors.New("payment: insufficient balance")

// Payment records a debit made for a saga instance, so compensation can
// refund the exact amount from local state alone.
type Payment struct {
	OrderID   string
	UserID    string
	Amount    int64
	Refunded  bool
	CreatedAt time.Time
}

// Store defines the database operations of the payment participant. All
// mutating methods must run inside the caller's transaction.
type Store interface {
	// Debit subtracts amount from the user's point balance, guarding against
	// going negative. Returns ErrInsufficientBalance when funds are short.
	Debit(ctx context.Context, userID string, amount int64) error
	// Credit returns amount to the user's point balance.
	Credit(ctx context.Context, userID string, amount int64) error
	SavePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, orderID string) (*Payment, error)
	// MarkRefunded flags the payment as refunded.
	MarkRefunded(ctx context.Context, orderID string) error
	GetBalance(ctx context.Context, userID string) (int64, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Debit(ctx context.Context, userID string, amount int64) error {
	tx, ok := store.TxFrom(ctx)
	if !ok {
		return store.ErrNoTransaction
	}

	tracer := otel.Tracer("go-order-saga")
	ctx, span := tracer.Start(ctx, "PointsDebit")
	defer span.End()
	start := time.Now()

	res, err := tx.ExecContext(ctx,
		`UPDATE point_balances SET balance = balance - $1, updated_at = $2
         WHERE user_id = $3 AND balance >= $1`,
		amount, time.Now().UTC(), userID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficientBalance
	}

	store.AddDBStatsToSpan(span, "PointsDebit", int(affected), time.Since(start))
	return nil
}

func (s *PostgresStore) Credit(ctx context.Context, userID string, amount int64) error {
	tx, ok := store.TxFrom(ctx)
	if !ok {
		return store.ErrNoTransaction
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE point_balances SET balance = balance + $1, updated_at = $2 WHERE user_id = $3`,
		amount, time.Now().UTC(), userID)
	return err
}

func (s *PostgresStore) SavePayment(ctx context.Context, p *Payment) error {
	tx, ok := store.TxFrom(ctx)
	if !ok {
		return store.ErrNoTransaction
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (order_id, user_id, amount, refunded, created_at)
         VALUES ($1, $2, $3, $4, $5)`,
		p.OrderID, p.UserID, p.Amount, p.Refunded, p.CreatedAt)
	return err
}

func (s *PostgresStore) GetPayment(ctx context.Context, orderID string) (*Payment, error) {
	var p Payment
	err := store.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT order_id, user_id, amount, refunded, created_at FROM payments WHERE order_id = $1`,
		orderID).
		Scan(&p.OrderID, &p.UserID, &p.Amount, &p.Refunded, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) MarkRefunded(ctx context.Context, orderID string) error {
	tx, ok := store.TxFrom(ctx)
	if !ok {
		return store.ErrNoTransaction
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE payments SET refunded = TRUE WHERE order_id = $1`, orderID)
	return err
}

func (s *PostgresStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := store.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT balance FROM point_balances WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}
