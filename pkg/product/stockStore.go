package product

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/zoff-tech/go-order-saga/pkg/store"
)

// ErrInsufficientStock is the recognized business failure of the reserve step.
var ErrInsufficientStock = errors.New("product: insufficient stock")

// Reservation records what a saga instance took from stock, so compensation
// can restore the exact quantity from local state alone.
type Reservation struct {
	OrderID   string
	ProductID string
	Quantity  int
	Released  bool
	CreatedAt time.Time
}

// Store defines the database operations of the product participant. All
// mutating methods must run inside the caller's transaction.
type Store interface {
	// Reserve decrements stock, guarding against going negative. Returns
	// ErrInsufficientStock when the quantity is not available.
	Reserve(ctx context.Context, productID string, quantity int) error
	// Restore returns a previously reserved quantity to stock.
	Restore(ctx context.Context, productID string, quantity int) error
	SaveReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, orderID string) (*Reservation, error)
	// ReleaseReservation marks the reservation as rolled back.
	ReleaseReservation(ctx context.Context, orderID string) error
	GetQuantity(ctx context.Context, productID string) (int, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Reserve(ctx context.Context, productID string, quantity int) error {
	tx, ok := store.TxFrom(ctx)
	if !ok {
		return store.ErrNoTransaction
	}

	tracer := otel.Tracer("go-order-saga")
	ctx, span := tracer.Start(ctx, "StockReserve")
	defer span.End()
	start := time.Now()

	res, err := tx.ExecContext(ctx,
		`UPDATE product_stocks SET quantity = quantity - $1, updated_at = $2
         WHERE product_id = $3 AND quantity >= $1`,
		quantity, time.Now().UTC(), productID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficientStock
	}

	store.AddDBStatsToSpan(span, "StockReserve", int(affected), time.Since(start))
	return nil
}

func (s *PostgresStore) Restore(ctx context.Context, productID string, quantity int) error {
	tx, ok := store.TxFrom(ctx)
	if !ok {
		return store.ErrNoTransaction
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE product_stocks SET quantity = quantity + $1, updated_at = $2 WHERE product_id = $3`,
		quantity, time.Now().UTC(), productID)
	return err
}

func (s *PostgresStore) SaveReservation(ctx context.Context, r *Reservation) error {
	tx, ok := store.TxFrom(ctx)
	if !ok {
		return store.ErrNoTransaction
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO stock_reservations (order_id, product_id, quantity, released, created_at)
         VALUES ($1, $2, $3, $4, $5)`,
		r.OrderID, r.ProductID, r.Quantity, r.Released, r.CreatedAt)
	return err
}

func (s *PostgresStore) GetReservation(ctx context.Context, orderID string) (*Reservation, error) {
	var r Reservation
	err := store.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT order_id, product_id, quantity, released, created_at FROM stock_reservations WHERE order_id = $1`,
		orderID).
		Scan(&r.OrderID, &r.ProductID, &r.Quantity, &r.Released, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) ReleaseReservation(ctx context.Context, orderID string) error {
	tx, ok := store.TxFrom(ctx)
	if !ok {
		return store.ErrNoTransaction
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE stock_reservations SET released = TRUE WHERE order_id = $1`, orderID)
	return err
}

func (s *PostgresStore) GetQuantity(ctx context.Context, productID string) (int, error) {
	var quantity int
	err := store.QuerierFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT quantity FROM product_stocks WHERE product_id = $1`, productID).Scan(&quantity)
	if err != nil {
		return 0, err
	}
	return quantity, nil
}
