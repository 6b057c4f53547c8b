package product

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/zoff-tech/go-order-saga/pkg/store"
)

func TestReserveDecrementsStock(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE product_stocks SET quantity = quantity - \$1, updated_at = \$2 WHERE product_id = \$3 AND quantity >= \$1`).
		WithArgs(3, sqlmock.AnyArg(), "p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m := store.NewSQLTxManager(db)
	err = m.Do(context.Background(), func(ctx context.Context) error {
		return s.Reserve(ctx, "p-1", 3)
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveInsufficientStock(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)

	// The guard in the WHERE clause matches no row when stock is short.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE product_stocks`).
		WithArgs(99, sqlmock.AnyArg(), "p-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	m := store.NewSQLTxManager(db)
	err = m.Do(context.Background(), func(ctx context.Context) error {
		return s.Reserve(ctx, "p-1", 99)
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveRequiresTransaction(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)

	err = s.Reserve(context.Background(), "p-1", 1)
	assert.ErrorIs(t, err, store.ErrNoTransaction)
}

func TestGetReservation(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"order_id", "product_id", "quantity", "released", "created_at"}).
		AddRow("o-1", "p-1", 3, false, now)

	mock.ExpectQuery(`SELECT order_id, product_id, quantity, released, created_at FROM stock_reservations WHERE order_id = \$1`).
		WithArgs("o-1").
		WillReturnRows(rows)

	r, err := s.GetReservation(context.Background(), "o-1")
	assert.NoError(t, err)
	assert.NotNil(t, r)
	assert.Equal(t, "p-1", r.ProductID)
	assert.Equal(t, 3, r.Quantity)
	assert.False(t, r.Released)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReservationMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)

	mock.ExpectQuery(`SELECT order_id, product_id, quantity, released, created_at FROM stock_reservations`).
		WithArgs("o-9").
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "product_id", "quantity", "released", "created_at"}))

	r, err := s.GetReservation(context.Background(), "o-9")
	assert.NoError(t, err)
	assert.Nil(t, r)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreAndRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE product_stocks SET quantity = quantity \+ \$1, updated_at = \$2 WHERE product_id = \$3`).
		WithArgs(3, sqlmock.AnyArg(), "p-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE stock_reservations SET released = TRUE WHERE order_id = \$1`).
		WithArgs("o-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m := store.NewSQLTxManager(db)
	err = m.Do(context.Background(), func(ctx context.Context) error {
		if err := s.Restore(ctx, "p-1", 3); err != nil {
			return err
		}
		return s.ReleaseReservation(ctx, "o-1")
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
