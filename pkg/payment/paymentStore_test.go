package payment

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/zoff-tech/go-order-saga/pkg/store"
)

func TestDebitSubtractsBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE point_balances SET balance = balance - \$1, updated_at = \$2 WHERE user_id = \$3 AND balance >= \$1`).
		WithArgs(int64(700), sqlmock.AnyArg(), "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m := store.NewSQLTxManager(db)
	err = m.Do(context.Background(), func(ctx context.Context) error {
		return s.Debit(ctx, "u-1", 700)
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitInsufficientBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)

	// The guard in the WHERE clause matches no row when funds are short.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE point_balances`).
		WithArgs(int64(9999), sqlmock.AnyArg(), "u-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	m := store.NewSQLTxManager(db)
	err = m.Do(context.Background(), func(ctx context.Context) error {
		return s.Debit(ctx, "u-1", 9999)
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDebitRequiresTransaction(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)

	err = s.Debit(context.Background(), "u-1", 100)
	assert.ErrorIs(t, err, store.ErrNoTransaction)
}

func TestCreditAndMarkRefunded(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE point_balances SET balance = balance \+ \$1, updated_at = \$2 WHERE user_id = \$3`).
		WithArgs(int64(700), sqlmock.AnyArg(), "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE payments SET refunded = TRUE WHERE order_id = \$1`).
		WithArgs("o-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m := store.NewSQLTxManager(db)
	err = m.Do(context.Background(), func(ctx context.Context) error {
		if err := s.Credit(ctx, "u-1", 700); err != nil {
			return err
		}
		return s.MarkRefunded(ctx, "o-1")
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPayment(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewPostgresStore(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"order_id", "user_id", "amount", "refunded", "created_at"}).
		AddRow("o-1", "u-1", int64(700), false, now)

	mock.ExpectQuery(`SELECT order_id, user_id, amount, refunded, created_at FROM payments WHERE order_id = \$1`).
		WithArgs("o-1").
		WillReturnRows(rows)

	p, err := s.GetPayment(context.Background(), "o-1")
	assert.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, int64(700), p.Amount)
	assert.False(t, p.Refunded)

	assert.NoError(t, mock.ExpectationsWereMet())
}
