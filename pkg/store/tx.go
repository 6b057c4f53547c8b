package store

import (
	"context"
	"database/sql"
	"errors"

	"go.opentelemetry.io/otel"
)

// ErrNoTransaction is returned by repositories whose writes must happen
// inside the caller's local transaction when no transaction is active.
var ErrNoTransaction = errors.New("store: no active transaction in context")

type txKey struct{}

// TxManager runs a function inside a single local database transaction. The
// transaction is carried in the context so every repository call made by fn
// joins the same commit: the business mutation, the idempotency record and
// the outbox append either all commit or all roll back.
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLTxManager is the database/sql implementation of TxManager.
type SQLTxManager struct {
	db *sql.DB
}

func NewSQLTxManager(db *sql.DB) *SQLTxManager {
	return &SQLTxManager{db: db}
}

func (m *SQLTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFrom(ctx); ok {
		// Already inside a transaction, join it.
		return fn(ctx)
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "Transaction")
	defer span.End()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		span.RecordError(err)
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// TxFrom extracts the active transaction from the context, if any.
func TxFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// QuerierFrom returns the active transaction when one is carried in the
// context, and the bare connection pool otherwise.
func QuerierFrom(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := TxFrom(ctx); ok {
		return tx
	}
	return db
}
