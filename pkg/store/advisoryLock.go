package store

import (
	"context"
	"database/sql"
)

// AdvisoryLock is a distributed mutual-exclusion primitive backed by postgres
// session advisory locks. The slow outbox sweep uses it so that only one
// worker instance retries at a time; the coupon batch subsystem shares it to
// avoid duplicate batch runs across instances.
type AdvisoryLock struct {
	db *sql.DB
}

func NewAdvisoryLock(db *sql.DB) *AdvisoryLock {
	return &AdvisoryLock{db: db}
}

// TryAcquire attempts to take the named lock without blocking. When acquired
// it returns a release function that must be called to free the lock; the
// lock is session-scoped, so the release also returns the underlying
// connection to the pool.
func (l *AdvisoryLock) TryAcquire(ctx context.Context, name string) (release func(), acquired bool, err error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, err
	}

	var got bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, name).Scan(&got); err != nil {
		conn.Close()
		return nil, false, err
	}
	if !got {
		conn.Close()
		return nil, false, nil
	}

	release = func() {
		// Unlock on the same session that acquired the lock.
		conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, name)
		conn.Close()
	}
	return release, true, nil
}
