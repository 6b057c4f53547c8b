package outbox

import "context"

// Ledger captures outbound events durably. Append must be called inside the
// caller's active local transaction so that "state changed" and "event
// exists" commit atomically; implementations reject calls made outside a
// transaction.
type Ledger interface {
	Append(ctx context.Context, entry *Entry) error
}

// Repository extends the ledger with the relay-side operations used by the
// outbox publisher.
type Repository interface {
	Ledger
	// FetchPending returns first-attempt entries, oldest first, up to limit.
	FetchPending(ctx context.Context, limit int) ([]Entry, error)
	// FetchRetryable returns entries with at least one failed attempt and a
	// retry count below maxRetries, oldest first, up to limit.
	FetchRetryable(ctx context.Context, limit, maxRetries int) ([]Entry, error)
	// MarkPublished records a confirmed broker acknowledgment.
	MarkPublished(ctx context.Context, entryID string) error
	// MarkFailed moves an entry to its terminal, operator-visible state.
	MarkFailed(ctx context.Context, entryID, errorMessage string) error
	// IncrementRetry records a failed publish attempt.
	IncrementRetry(ctx context.Context, entryID, errorMessage string) error
}
