package idempotency

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically removes expired idempotency records.
type Sweeper struct {
	store    Store
	interval time.Duration
	log      zerolog.Logger
}

func NewSweeper(store Store, interval time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{store: store, interval: interval, log: log}
}

// Run blocks until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.store.DeleteExpired(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("idempotency sweep failed")
				continue
			}
			if deleted > 0 {
				s.log.Debug().Int64("deleted", deleted).Msg("expired idempotency records removed")
			}
		}
	}
}
