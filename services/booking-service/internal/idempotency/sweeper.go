package idempotency

import (
	"context"
	"log/slog"
	"time"
)

type ExpiredDeleter interface {
	DeleteExpiredIdempotency(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type Sweeper struct {
	store     ExpiredDeleter
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewSweeper(store ExpiredDeleter, logger *slog.Logger, interval time.Duration, batchSize int) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Sweeper{store: store, logger: logger, interval: interval, batchSize: batchSize, now: time.Now}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("idempotency sweep failed", "err", err)
				continue
			}
			if n > 0 {
				s.logger.Info("idempotency records expired", "deleted", n)
			}
		}
	}
}

// Sweep deletes expired records in batches until a short batch signals the
// backlog is gone.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now()
	var total int64
	for {
		n, err := s.store.DeleteExpiredIdempotency(ctx, cutoff, s.batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(s.batchSize) || ctx.Err() != nil {
			return total, nil
		}
	}
}
