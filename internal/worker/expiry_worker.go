package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// ExpirySweepTimeout bounds a single sweep, including the one run on shutdown.
const ExpirySweepTimeout = 10 * time.Second

// Expirer closes attempts whose time ran out. service.AttemptService
// satisfies it.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int, error)
}

// ExpiryWorker periodically closes attempts abandoned past their deadline, so
// a student who never submits still ends up with a FAIL result.
type ExpiryWorker struct {
	expirer  Expirer
	interval time.Duration
	log      zerolog.Logger
}

func NewExpiryWorker(expirer Expirer, interval time.Duration, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		expirer:  expirer,
		interval: interval,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop
// ----------------------------------------------------------------

func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Running final sweep...")
			w.sweep(context.Background())
			return

		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, ExpirySweepTimeout)
	defer cancel()

	n, err := w.expirer.ExpireOverdue(ctx)
	if err != nil {
		if parent.Err() == nil {
			w.log.Error().Err(err).Msg("Expiry sweep failed")
		}
		return
	}
	if n > 0 {
		w.log.Info().Int("expired", n).Msg("Closed overdue attempts")
	}
}
