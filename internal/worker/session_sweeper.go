package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/care-access/internal/repository"
	"github.com/jwalitptl/care-access/pkg/clock"
	"github.com/jwalitptl/care-access/pkg/metrics"
)

// SessionSweeper deletes verification sessions that expired more than
// retention ago. Session validity never depends on it running.
type SessionSweeper struct {
	repo      repository.VerificationSessionRepository
	clock     clock.Clock
	metrics   *metrics.Metrics
	retention time.Duration
	interval  time.Duration
}

func NewSessionSweeper(repo repository.VerificationSessionRepository, clk clock.Clock, m *metrics.Metrics, retention, interval time.Duration) *SessionSweeper {
	return &SessionSweeper{
		repo:      repo,
		clock:     clk,
		metrics:   m,
		retention: retention,
		interval:  interval,
	}
}

func (w *SessionSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				log.Error().Err(err).Msg("Session sweep failed")
			}
		}
	}
}

func (w *SessionSweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := w.clock.Now().Add(-w.retention)

	rows, err := w.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep verification sessions: %w", err)
	}

	w.metrics.SessionsSwept.Add(float64(rows))
	if rows > 0 {
		log.Info().Int64("rows", rows).Time("cutoff", cutoff).Msg("Swept expired verification sessions")
	}
	return rows, nil
}
