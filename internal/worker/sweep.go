// Package worker runs the background jobs: the expiry sweep and the event forwarder.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredTokenDeleter removes refresh tokens that expired before a cutoff.
type ExpiredTokenDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// StaleChallengeDeleter removes verification challenges that expired before a cutoff.
type StaleChallengeDeleter interface {
	Sweep(ctx context.Context, before time.Time) (int64, error)
}

// Sweeper deletes refresh tokens and challenges once they have been expired for longer than
// the retention window. Rows inside the window are kept for audit and debugging.
type Sweeper struct {
	tokens     ExpiredTokenDeleter
	challenges StaleChallengeDeleter
	retention  time.Duration
	now        func() time.Time
	log        *slog.Logger
}

// NewSweeper returns a Sweeper. A nil log uses slog.Default.
func NewSweeper(tokens ExpiredTokenDeleter, challenges StaleChallengeDeleter, retention time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{tokens: tokens, challenges: challenges, retention: retention, now: time.Now, log: log}
}

// SweepOnce runs one pass. A failure in one table does not skip the other.
func (s *Sweeper) SweepOnce(ctx context.Context) (tokens, challenges int64, err error) {
	cutoff := s.now().UTC().Add(-s.retention)
	var tokErr, chErr error
	if s.tokens != nil {
		tokens, tokErr = s.tokens.DeleteExpired(ctx, cutoff)
		if tokErr != nil {
			s.log.Error("sweep refresh tokens failed", "op", "sweep", "error", tokErr)
		}
	}
	if s.challenges != nil {
		challenges, chErr = s.challenges.Sweep(ctx, cutoff)
		if chErr != nil {
			s.log.Error("sweep challenges failed", "op", "sweep", "error", chErr)
		}
	}
	if tokErr != nil {
		return tokens, challenges, tokErr
	}
	return tokens, challenges, chErr
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	pass := func() {
		tokens, challenges, err := s.SweepOnce(ctx)
		if err == nil {
			s.log.Info("sweep done", "op", "sweep", "refresh_tokens", tokens, "challenges", challenges)
		}
	}
	pass()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pass()
		}
	}
}
