package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Job releases review claims whose holders walked away. A claim older than
// the TTL is cleared so the task becomes claimable again.
type Job struct {
	releaser ClaimReleaser
	claimTTL time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

type ClaimReleaser interface {
	ReleaseExpiredClaims(ctx context.Context, cutoff time.Time) (int64, error)
}

func NewStaleClaimJob(releaser ClaimReleaser, claimTTL time.Duration, logger *zap.Logger) *Job {
	if claimTTL <= 0 {
		claimTTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		releaser: releaser,
		claimTTL: claimTTL,
		now:      time.Now,
		logger:   logger,
	}
}

func (j *Job) Run(ctx context.Context) error {
	if j.releaser == nil {
		return fmt.Errorf("cleanup job claim releaser is not configured")
	}

	cutoff := j.now().UTC().Add(-j.claimTTL)
	released, err := j.releaser.ReleaseExpiredClaims(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("release stale review claims: %w", err)
	}
	if released > 0 {
		j.logger.Info("released stale review claims", zap.Int64("released", released))
	}

	return nil
}

// Start runs the job on a fixed interval until the context is cancelled.
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Warn("stale claim cleanup failed", zap.Error(err))
			}
		}
	}
}
