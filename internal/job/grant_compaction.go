package job

import (
	"context"
	"time"

	"rewardledger/internal/clock"
	"rewardledger/internal/infrastructure/metrics"
	"rewardledger/internal/logging"
	"rewardledger/internal/repository"

	"github.com/rs/zerolog"
)

// GrantCompactionJob deletes grant rows that expired more than grace ago.
// Expiry is evaluated at read time, so this only reclaims storage.
type GrantCompactionJob struct {
	grants   repository.GrantCompactor
	clock    clock.Clock
	logger   zerolog.Logger
	stopCh   chan struct{}
	interval time.Duration
	grace    time.Duration
}

func NewGrantCompactionJob(grants repository.GrantCompactor, clk clock.Clock, interval, grace time.Duration, logger zerolog.Logger) *GrantCompactionJob {
	if clk == nil {
		clk = clock.System{}
	}
	return &GrantCompactionJob{
		grants:   grants,
		clock:    clk,
		logger:   logging.Component(logger, "grant-compaction"),
		stopCh:   make(chan struct{}),
		interval: interval,
		grace:    grace,
	}
}

func (j *GrantCompactionJob) Start(ctx context.Context) {
	j.logger.Info().Dur("interval", j.interval).Dur("grace", j.grace).Msg("grant compaction started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("context done, grant compaction exiting")
			return
		case <-j.stopCh:
			j.logger.Info().Msg("grant compaction stopped")
			return
		case <-ticker.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.Error().Err(err).Msg("grant compaction pass failed")
			}
		}
	}
}

func (j *GrantCompactionJob) Stop() {
	close(j.stopCh)
}

// RunOnce performs one compaction pass and returns the rows removed.
func (j *GrantCompactionJob) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.clock.Now().Add(-j.grace)
	n, err := j.grants.DeleteExpiredGrants(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.GrantsCompacted(n)
		j.logger.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("expired grants compacted")
	}
	return n, nil
}
