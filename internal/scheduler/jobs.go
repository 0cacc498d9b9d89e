package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ditm/internal/modules/tracking"
)

const refreshTimeout = 5 * time.Minute

// RefreshJob revalues every open position against current market quotes.
type RefreshJob struct {
	tracking *tracking.Service
	log      zerolog.Logger
}

// NewRefreshJob creates a position refresh job
func NewRefreshJob(tracking *tracking.Service, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		tracking: tracking,
		log:      log.With().Str("job", "position_refresh").Logger(),
	}
}

// Name implements Job
func (j *RefreshJob) Name() string {
	return "position_refresh"
}

// Run implements Job
func (j *RefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	result, err := j.tracking.RefreshAll(ctx)
	if err != nil {
		return err
	}

	j.log.Info().
		Int("refreshed", result.Refreshed).
		Int("expired", result.Expired).
		Int("failed", len(result.Failed)).
		Msg("Position refresh finished")

	return nil
}
