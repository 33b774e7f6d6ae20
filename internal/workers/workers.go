package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type Rollup interface {
	RollupDaily(ctx context.Context, day time.Time) (int64, error)
}

// AggregateDailyStats recomputes the rollups for day and the day before,
// so calls recorded just after midnight are picked up by the next run.
func AggregateDailyStats(ctx context.Context, r Rollup, day time.Time) error {
	logger := log.Ctx(ctx).With().Str("component", "workers").Logger()

	for _, d := range []time.Time{day.AddDate(0, 0, -1), day} {
		n, err := r.RollupDaily(ctx, d)
		if err != nil {
			return err
		}
		logger.Info().Str("date", d.UTC().Format(time.DateOnly)).Int64("rows", n).Msg("daily stats aggregated")
	}
	return nil
}

// NextRun returns how long to wait until hour:00 UTC.
func NextRun(now time.Time, hour int) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// RunDailyStats aggregates once at start, then daily at hour:00 UTC, until
// ctx is cancelled.
func RunDailyStats(ctx context.Context, r Rollup, hour int) {
	logger := log.Ctx(ctx).With().Str("component", "workers").Logger()

	if err := AggregateDailyStats(ctx, r, time.Now().UTC()); err != nil {
		logger.Error().Err(err).Msg("daily stats aggregation failed")
	}

	for {
		wait := NextRun(time.Now(), hour)
		logger.Debug().Dur("sleep", wait).Msg("daily stats worker sleeping")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := AggregateDailyStats(ctx, r, time.Now().UTC()); err != nil {
			logger.Error().Err(err).Msg("daily stats aggregation failed")
		}
	}
}
