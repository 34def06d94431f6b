package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const purgeTimeout = 30 * time.Second

// Purger deletes records older than a cutoff.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ScheduleRetention registers a purge of everything older than maxAge on the
// given cron schedule (standard 5-field expression or descriptors such as
// "@hourly"). The returned scheduler is not started; the caller owns Start
// and Stop.
func ScheduleRetention(p Purger, schedule string, maxAge time.Duration, now func() time.Time) (*cron.Cron, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", maxAge)
	}
	if now == nil {
		now = time.Now
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		RunRetention(p, now().Add(-maxAge))
	})
	if err != nil {
		return nil, fmt.Errorf("parsing purge schedule %q: %w", schedule, err)
	}
	return c, nil
}

// RunRetention performs one purge pass and logs its outcome.
func RunRetention(p Purger, cutoff time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	n, err := p.PurgeBefore(ctx, cutoff)
	if err != nil {
		slog.Error("retention purge failed", "cutoff", cutoff, "error", err)
		return
	}
	slog.Info("retention purge complete", "cutoff", cutoff, "rows_deleted", n)
}
