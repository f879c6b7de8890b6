// Package retention prunes old usage records on a schedule.
//
// Usage records are append-only and would otherwise grow without bound.
// Pruning is disabled unless a retention period is configured; it must stay
// longer than the longest quota window (a month) so no live count shrinks.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/HSahraye/immigration-helper-ai-sub000/internal/metrics"
)

// MinRetention is the shortest retention accepted: longer than any quota
// window, so pruning never changes a windowed count.
const MinRetention = 32 * 24 * time.Hour

// pruneTimeout bounds a single pruning run.
const pruneTimeout = 5 * time.Minute

// Pruner deletes records older than the cutoff.
type Pruner interface {
	PruneBefore(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler runs usage pruning on a cron schedule.
type Scheduler struct {
	cron      *cron.Cron
	pruner    Pruner
	retention time.Duration
	schedule  string
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler creates a new scheduler. The job is not registered until Start.
func NewScheduler(pruner Pruner, retention time.Duration, schedule string, logger *slog.Logger) (*Scheduler, error) {
	if retention < MinRetention {
		return nil, fmt.Errorf("usage retention %s is shorter than the minimum %s", retention, MinRetention)
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:      c,
		pruner:    pruner,
		retention: retention,
		schedule:  schedule,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Start registers the pruning job and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("schedule usage pruning %q: %w", s.schedule, err)
	}
	s.logger.Info("scheduled usage pruning", "schedule", s.schedule, "retention", s.retention)
	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler. The returned context is done
// once a running job has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	if _, err := s.PruneOnce(ctx); err != nil {
		s.logger.Error("usage pruning failed", "error", err)
	}
}

// PruneOnce deletes every record older than the retention period.
func (s *Scheduler) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)

	deleted, err := s.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.RecordsPruned(deleted)
	s.logger.Info("pruned usage records", "deleted", deleted, "cutoff", cutoff)
	return deleted, nil
}
