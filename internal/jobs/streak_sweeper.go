package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Reconciler recomputes the cached streak fields of every habit.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

// StreakSweeper periodically brings every habit's cached streak back in
// line with its completion log, so that streaks broken by inactivity drop
// to zero without a new completion.
type StreakSweeper struct {
	Cache Reconciler
}

// NewStreakSweeper creates a new instance of StreakSweeper
func NewStreakSweeper(cache Reconciler) *StreakSweeper {
	return &StreakSweeper{Cache: cache}
}

// RunSweep reconciles all habits once.
func (s *StreakSweeper) RunSweep(ctx context.Context) error {
	start := time.Now()
	updated, err := s.Cache.ReconcileAll(ctx)

	entry := logrus.WithFields(logrus.Fields{
		"updated":  updated,
		"duration": time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Warn("Streak sweep finished with errors")
		return fmt.Errorf("streak sweep: %w", err)
	}
	entry.Info("Streak sweep completed")
	return nil
}
