package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dias221467/Habit_Streaks/internal/jobs"
)

const sweepTimeout = 10 * time.Minute

// StartReconcileCronJobs schedules the streak sweep. An empty schedule or
// "off" disables it and returns a nil scheduler.
func StartReconcileCronJobs(sweeper *jobs.StreakSweeper, schedule string) (*cron.Cron, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" || strings.EqualFold(schedule, "off") {
		logrus.Info("Streak sweep disabled")
		return nil, nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if err := sweeper.RunSweep(ctx); err != nil {
			logrus.WithError(err).Error("RunSweep failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}

	c.Start()
	logrus.WithField("schedule", schedule).Info("Streak sweep scheduled")
	return c, nil
}
