package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dias221467/Habit_Streaks/internal/jobs"
)

type countingReconciler struct {
	calls atomic.Int32
}

func (c *countingReconciler) ReconcileAll(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestStartReconcileCronJobs_Disabled(t *testing.T) {
	for _, schedule := range []string{"", "off", "OFF"} {
		c, err := StartReconcileCronJobs(jobs.NewStreakSweeper(&countingReconciler{}), schedule)
		assert.NoError(t, err)
		assert.Nil(t, c)
	}
}

func TestStartReconcileCronJobs_InvalidSchedule(t *testing.T) {
	_, err := StartReconcileCronJobs(jobs.NewStreakSweeper(&countingReconciler{}), "every now and then")
	assert.Error(t, err)
}

func TestStartReconcileCronJobs_Runs(t *testing.T) {
	rec := &countingReconciler{}
	c, err := StartReconcileCronJobs(jobs.NewStreakSweeper(rec), "@every 1s")
	require.NoError(t, err)
	require.NotNil(t, c)
	defer c.Stop()

	assert.Len(t, c.Entries(), 1)
	assert.Eventually(t, func() bool { return rec.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
