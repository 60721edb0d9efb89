package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"

	"github.com/Dias221467/Habit_Streaks/internal/models"
	"github.com/Dias221467/Habit_Streaks/internal/repository"
	"github.com/Dias221467/Habit_Streaks/internal/streak"
	"github.com/Dias221467/Habit_Streaks/pkg/logger"
)

// recomputeTimeout bounds one shared recomputation.
const recomputeTimeout = 30 * time.Second

// AggregateCache keeps the streak_count and last_completed fields of each
// habit in line with its completion log. Every update recomputes from the
// full log and overwrites; nothing is ever incremented.
type AggregateCache struct {
	habits      repository.HabitStore
	completions repository.CompletionStore
	loc         *time.Location
	now         func() time.Time

	group singleflight.Group
	locks sync.Map // habit hex id -> *sync.Mutex
}

func NewAggregateCache(habits repository.HabitStore, completions repository.CompletionStore, loc *time.Location) *AggregateCache {
	if loc == nil {
		loc = time.UTC
	}
	return &AggregateCache{
		habits:      habits,
		completions: completions,
		loc:         loc,
		now:         time.Now,
	}
}

// OnCompletionRecorded refreshes the cached fields after a completion at the
// given time was appended.
func (c *AggregateCache) OnCompletionRecorded(ctx context.Context, habitID primitive.ObjectID, at time.Time) (streak.Metrics, error) {
	// a flight already running may have read the log before this append
	c.group.Forget(habitID.Hex())
	return c.do(ctx, habitID, at)
}

// Reconcile recomputes the cached fields of one habit. Concurrent calls for
// the same habit share a single recomputation.
func (c *AggregateCache) Reconcile(ctx context.Context, habitID primitive.ObjectID) (streak.Metrics, error) {
	return c.do(ctx, habitID, time.Time{})
}

// ReconcileAll recomputes every habit and returns how many were updated.
// Failures are logged and skipped; the joined error reports them.
func (c *AggregateCache) ReconcileAll(ctx context.Context) (int, error) {
	habits, err := c.habits.ListAllHabits(ctx, 0)
	if err != nil {
		return 0, err
	}

	var (
		updated int
		errs    []error
	)
	for _, h := range habits {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := c.Reconcile(ctx, h.ID); err != nil {
			logger.Log.WithError(err).WithField("habit_id", h.ID.Hex()).Warn("Reconcile failed")
			errs = append(errs, fmt.Errorf("habit %s: %w", h.ID.Hex(), err))
			continue
		}
		updated++
	}

	logger.Log.WithFields(logrus.Fields{
		"habits":  len(habits),
		"updated": updated,
	}).Info("Aggregate sweep finished")
	return updated, errors.Join(errs...)
}

// Forget drops in-process state held for a deleted habit.
func (c *AggregateCache) Forget(habitID primitive.ObjectID) {
	c.group.Forget(habitID.Hex())
	c.locks.Delete(habitID.Hex())
}

// do runs one shared recomputation per habit. The flight is detached from
// the caller that started it so that one caller giving up does not fail the
// others; each caller only stops waiting on its own ctx.
func (c *AggregateCache) do(ctx context.Context, habitID primitive.ObjectID, at time.Time) (streak.Metrics, error) {
	ch := c.group.DoChan(habitID.Hex(), func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recomputeTimeout)
		defer cancel()
		return c.recompute(flightCtx, habitID, at)
	})

	select {
	case <-ctx.Done():
		return streak.Metrics{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return streak.Metrics{}, res.Err
		}
		return res.Val.(streak.Metrics), nil
	}
}

func (c *AggregateCache) recompute(ctx context.Context, habitID primitive.ObjectID, at time.Time) (streak.Metrics, error) {
	mu := c.lockFor(habitID)
	mu.Lock()
	defer mu.Unlock()

	habit, err := c.habits.GetHabitByID(ctx, habitID)
	if err != nil {
		return streak.Metrics{}, err
	}
	completions, err := c.completions.ListCompletionsByHabit(ctx, habitID, models.TimeRange{})
	if err != nil {
		return streak.Metrics{}, err
	}

	metrics := streak.CalculateCompletions(completions, streak.OptionsFor(habit.Frequency, c.loc, c.now()))

	lastCompleted := metrics.LastCompleted
	if at.After(lastCompleted) {
		lastCompleted = at
	}
	if lastCompleted.IsZero() {
		lastCompleted = models.NeverCompleted
	}

	if err := c.habits.UpdateAggregate(ctx, habitID, metrics.CurrentStreak, lastCompleted); err != nil {
		return streak.Metrics{}, err
	}

	logger.Log.WithFields(logrus.Fields{
		"habit_id":     habitID.Hex(),
		"streak_count": metrics.CurrentStreak,
		"total":        metrics.TotalCompletions,
	}).Debug("Habit aggregate recomputed")
	return metrics, nil
}

func (c *AggregateCache) lockFor(habitID primitive.ObjectID) *sync.Mutex {
	mu, _ := c.locks.LoadOrStore(habitID.Hex(), &sync.Mutex{})
	return mu.(*sync.Mutex)
}
