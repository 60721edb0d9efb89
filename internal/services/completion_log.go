package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dias221467/Habit_Streaks/internal/apperrors"
	"github.com/Dias221467/Habit_Streaks/internal/models"
	"github.com/Dias221467/Habit_Streaks/internal/repository"
	"github.com/Dias221467/Habit_Streaks/pkg/logger"
)

// maxClockSkew is how far in the future a client-supplied completion time may lie.
const maxClockSkew = time.Minute

// CompletionLog is the append-only record of habit completions.
type CompletionLog struct {
	habits      repository.HabitStore
	completions repository.CompletionStore
	loc         *time.Location
	now         func() time.Time
}

// NewCompletionLog creates a CompletionLog whose day keys are computed in loc.
func NewCompletionLog(habits repository.HabitStore, completions repository.CompletionStore, loc *time.Location) *CompletionLog {
	if loc == nil {
		loc = time.UTC
	}
	return &CompletionLog{
		habits:      habits,
		completions: completions,
		loc:         loc,
		now:         time.Now,
	}
}

// Append records that ownerID performed habitID at the given time (now when
// zero). A second completion on the same calendar day returns the stored
// row together with apperrors.ErrDuplicateCompletion.
func (l *CompletionLog) Append(ctx context.Context, habitID, ownerID primitive.ObjectID, at time.Time) (*models.Completion, error) {
	if ownerID.IsZero() {
		return nil, apperrors.ErrNotOwner
	}

	now := l.now()
	if at.IsZero() {
		at = now
	}
	if at.After(now.Add(maxClockSkew)) {
		return nil, fmt.Errorf("%w: completion time lies in the future", apperrors.ErrInvalidCompletion)
	}

	habit, err := l.habits.GetHabitByID(ctx, habitID)
	if err != nil {
		return nil, err
	}
	if habit.UserID != ownerID {
		logger.Log.WithFields(logrus.Fields{
			"habit_id": habitID.Hex(),
			"user_id":  ownerID.Hex(),
		}).Warn("Completion rejected for non-owner")
		return nil, apperrors.ErrNotOwner
	}

	completion := &models.Completion{
		UserID:      ownerID,
		HabitID:     habitID,
		CompletedAt: at.UTC(),
		Day:         models.DayKey(at, l.loc),
	}
	stored, err := l.completions.InsertCompletion(ctx, completion)
	if errors.Is(err, apperrors.ErrDuplicateCompletion) {
		logger.Log.WithFields(logrus.Fields{
			"habit_id": habitID.Hex(),
			"day":      completion.Day,
		}).Info("Habit already completed for the day")
		return stored, err
	}
	if err != nil {
		logger.Log.WithError(err).WithField("habit_id", habitID.Hex()).Error("Failed to append completion")
		return nil, fmt.Errorf("failed to append completion: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"habit_id":      habitID.Hex(),
		"completion_id": stored.ID.Hex(),
		"day":           stored.Day,
	}).Info("Completion appended")
	return stored, nil
}

// ListByHabit returns the completions of one habit inside window, unordered.
func (l *CompletionLog) ListByHabit(ctx context.Context, habitID primitive.ObjectID, window models.TimeRange) ([]models.Completion, error) {
	if habitID.IsZero() {
		return []models.Completion{}, nil
	}
	return l.completions.ListCompletionsByHabit(ctx, habitID, window)
}

// ListByOwner returns every completion of ownerID inside window. A zero owner
// yields an empty result.
func (l *CompletionLog) ListByOwner(ctx context.Context, ownerID primitive.ObjectID, window models.TimeRange) ([]models.Completion, error) {
	if ownerID.IsZero() {
		return []models.Completion{}, nil
	}
	return l.completions.ListCompletionsByOwner(ctx, ownerID, window)
}

// CompletedToday returns the distinct habits ownerID completed since local
// midnight, sorted by id.
func (l *CompletionLog) CompletedToday(ctx context.Context, ownerID primitive.ObjectID) ([]primitive.ObjectID, error) {
	completions, err := l.ListByOwner(ctx, ownerID, models.TimeRange{From: StartOfDay(l.now(), l.loc)})
	if err != nil {
		return nil, err
	}

	seen := make(map[primitive.ObjectID]bool, len(completions))
	ids := []primitive.ObjectID{}
	for _, c := range completions {
		if seen[c.HabitID] {
			continue
		}
		seen[c.HabitID] = true
		ids = append(ids, c.HabitID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Hex() < ids[j].Hex() })
	return ids, nil
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
