package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dias221467/Habit_Streaks/internal/apperrors"
	"github.com/Dias221467/Habit_Streaks/internal/models"
	"github.com/Dias221467/Habit_Streaks/internal/ranking"
	"github.com/Dias221467/Habit_Streaks/internal/repository"
	"github.com/Dias221467/Habit_Streaks/internal/streak"
)

// StreakService derives read-only streak metrics straight from the
// completion log. It never writes the cached habit fields.
type StreakService struct {
	habits      repository.HabitStore
	completions repository.CompletionStore
	loc         *time.Location
	now         func() time.Time
}

func NewStreakService(habits repository.HabitStore, completions repository.CompletionStore, loc *time.Location) *StreakService {
	if loc == nil {
		loc = time.UTC
	}
	return &StreakService{habits: habits, completions: completions, loc: loc, now: time.Now}
}

// MetricsForHabit computes the metrics of one habit owned by ownerID.
func (s *StreakService) MetricsForHabit(ctx context.Context, ownerID, habitID primitive.ObjectID) (streak.Metrics, error) {
	habit, err := s.habits.GetHabitByID(ctx, habitID)
	if err != nil {
		return streak.Metrics{}, err
	}
	if habit.UserID != ownerID {
		return streak.Metrics{}, apperrors.ErrNotOwner
	}
	completions, err := s.completions.ListCompletionsByHabit(ctx, habitID, models.TimeRange{})
	if err != nil {
		return streak.Metrics{}, err
	}
	return streak.CalculateCompletions(completions, streak.OptionsFor(habit.Frequency, s.loc, s.now())), nil
}

// MetricsForOwner loads the habits of ownerID with the metrics of each, using
// one read of the owner's completion log.
func (s *StreakService) MetricsForOwner(ctx context.Context, ownerID primitive.ObjectID) ([]models.Habit, map[primitive.ObjectID]streak.Metrics, error) {
	metrics := map[primitive.ObjectID]streak.Metrics{}
	if ownerID.IsZero() {
		return []models.Habit{}, metrics, nil
	}

	habits, err := s.habits.ListHabitsByOwner(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}
	completions, err := s.completions.ListCompletionsByOwner(ctx, ownerID, models.TimeRange{})
	if err != nil {
		return nil, nil, err
	}

	byHabit := make(map[primitive.ObjectID][]models.Completion, len(habits))
	for _, c := range completions {
		byHabit[c.HabitID] = append(byHabit[c.HabitID], c)
	}

	now := s.now()
	for _, h := range habits {
		metrics[h.ID] = streak.CalculateCompletions(byHabit[h.ID], streak.OptionsFor(h.Frequency, s.loc, now))
	}
	return habits, metrics, nil
}

// Leaderboard ranks the habits of ownerID by best streak.
func (s *StreakService) Leaderboard(ctx context.Context, ownerID primitive.ObjectID) ([]ranking.Entry, error) {
	habits, metrics, err := s.MetricsForOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return ranking.Rank(habits, metrics), nil
}
