package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dias221467/Habit_Streaks/internal/apperrors"
	"github.com/Dias221467/Habit_Streaks/internal/models"
	"github.com/Dias221467/Habit_Streaks/internal/realtime"
	"github.com/Dias221467/Habit_Streaks/internal/repository"
	"github.com/Dias221467/Habit_Streaks/internal/streak"
	"github.com/Dias221467/Habit_Streaks/pkg/logger"
)

const maxTitleLength = 120

// HabitInput carries the user-editable fields of a new habit.
type HabitInput struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Frequency   models.Frequency `json:"frequency"`
}

// CompletionResult is the outcome of completing a habit. Duplicate is set
// when the habit had already been completed that day; the call is then a
// no-op and Completion is the earlier row.
type CompletionResult struct {
	Completion *models.Completion `json:"completion"`
	Duplicate  bool               `json:"duplicate"`
	Metrics    streak.Metrics     `json:"metrics"`
}

// HabitService encapsulates the business logic for habits and their completions.
type HabitService struct {
	habits      repository.HabitStore
	completions repository.CompletionStore
	log         *CompletionLog
	cache       *AggregateCache
	publisher   realtime.Publisher
	now         func() time.Time
}

// NewHabitService creates a HabitService. publisher may be nil when changes
// reach subscribers some other way.
func NewHabitService(habits repository.HabitStore, completions repository.CompletionStore, log *CompletionLog, cache *AggregateCache, publisher realtime.Publisher) *HabitService {
	return &HabitService{
		habits:      habits,
		completions: completions,
		log:         log,
		cache:       cache,
		publisher:   publisher,
		now:         time.Now,
	}
}

// CreateHabit validates input and stores a new habit for ownerID.
func (s *HabitService) CreateHabit(ctx context.Context, ownerID primitive.ObjectID, input HabitInput) (*models.Habit, error) {
	if ownerID.IsZero() {
		return nil, apperrors.ErrNotOwner
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		logger.Log.Warn("Habit title is empty during creation")
		return nil, fmt.Errorf("%w: title is required", apperrors.ErrInvalidHabit)
	}
	if len(title) > maxTitleLength {
		return nil, fmt.Errorf("%w: title is too long", apperrors.ErrInvalidHabit)
	}

	frequency := input.Frequency
	if frequency == "" {
		frequency = models.FrequencyDaily
	}
	if !frequency.Valid() {
		return nil, fmt.Errorf("%w: unknown frequency %q", apperrors.ErrInvalidHabit, frequency)
	}

	now := s.now().UTC()
	habit := &models.Habit{
		UserID:        ownerID,
		Title:         title,
		Description:   strings.TrimSpace(input.Description),
		Frequency:     frequency,
		StreakCount:   0,
		LastCompleted: models.NeverCompleted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := s.habits.CreateHabit(ctx, habit)
	if err != nil {
		logger.Log.WithError(err).Error("Service failed to create habit")
		return nil, fmt.Errorf("failed to create habit: %w", err)
	}

	s.publish(realtime.NewNotification(repository.HabitsCollection, created.ID, realtime.OpCreate, ownerID, created.ID))
	logger.Log.WithField("habit_id", created.ID.Hex()).Info("Habit created in service layer")
	return created, nil
}

// ListHabits returns the habits of ownerID. A zero owner yields an empty list.
func (s *HabitService) ListHabits(ctx context.Context, ownerID primitive.ObjectID) ([]models.Habit, error) {
	if ownerID.IsZero() {
		return []models.Habit{}, nil
	}
	return s.habits.ListHabitsByOwner(ctx, ownerID)
}

// GetHabit returns a habit owned by ownerID.
func (s *HabitService) GetHabit(ctx context.Context, ownerID, habitID primitive.ObjectID) (*models.Habit, error) {
	habit, err := s.habits.GetHabitByID(ctx, habitID)
	if err != nil {
		return nil, err
	}
	if habit.UserID != ownerID {
		return nil, apperrors.ErrNotOwner
	}
	return habit, nil
}

// DeleteHabit removes a habit and its whole completion log.
func (s *HabitService) DeleteHabit(ctx context.Context, ownerID, habitID primitive.ObjectID) error {
	if _, err := s.GetHabit(ctx, ownerID, habitID); err != nil {
		return err
	}

	if err := s.habits.DeleteHabit(ctx, habitID); err != nil {
		logger.Log.WithError(err).WithField("habit_id", habitID.Hex()).Error("Failed to delete habit")
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	deleted, err := s.completions.DeleteCompletionsByHabit(ctx, habitID)
	if err != nil {
		// orphaned completions are unreachable once the habit is gone
		logger.Log.WithError(err).WithField("habit_id", habitID.Hex()).Warn("Failed to delete completions of removed habit")
	}
	s.cache.Forget(habitID)

	s.publish(realtime.NewNotification(repository.HabitsCollection, habitID, realtime.OpDelete, ownerID, habitID))
	logger.Log.WithFields(logrus.Fields{
		"habit_id":    habitID.Hex(),
		"completions": deleted,
	}).Info("Habit deleted")
	return nil
}

// CompleteHabit appends a completion and refreshes the habit's cached
// streak. Completing a habit twice on the same day is a no-op.
func (s *HabitService) CompleteHabit(ctx context.Context, ownerID, habitID primitive.ObjectID, at time.Time) (*CompletionResult, error) {
	completion, err := s.log.Append(ctx, habitID, ownerID, at)
	duplicate := errors.Is(err, apperrors.ErrDuplicateCompletion)
	if err != nil && !duplicate {
		return nil, err
	}
	result := &CompletionResult{Completion: completion, Duplicate: duplicate}

	if duplicate {
		metrics, err := s.cache.Reconcile(ctx, habitID)
		if err != nil {
			logger.Log.WithError(err).WithField("habit_id", habitID.Hex()).Warn("Reconcile after duplicate completion failed")
		}
		result.Metrics = metrics
		return result, nil
	}

	metrics, err := s.cache.OnCompletionRecorded(ctx, habitID, completion.CompletedAt)
	if err != nil {
		// the completion stands; the cached fields catch up on the next reconcile
		logger.Log.WithError(err).WithField("habit_id", habitID.Hex()).Warn("Aggregate update failed after completion")
	}
	result.Metrics = metrics

	s.publish(realtime.NewNotification(repository.CompletionsCollection, completion.ID, realtime.OpCreate, ownerID, habitID))
	s.publish(realtime.NewNotification(repository.HabitsCollection, habitID, realtime.OpUpdate, ownerID, habitID))
	return result, nil
}

// ListCompletions returns the completions of a habit owned by ownerID.
func (s *HabitService) ListCompletions(ctx context.Context, ownerID, habitID primitive.ObjectID, window models.TimeRange) ([]models.Completion, error) {
	if _, err := s.GetHabit(ctx, ownerID, habitID); err != nil {
		return nil, err
	}
	return s.log.ListByHabit(ctx, habitID, window)
}

// Reconcile recomputes the cached streak of a habit owned by ownerID.
func (s *HabitService) Reconcile(ctx context.Context, ownerID, habitID primitive.ObjectID) (*models.Habit, streak.Metrics, error) {
	if _, err := s.GetHabit(ctx, ownerID, habitID); err != nil {
		return nil, streak.Metrics{}, err
	}
	metrics, err := s.cache.Reconcile(ctx, habitID)
	if err != nil {
		return nil, streak.Metrics{}, err
	}
	habit, err := s.habits.GetHabitByID(ctx, habitID)
	if err != nil {
		return nil, streak.Metrics{}, err
	}
	s.publish(realtime.NewNotification(repository.HabitsCollection, habitID, realtime.OpUpdate, ownerID, habitID))
	return habit, metrics, nil
}

func (s *HabitService) publish(n realtime.Notification) {
	if s.publisher != nil {
		s.publisher.Publish(n)
	}
}
