package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dias221467/Habit_Streaks/internal/models"
)

// ErrUserNotFound is returned by UserStore lookups that match nothing.
var ErrUserNotFound = errors.New("user not found")

// HabitStore persists habits. GetHabitByID returns apperrors.ErrHabitNotFound
// when the id is unknown.
type HabitStore interface {
	CreateHabit(ctx context.Context, habit *models.Habit) (*models.Habit, error)
	GetHabitByID(ctx context.Context, id primitive.ObjectID) (*models.Habit, error)
	ListHabitsByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]models.Habit, error)
	ListAllHabits(ctx context.Context, limit int64) ([]models.Habit, error)
	// UpdateAggregate overwrites only the denormalized streak fields.
	UpdateAggregate(ctx context.Context, id primitive.ObjectID, streakCount int, lastCompleted time.Time) error
	DeleteHabit(ctx context.Context, id primitive.ObjectID) error
}

// CompletionStore is the append-only completion log. InsertCompletion enforces
// one row per (habit, day): the first insert wins and later ones return the
// existing row together with apperrors.ErrDuplicateCompletion.
type CompletionStore interface {
	InsertCompletion(ctx context.Context, completion *models.Completion) (*models.Completion, error)
	ListCompletionsByHabit(ctx context.Context, habitID primitive.ObjectID, window models.TimeRange) ([]models.Completion, error)
	ListCompletionsByOwner(ctx context.Context, ownerID primitive.ObjectID, window models.TimeRange) ([]models.Completion, error)
	DeleteCompletionsByHabit(ctx context.Context, habitID primitive.ObjectID) (int64, error)
}

// UserStore persists accounts for the session provider.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// Stores bundles the backends the services are wired to.
type Stores struct {
	Habits      HabitStore
	Completions CompletionStore
	Users       UserStore
	Close       func(ctx context.Context) error
}
