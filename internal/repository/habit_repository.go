package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Dias221467/Habit_Streaks/internal/apperrors"
	"github.com/Dias221467/Habit_Streaks/internal/models"
	"github.com/Dias221467/Habit_Streaks/pkg/logger"
)

// HabitsCollection is the collection name habits live in.
const HabitsCollection = "habits"

// HabitRepository struct handles database operations related to habits
type HabitRepository struct {
	collection *mongo.Collection
}

// NewHabitRepository creates a new instance of HabitRepository
func NewHabitRepository(db *mongo.Database) *HabitRepository {
	return &HabitRepository{
		collection: db.Collection(HabitsCollection),
	}
}

// EnsureIndexes creates the owner index used by list queries.
func (r *HabitRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create habit indexes: %w", err)
	}
	return nil
}

// CreateHabit creates a new habit in the database
func (r *HabitRepository) CreateHabit(ctx context.Context, habit *models.Habit) (*models.Habit, error) {
	now := time.Now().UTC()
	habit.CreatedAt = now
	habit.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, habit)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to insert habit")
		return nil, fmt.Errorf("failed to insert habit: %w", err)
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		logger.Log.Error("Failed to cast inserted ID")
		return nil, fmt.Errorf("failed to cast inserted habit ID")
	}
	habit.ID = insertedID

	logger.Log.WithField("habit_id", habit.ID.Hex()).Info("Habit created successfully")
	return habit, nil
}

// GetHabitByID fetches a habit by its ID
func (r *HabitRepository) GetHabitByID(ctx context.Context, id primitive.ObjectID) (*models.Habit, error) {
	var habit models.Habit

	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&habit)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.ErrHabitNotFound
	}
	if err != nil {
		logger.Log.WithError(err).WithField("habit_id", id.Hex()).Error("Failed to find habit by ID")
		return nil, fmt.Errorf("%w: find habit: %w", apperrors.ErrTransientFetch, err)
	}

	return &habit, nil
}

// ListHabitsByOwner fetches every habit of one user
func (r *HabitRepository) ListHabitsByOwner(ctx context.Context, ownerID primitive.ObjectID) ([]models.Habit, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": ownerID}, opts)
	if err != nil {
		logger.Log.WithError(err).WithField("user_id", ownerID.Hex()).Error("Failed to fetch habits")
		return nil, fmt.Errorf("%w: list habits: %w", apperrors.ErrTransientFetch, err)
	}
	defer cursor.Close(ctx)

	habits := []models.Habit{}
	if err := cursor.All(ctx, &habits); err != nil {
		logger.Log.WithError(err).Error("Failed to decode habits")
		return nil, fmt.Errorf("%w: decode habits: %w", apperrors.ErrTransientFetch, err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"user_id": ownerID.Hex(),
		"count":   len(habits),
	}).Debug("Habits fetched successfully")
	return habits, nil
}

// ListAllHabits fetches habits across all owners, used by the reconcile sweep
func (r *HabitRepository) ListAllHabits(ctx context.Context, limit int64) ([]models.Habit, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		findOptions.SetLimit(limit)
	}

	cursor, err := r.collection.Find(ctx, bson.M{}, findOptions)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to fetch all habits")
		return nil, fmt.Errorf("%w: list all habits: %w", apperrors.ErrTransientFetch, err)
	}
	defer cursor.Close(ctx)

	habits := []models.Habit{}
	for cursor.Next(ctx) {
		var habit models.Habit
		if err := cursor.Decode(&habit); err != nil {
			logger.Log.WithError(err).Error("Failed to decode habit")
			return nil, fmt.Errorf("failed to decode habit: %w", err)
		}
		habits = append(habits, habit)
	}

	return habits, cursor.Err()
}

// UpdateAggregate overwrites the cached streak fields of a habit
func (r *HabitRepository) UpdateAggregate(ctx context.Context, id primitive.ObjectID, streakCount int, lastCompleted time.Time) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"streak_count":   streakCount,
			"last_completed": lastCompleted.UTC(),
			"updated_at":     time.Now().UTC(),
		}},
	)
	if err != nil {
		logger.Log.WithError(err).WithField("habit_id", id.Hex()).Error("Failed to update habit aggregate")
		return fmt.Errorf("%w: update habit aggregate: %w", apperrors.ErrTransientFetch, err)
	}
	if result.MatchedCount == 0 {
		return apperrors.ErrHabitNotFound
	}

	return nil
}

// DeleteHabit deletes a habit from the database by its ID
func (r *HabitRepository) DeleteHabit(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		logger.Log.WithError(err).WithField("habit_id", id.Hex()).Error("Failed to delete habit")
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	if result.DeletedCount == 0 {
		return apperrors.ErrHabitNotFound
	}

	logger.Log.WithField("habit_id", id.Hex()).Info("Habit deleted successfully")
	return nil
}
