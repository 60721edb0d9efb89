package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Dias221467/Habit_Streaks/internal/apperrors"
	"github.com/Dias221467/Habit_Streaks/internal/models"
)

// CompletionsCollection is the collection name of the completion log.
const CompletionsCollection = "habit_completions"

type CompletionRepository struct {
	collection *mongo.Collection
}

func NewCompletionRepository(db *mongo.Database) *CompletionRepository {
	return &CompletionRepository{
		collection: db.Collection(CompletionsCollection),
	}
}

// EnsureIndexes creates the unique (habit_id, day) key and the owner/time index.
func (r *CompletionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "habit_id", Value: 1}, {Key: "day", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("habit_day_unique"),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "completed_at", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create completion indexes: %w", err)
	}
	return nil
}

// InsertCompletion appends a completion to the log
func (r *CompletionRepository) InsertCompletion(ctx context.Context, completion *models.Completion) (*models.Completion, error) {
	if completion.ID.IsZero() {
		completion.ID = primitive.NewObjectID()
	}
	completion.CompletedAt = completion.CompletedAt.UTC()

	_, err := r.collection.InsertOne(ctx, completion)
	if mongo.IsDuplicateKeyError(err) {
		var existing models.Completion
		findErr := r.collection.FindOne(ctx, bson.M{"habit_id": completion.HabitID, "day": completion.Day}).Decode(&existing)
		if findErr != nil {
			return nil, apperrors.ErrDuplicateCompletion
		}
		return &existing, apperrors.ErrDuplicateCompletion
	}
	if err != nil {
		logrus.WithError(err).Error("Failed to insert completion")
		return nil, fmt.Errorf("failed to insert completion: %w", err)
	}
	return completion, nil
}

// ListCompletionsByHabit returns a habit's completions inside window, in no particular order
func (r *CompletionRepository) ListCompletionsByHabit(ctx context.Context, habitID primitive.ObjectID, window models.TimeRange) ([]models.Completion, error) {
	filter := bson.M{"habit_id": habitID}
	applyRange(filter, window)
	return r.find(ctx, filter)
}

// ListCompletionsByOwner returns a user's completions inside window, in no particular order
func (r *CompletionRepository) ListCompletionsByOwner(ctx context.Context, ownerID primitive.ObjectID, window models.TimeRange) ([]models.Completion, error) {
	filter := bson.M{"user_id": ownerID}
	applyRange(filter, window)
	return r.find(ctx, filter)
}

// DeleteCompletionsByHabit removes the whole log of a habit
func (r *CompletionRepository) DeleteCompletionsByHabit(ctx context.Context, habitID primitive.ObjectID) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"habit_id": habitID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete completions: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"habit_id": habitID.Hex(),
		"deleted":  result.DeletedCount,
	}).Info("Deleted habit completions")
	return result.DeletedCount, nil
}

func (r *CompletionRepository) find(ctx context.Context, filter bson.M) ([]models.Completion, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch completions: %w", apperrors.ErrTransientFetch, err)
	}
	defer cursor.Close(ctx)

	completions := []models.Completion{}
	if err := cursor.All(ctx, &completions); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: decode completions: %w", apperrors.ErrTransientFetch, err)
	}
	return completions, nil
}

func applyRange(filter bson.M, window models.TimeRange) {
	bounds := bson.M{}
	if !window.From.IsZero() {
		bounds["$gte"] = window.From.UTC()
	}
	if !window.To.IsZero() {
		bounds["$lt"] = window.To.UTC()
	}
	if len(bounds) > 0 {
		filter["completed_at"] = bounds
	}
}
