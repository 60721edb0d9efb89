package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Dias221467/Habit_Streaks/internal/apperrors"
	"github.com/Dias221467/Habit_Streaks/internal/models"
)

// testDatabase connects to MONGO_TEST_URI and returns a throwaway database.
func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	db := client.Database("habit_streaks_test_" + primitive.NewObjectID().Hex())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

func TestMongoCompletionFirstInsertWins(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	repo := NewCompletionRepository(db)
	require.NoError(t, repo.EnsureIndexes(ctx))

	habitID, ownerID := primitive.NewObjectID(), primitive.NewObjectID()
	at := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	first, err := repo.InsertCompletion(ctx, &models.Completion{
		UserID: ownerID, HabitID: habitID, CompletedAt: at, Day: models.DayKey(at, time.UTC),
	})
	require.NoError(t, err)

	later := at.Add(6 * time.Hour)
	dup, err := repo.InsertCompletion(ctx, &models.Completion{
		UserID: ownerID, HabitID: habitID, CompletedAt: later, Day: models.DayKey(later, time.UTC),
	})
	require.ErrorIs(t, err, apperrors.ErrDuplicateCompletion)
	require.NotNil(t, dup)
	assert.Equal(t, first.ID, dup.ID)

	all, err := repo.ListCompletionsByHabit(ctx, habitID, models.TimeRange{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	window, err := repo.ListCompletionsByOwner(ctx, ownerID, models.TimeRange{From: at.Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, window)

	deleted, err := repo.DeleteCompletionsByHabit(ctx, habitID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

func TestMongoHabitAggregateOverwrite(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	repo := NewHabitRepository(db)
	require.NoError(t, repo.EnsureIndexes(ctx))

	ownerID := primitive.NewObjectID()
	habit, err := repo.CreateHabit(ctx, &models.Habit{
		UserID:        ownerID,
		Title:         "Read",
		Frequency:     models.FrequencyDaily,
		LastCompleted: models.NeverCompleted,
	})
	require.NoError(t, err)
	require.False(t, habit.ID.IsZero())

	last := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateAggregate(ctx, habit.ID, 4, last))

	got, err := repo.GetHabitByID(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.StreakCount)
	assert.True(t, got.LastCompleted.Equal(last))

	owned, err := repo.ListHabitsByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	require.NoError(t, repo.DeleteHabit(ctx, habit.ID))
	_, err = repo.GetHabitByID(ctx, habit.ID)
	assert.ErrorIs(t, err, apperrors.ErrHabitNotFound)
	assert.ErrorIs(t, repo.UpdateAggregate(ctx, habit.ID, 1, last), apperrors.ErrHabitNotFound)
}

func TestMongoUserEmailUnique(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	repo := NewUserRepository(db)
	require.NoError(t, repo.EnsureIndexes(ctx))

	_, err := repo.CreateUser(ctx, &models.User{Username: "a", Email: "a@example.com", HashedPassword: "x"})
	require.NoError(t, err)
	_, err = repo.CreateUser(ctx, &models.User{Username: "b", Email: "a@example.com", HashedPassword: "y"})
	assert.ErrorIs(t, err, apperrors.ErrEmailTaken)

	_, err = repo.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
