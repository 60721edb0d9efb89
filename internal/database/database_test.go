package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dias221467/Habit_Streaks/internal/config"
	"github.com/Dias221467/Habit_Streaks/internal/models"
)

func TestOpenStores_SQLite(t *testing.T) {
	cfg := &config.Config{
		StoreDriver: config.StoreSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "nested", "habits.db"),
	}

	stores, db, err := OpenStores(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, db)
	t.Cleanup(func() { stores.Close(context.Background()) })

	habit, err := stores.Habits.CreateHabit(context.Background(), &models.Habit{
		UserID:        primitive.NewObjectID(),
		Title:         "Read",
		Frequency:     models.FrequencyDaily,
		LastCompleted: models.NeverCompleted,
	})
	require.NoError(t, err)
	assert.False(t, habit.ID.IsZero())
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	_, _, err := OpenStores(context.Background(), &config.Config{StoreDriver: "redis"})
	assert.Error(t, err)
}
