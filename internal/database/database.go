// Package database opens the configured document store.
package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Dias221467/Habit_Streaks/internal/config"
	"github.com/Dias221467/Habit_Streaks/internal/repository"
	"github.com/Dias221467/Habit_Streaks/internal/repository/sqlite"
	"github.com/Dias221467/Habit_Streaks/pkg/logger"
)

const connectTimeout = 10 * time.Second

// ConnectDB connects to MongoDB and verifies the connection.
func ConnectDB(ctx context.Context, cfg *config.Config) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")
	return client.Database(cfg.MongoDB), nil
}

// OpenStores opens the backend selected by cfg.StoreDriver and prepares its
// schema. The returned database is nil unless the backend is MongoDB.
func OpenStores(ctx context.Context, cfg *config.Config) (*repository.Stores, *mongo.Database, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Log.WithField("path", cfg.SQLitePath).Info("Opened SQLite store")
		return &repository.Stores{
			Habits:      store,
			Completions: store,
			Users:       store,
			Close:       store.Close,
		}, nil, nil

	case config.StoreMongo:
		db, err := ConnectDB(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		habits := repository.NewHabitRepository(db)
		completions := repository.NewCompletionRepository(db)
		users := repository.NewUserRepository(db)

		for _, ensure := range []func(context.Context) error{habits.EnsureIndexes, completions.EnsureIndexes, users.EnsureIndexes} {
			if err := ensure(ctx); err != nil {
				db.Client().Disconnect(context.Background())
				return nil, nil, err
			}
		}
		return &repository.Stores{
			Habits:      habits,
			Completions: completions,
			Users:       users,
			Close:       db.Client().Disconnect,
		}, db, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
