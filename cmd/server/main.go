package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/Dias221467/Habit_Streaks/internal/config"
	"github.com/Dias221467/Habit_Streaks/internal/database"
	"github.com/Dias221467/Habit_Streaks/internal/handlers"
	"github.com/Dias221467/Habit_Streaks/internal/jobs"
	"github.com/Dias221467/Habit_Streaks/internal/realtime"
	"github.com/Dias221467/Habit_Streaks/internal/reconciler"
	"github.com/Dias221467/Habit_Streaks/internal/repository"
	"github.com/Dias221467/Habit_Streaks/internal/scheduler"
	"github.com/Dias221467/Habit_Streaks/internal/services"
	"github.com/Dias221467/Habit_Streaks/pkg/logger"
	"github.com/Dias221467/Habit_Streaks/pkg/middleware"
)

func main() {
	// Load configuration from .env file
	cfg := config.LoadConfig()

	logger.InitLogger(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	logger.Log.Info("Logger initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, mongoDB, err := database.OpenStores(ctx, cfg)
	if err != nil {
		log.Fatalf("Database connection error: %v", err)
	}
	defer stores.Close(context.Background())

	// --- Realtime ---
	hub := realtime.NewHub()
	defer hub.Close()

	var publisher realtime.Publisher = hub
	if cfg.RealtimeSource == config.RealtimeChangeStream && mongoDB != nil {
		// deletes are only routable with pre-images
		err := realtime.EnablePreImages(ctx, mongoDB, repository.HabitsCollection, repository.CompletionsCollection)
		if err != nil {
			logger.Log.WithError(err).Warn("Change-stream pre-images unavailable, using local notifications")
		} else {
			// the store reports every write, including those of other instances
			publisher = nil
			feeder := realtime.NewChangeStreamFeeder(mongoDB, hub, repository.HabitsCollection,
				repository.HabitsCollection, repository.CompletionsCollection)
			go feeder.Run(ctx)
			logger.Log.Info("Realtime notifications fed from MongoDB change streams")
		}
	}

	// --- Services ---
	completionLog := services.NewCompletionLog(stores.Habits, stores.Completions, cfg.StreakLocation)
	aggregateCache := services.NewAggregateCache(stores.Habits, stores.Completions, cfg.StreakLocation)
	habitService := services.NewHabitService(stores.Habits, stores.Completions, completionLog, aggregateCache, publisher)
	streakService := services.NewStreakService(stores.Habits, stores.Completions, cfg.StreakLocation)
	userService := services.NewUserService(stores.Users)

	// --- Jobs ---
	sweeper := jobs.NewStreakSweeper(aggregateCache)
	sweepCron, err := scheduler.StartReconcileCronJobs(sweeper, cfg.ReconcileCron)
	if err != nil {
		log.Fatalf("Scheduler error: %v", err)
	}
	if sweepCron != nil {
		defer sweepCron.Stop()
	}

	// --- Handlers ---
	userHandler := handlers.NewUserHandler(userService, cfg)
	habitHandler := handlers.NewHabitHandler(habitService, streakService, completionLog, cfg.StreakLocation)
	realtimeHandler := handlers.NewRealtimeHandler(reconciler.Deps{
		Channel:               hub,
		Habits:                streakService,
		Completions:           completionLog,
		Cache:                 aggregateCache,
		HabitsCollection:      repository.HabitsCollection,
		CompletionsCollection: repository.CompletionsCollection,
	}, cfg.JWTSecret, cfg.AllowedOrigins)

	// Initialize Gorilla Mux router
	router := mux.NewRouter()
	handlers.RegisterRoutes(router, userHandler, habitHandler, realtimeHandler, cfg.JWTSecret)

	// Apply middleware for logging
	router.Use(middleware.LoggingMiddleware)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Warn("Graceful shutdown failed")
		}
	}()

	fmt.Printf("Server running on port %s\n", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	logger.Log.Info("Server stopped")
}
