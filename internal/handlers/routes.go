package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Dias221467/Habit_Streaks/pkg/middleware"
)

// RegisterRoutes mounts every endpoint on router. Read routes accept an
// absent session and answer with empty results; writes require a token.
func RegisterRoutes(router *mux.Router, users *UserHandler, habits *HabitHandler, realtime *RealtimeHandler, jwtSecret string) {
	optional := middleware.OptionalAuthMiddleware(jwtSecret)

	router.HandleFunc("/users/register", users.RegisterUserHandler).Methods("POST")
	router.HandleFunc("/users/login", users.LoginUserHandler).Methods("POST")

	router.Handle("/habits", optional(http.HandlerFunc(habits.GetHabitsHandler))).Methods("GET")
	router.Handle("/completions", optional(http.HandlerFunc(habits.GetCompletionsHandler))).Methods("GET")
	router.Handle("/completions/today", optional(http.HandlerFunc(habits.GetCompletedTodayHandler))).Methods("GET")
	router.Handle("/streaks", optional(http.HandlerFunc(habits.GetLeaderboardHandler))).Methods("GET")

	protectedRoutes := router.PathPrefix("/habits").Subrouter()
	protectedRoutes.Use(middleware.AuthMiddleware(jwtSecret))
	protectedRoutes.HandleFunc("", habits.CreateHabitHandler).Methods("POST")
	protectedRoutes.HandleFunc("/{id}", habits.GetHabitHandler).Methods("GET")
	protectedRoutes.HandleFunc("/{id}", habits.DeleteHabitHandler).Methods("DELETE")
	protectedRoutes.HandleFunc("/{id}/completions", habits.CompleteHabitHandler).Methods("POST")
	protectedRoutes.HandleFunc("/{id}/completions", habits.GetHabitCompletionsHandler).Methods("GET")
	protectedRoutes.HandleFunc("/{id}/streak", habits.GetHabitStreakHandler).Methods("GET")
	protectedRoutes.HandleFunc("/{id}/reconcile", habits.ReconcileHabitHandler).Methods("POST")

	if realtime != nil {
		router.HandleFunc("/ws", realtime.ServeWS).Methods("GET")
	}
}
