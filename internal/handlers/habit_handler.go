package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dias221467/Habit_Streaks/internal/models"
	"github.com/Dias221467/Habit_Streaks/internal/services"
	"github.com/Dias221467/Habit_Streaks/pkg/middleware"
)

// HabitHandler handles HTTP requests for habits, completions and streaks.
type HabitHandler struct {
	Service     *services.HabitService
	Streaks     *services.StreakService
	Completions *services.CompletionLog
	Location    *time.Location
}

// NewHabitHandler creates a new instance of HabitHandler.
func NewHabitHandler(service *services.HabitService, streaks *services.StreakService, completions *services.CompletionLog, loc *time.Location) *HabitHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &HabitHandler{
		Service:     service,
		Streaks:     streaks,
		Completions: completions,
		Location:    loc,
	}
}

// CreateHabitHandler handles the creation of a new habit.
func (h *HabitHandler) CreateHabitHandler(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	var input services.HabitInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		logrus.WithError(err).Warn("Invalid request payload during habit creation")
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	habit, err := h.Service.CreateHabit(r.Context(), userID, input)
	if err != nil {
		logrus.WithError(err).Warn("Failed to create habit")
		writeError(w, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"userID":  userID.Hex(),
		"habitID": habit.ID.Hex(),
	}).Info("Habit successfully created")
	writeJSON(w, http.StatusCreated, habit)
}

// GetHabitsHandler lists the caller's habits. Without a session the list is empty.
func (h *HabitHandler) GetHabitsHandler(w http.ResponseWriter, r *http.Request) {
	habits, err := h.Service.ListHabits(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		logrus.WithError(err).Error("Failed to list habits")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habits)
}

// GetHabitHandler fetches one habit of the caller.
func (h *HabitHandler) GetHabitHandler(w http.ResponseWriter, r *http.Request) {
	habitID, ok := pathID(r)
	if !ok {
		http.Error(w, "Invalid habit ID", http.StatusBadRequest)
		return
	}

	habit, err := h.Service.GetHabit(r.Context(), middleware.UserIDFromContext(r.Context()), habitID)
	if err != nil {
		logrus.WithError(err).WithField("habitID", habitID.Hex()).Warn("Habit fetch failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

// DeleteHabitHandler deletes a habit and its completions.
func (h *HabitHandler) DeleteHabitHandler(w http.ResponseWriter, r *http.Request) {
	habitID, ok := pathID(r)
	if !ok {
		http.Error(w, "Invalid habit ID", http.StatusBadRequest)
		return
	}

	if err := h.Service.DeleteHabit(r.Context(), middleware.UserIDFromContext(r.Context()), habitID); err != nil {
		logrus.WithError(err).WithField("habitID", habitID.Hex()).Warn("Habit deletion failed")
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CompleteHabitHandler records a completion. The body is optional and may
// carry a completed_at timestamp; completing twice on one day answers 200
// with duplicate set.
func (h *HabitHandler) CompleteHabitHandler(w http.ResponseWriter, r *http.Request) {
	habitID, ok := pathID(r)
	if !ok {
		http.Error(w, "Invalid habit ID", http.StatusBadRequest)
		return
	}

	var body struct {
		CompletedAt time.Time `json:"completed_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	userID := middleware.UserIDFromContext(r.Context())
	result, err := h.Service.CompleteHabit(r.Context(), userID, habitID, body.CompletedAt)
	if err != nil {
		logrus.WithError(err).WithField("habitID", habitID.Hex()).Warn("Habit completion failed")
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// GetHabitCompletionsHandler lists a habit's completions in an optional range.
func (h *HabitHandler) GetHabitCompletionsHandler(w http.ResponseWriter, r *http.Request) {
	habitID, ok := pathID(r)
	if !ok {
		http.Error(w, "Invalid habit ID", http.StatusBadRequest)
		return
	}
	window, err := parseRange(r, h.Location)
	if err != nil {
		http.Error(w, "Invalid from/to parameter", http.StatusBadRequest)
		return
	}

	completions, err := h.Service.ListCompletions(r.Context(), middleware.UserIDFromContext(r.Context()), habitID, window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completions)
}

// GetHabitStreakHandler returns the derived metrics of one habit.
func (h *HabitHandler) GetHabitStreakHandler(w http.ResponseWriter, r *http.Request) {
	habitID, ok := pathID(r)
	if !ok {
		http.Error(w, "Invalid habit ID", http.StatusBadRequest)
		return
	}

	metrics, err := h.Streaks.MetricsForHabit(r.Context(), middleware.UserIDFromContext(r.Context()), habitID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

// ReconcileHabitHandler recomputes a habit's cached streak on demand.
func (h *HabitHandler) ReconcileHabitHandler(w http.ResponseWriter, r *http.Request) {
	habitID, ok := pathID(r)
	if !ok {
		http.Error(w, "Invalid habit ID", http.StatusBadRequest)
		return
	}

	habit, metrics, err := h.Service.Reconcile(r.Context(), middleware.UserIDFromContext(r.Context()), habitID)
	if err != nil {
		logrus.WithError(err).WithField("habitID", habitID.Hex()).Warn("Habit reconcile failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"habit":   habit,
		"metrics": metrics,
	})
}

// GetCompletionsHandler lists all of the caller's completions in an optional range.
func (h *HabitHandler) GetCompletionsHandler(w http.ResponseWriter, r *http.Request) {
	window, err := parseRange(r, h.Location)
	if err != nil {
		http.Error(w, "Invalid from/to parameter", http.StatusBadRequest)
		return
	}

	completions, err := h.Completions.ListByOwner(r.Context(), middleware.UserIDFromContext(r.Context()), window)
	if err != nil {
		writeError(w, err)
		return
	}
	if completions == nil {
		completions = []models.Completion{}
	}
	writeJSON(w, http.StatusOK, completions)
}

// GetCompletedTodayHandler returns the ids of the habits completed today.
func (h *HabitHandler) GetCompletedTodayHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Completions.CompletedToday(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"habit_ids": ids})
}

// GetLeaderboardHandler ranks the caller's habits by best streak.
func (h *HabitHandler) GetLeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Streaks.Leaderboard(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
