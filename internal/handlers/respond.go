package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dias221467/Habit_Streaks/internal/apperrors"
	"github.com/Dias221467/Habit_Streaks/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and a short user-facing message.
func writeError(w http.ResponseWriter, err error) {
	http.Error(w, apperrors.UserMessage(err), apperrors.HTTPStatus(err))
}

func pathID(r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	return id, err == nil
}

// parseRange reads the optional from/to query parameters. Both accept
// RFC 3339 timestamps or plain dates, which mean midnight in loc.
func parseRange(r *http.Request, loc *time.Location) (models.TimeRange, error) {
	var window models.TimeRange
	var err error
	if window.From, err = parseTimeParam(r.URL.Query().Get("from"), loc); err != nil {
		return window, err
	}
	if window.To, err = parseTimeParam(r.URL.Query().Get("to"), loc); err != nil {
		return window, err
	}
	return window, nil
}

func parseTimeParam(v string, loc *time.Location) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(models.DayLayout, v, loc)
}
