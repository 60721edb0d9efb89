package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DayLayout formats the calendar-day key of a completion.
const DayLayout = "2006-01-02"

// Completion is an immutable log entry asserting a habit was performed.
// Day is derived from CompletedAt in the streak time zone and, together with
// HabitID, forms the uniqueness key of the log.
type Completion struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"user_id"`
	HabitID     primitive.ObjectID `bson:"habit_id" json:"habit_id"`
	CompletedAt time.Time          `bson:"completed_at" json:"completed_at"`
	Day         string             `bson:"day" json:"day"`
}

// DayKey returns the calendar-day key for t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}

// TimeRange is a half-open [From, To) window. Zero bounds are open.
type TimeRange struct {
	From time.Time
	To   time.Time
}
