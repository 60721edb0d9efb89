package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Frequency is how often a habit is meant to be performed.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// NeverCompleted is the last_completed sentinel for habits without completions.
var NeverCompleted = time.Unix(0, 0).UTC()

// Habit is a recurring user-defined task. StreakCount and LastCompleted are a
// denormalized shadow of the completion log and are only written by the
// aggregate cache.
type Habit struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID        primitive.ObjectID `bson:"user_id" json:"user_id"`
	Title         string             `bson:"title" json:"title"`
	Description   string             `bson:"description" json:"description"`
	Frequency     Frequency          `bson:"frequency" json:"frequency"`
	StreakCount   int                `bson:"streak_count" json:"streak_count"`
	LastCompleted time.Time          `bson:"last_completed" json:"last_completed"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// HasCompletions reports whether the cached last_completed holds a real timestamp.
func (h Habit) HasCompletions() bool {
	return h.LastCompleted.After(NeverCompleted)
}
