// Package ranking orders habits for the streak leaderboard.
package ranking

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dias221467/Habit_Streaks/internal/models"
	"github.com/Dias221467/Habit_Streaks/internal/streak"
)

// BadgeCount is the number of leading entries that receive a badge.
const BadgeCount = 3

// Entry is one leaderboard row. Badge is 1..BadgeCount for the top entries
// and 0 otherwise.
type Entry struct {
	Habit    models.Habit   `json:"habit"`
	Metrics  streak.Metrics `json:"metrics"`
	Position int            `json:"position"`
	Badge    int            `json:"badge,omitempty"`
}

// Rank orders habits by best streak, highest first. Ties are broken by habit
// ID ascending so the order never depends on the input order. Habits without
// an entry in metrics rank with zero metrics.
func Rank(habits []models.Habit, metrics map[primitive.ObjectID]streak.Metrics) []Entry {
	entries := make([]Entry, len(habits))
	for i, h := range habits {
		entries[i] = Entry{Habit: h, Metrics: metrics[h.ID]}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		bi, bj := entries[i].Metrics.BestStreak, entries[j].Metrics.BestStreak
		if bi != bj {
			return bi > bj
		}
		return entries[i].Habit.ID.Hex() < entries[j].Habit.ID.Hex()
	})

	for i := range entries {
		entries[i].Position = i + 1
		if i < BadgeCount {
			entries[i].Badge = i + 1
		}
	}
	return entries
}
