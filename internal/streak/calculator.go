// Package streak derives streak metrics from a habit's completion log.
//
// The calculation only depends on the multiset of completion days: input is
// always sorted ascending before gaps are measured, so storage or insertion
// order never leaks into the result.
package streak

import (
	"sort"
	"time"

	"github.com/Dias221467/Habit_Streaks/internal/models"
)

// DefaultToleranceDays is the allowed gap between two completion days of a
// daily habit for the run to continue.
const DefaultToleranceDays = 1

// Metrics are the derived, non-persisted streak figures of one habit.
type Metrics struct {
	CurrentStreak    int       `json:"current_streak"`
	BestStreak       int       `json:"best_streak"`
	TotalCompletions int       `json:"total_completions"`
	LastCompleted    time.Time `json:"last_completed"`
}

// Options tune the calculation. The zero value means daily tolerance, UTC
// days and time.Now as the reference point.
type Options struct {
	ToleranceDays int
	Location      *time.Location
	Now           time.Time
}

// ToleranceFor returns the gap tolerance in days for a habit frequency.
func ToleranceFor(f models.Frequency) int {
	switch f {
	case models.FrequencyWeekly:
		return 7
	case models.FrequencyMonthly:
		return 31
	}
	return DefaultToleranceDays
}

// OptionsFor builds Options for a habit's frequency.
func OptionsFor(f models.Frequency, loc *time.Location, now time.Time) Options {
	return Options{ToleranceDays: ToleranceFor(f), Location: loc, Now: now}
}

func (o Options) normalized() Options {
	if o.ToleranceDays <= 0 {
		o.ToleranceDays = DefaultToleranceDays
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// Calculate computes streak metrics over every completion timestamp of one habit.
func Calculate(timestamps []time.Time, opts Options) Metrics {
	if len(timestamps) == 0 {
		return Metrics{}
	}
	opts = opts.normalized()

	sorted := make([]time.Time, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	days := make([]int, 0, len(sorted))
	for _, ts := range sorted {
		d := dayNumber(ts, opts.Location)
		if len(days) > 0 && days[len(days)-1] == d {
			continue
		}
		days = append(days, d)
	}

	run, best := 1, 1
	for i := 1; i < len(days); i++ {
		// newer minus older, never negative after the ascending sort
		gap := days[i] - days[i-1]
		if gap <= opts.ToleranceDays {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}

	current := 0
	if dayNumber(opts.Now, opts.Location)-days[len(days)-1] <= opts.ToleranceDays {
		current = run
	}

	return Metrics{
		CurrentStreak:    current,
		BestStreak:       best,
		TotalCompletions: len(timestamps),
		LastCompleted:    sorted[len(sorted)-1],
	}
}

// CalculateCompletions is Calculate over completion records.
func CalculateCompletions(completions []models.Completion, opts Options) Metrics {
	timestamps := make([]time.Time, len(completions))
	for i, c := range completions {
		timestamps[i] = c.CompletedAt
	}
	return Calculate(timestamps, opts)
}

// dayNumber maps t to the index of its civil day in loc. Working on civil
// dates keeps gap math immune to time-of-day jitter and DST shifts.
func dayNumber(t time.Time, loc *time.Location) int {
	y, m, d := t.In(loc).Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}
