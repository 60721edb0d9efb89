package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dias221467/Habit_Streaks/internal/models"
	"github.com/Dias221467/Habit_Streaks/internal/services"
	"github.com/Dias221467/Habit_Streaks/internal/streak"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	UserID string
}

type habitStats struct {
	Habit   models.Habit   `json:"habit"`
	Metrics streak.Metrics `json:"metrics"`
	// InSync reports whether the cached streak_count matches the log.
	InSync bool `json:"in_sync"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show streak metrics of a user's habits",
		Long: `Derive current streak, best streak and total completions for every
habit of a user straight from the completion log, next to the cached
streak_count stored on the habit.

Examples:
  habitctl stats --user 65a1b2c3d4e5f6a7b8c9d0e1
  habitctl stats --user 65a1b2c3d4e5f6a7b8c9d0e1 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "owner id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runStats(cmd *cobra.Command, opts *StatsOptions) error {
	owner, err := parseObjectID("user", opts.UserID)
	if err != nil {
		return err
	}

	ctx := context.Background()
	stores, cfg, err := opts.open(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer stores.Close(ctx)

	habits, metrics, err := services.NewStreakService(stores.Habits, stores.Completions, cfg.StreakLocation).MetricsForOwner(ctx, owner)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load habits", err)
	}

	rows := make([]habitStats, len(habits))
	for i, h := range habits {
		m := metrics[h.ID]
		rows[i] = habitStats{Habit: h, Metrics: m, InSync: h.StreakCount == m.CurrentStreak}
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), rows)
	}

	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "HABIT\tTITLE\tFREQUENCY\tCURRENT\tBEST\tTOTAL\tCACHED\tLAST")
	for _, r := range rows {
		last := "never"
		if r.Metrics.TotalCompletions > 0 {
			last = r.Metrics.LastCompleted.In(cfg.StreakLocation).Format(models.DayLayout)
		}
		cached := fmt.Sprint(r.Habit.StreakCount)
		if !r.InSync {
			cached += " (stale)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.Habit.ID.Hex(), r.Habit.Title, r.Habit.Frequency,
			r.Metrics.CurrentStreak, r.Metrics.BestStreak, r.Metrics.TotalCompletions, cached, last)
	}
	return tw.Flush()
}
