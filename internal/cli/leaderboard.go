package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dias221467/Habit_Streaks/internal/services"
)

// LeaderboardOptions holds flags for the leaderboard command.
type LeaderboardOptions struct {
	*RootOptions
	UserID string
}

// NewLeaderboardCommand creates the leaderboard command.
func NewLeaderboardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LeaderboardOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank a user's habits by best streak",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeaderboard(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "owner id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runLeaderboard(cmd *cobra.Command, opts *LeaderboardOptions) error {
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

	entries, err := services.NewStreakService(stores.Habits, stores.Completions, cfg.StreakLocation).Leaderboard(ctx, owner)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to rank habits", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), entries)
	}

	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "#\tTITLE\tBEST\tCURRENT\tBADGE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n",
			e.Position, e.Habit.Title, e.Metrics.BestStreak, e.Metrics.CurrentStreak, strings.Repeat("*", badgeStars(e.Badge)))
	}
	return tw.Flush()
}

// badgeStars renders badge 1 as three stars down to badge 3 as one.
func badgeStars(badge int) int {
	if badge == 0 {
		return 0
	}
	return 4 - badge
}
