package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dias221467/Habit_Streaks/internal/services"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	HabitID string
}

type reconcileResult struct {
	Updated int    `json:"updated"`
	Error   string `json:"error,omitempty"`
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute cached streak fields from the completion log",
		Long: `Recompute streak_count and last_completed from the completion log,
for one habit or for every habit in the store.

Examples:
  habitctl reconcile
  habitctl reconcile --habit 65a1b2c3d4e5f6a7b8c9d0e1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.HabitID, "habit", "", "reconcile a single habit")
	return cmd
}

func runReconcile(cmd *cobra.Command, opts *ReconcileOptions) error {
	ctx := context.Background()
	stores, cfg, err := opts.open(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer stores.Close(ctx)

	cache := services.NewAggregateCache(stores.Habits, stores.Completions, cfg.StreakLocation)

	var result reconcileResult
	if opts.HabitID != "" {
		habitID, err := parseObjectID("habit", opts.HabitID)
		if err != nil {
			return err
		}
		if _, err := cache.Reconcile(ctx, habitID); err != nil {
			return WrapExitError(ExitFailure, "reconcile failed", err)
		}
		result.Updated = 1
	} else {
		result.Updated, err = cache.ReconcileAll(ctx)
		if err != nil {
			result.Error = err.Error()
		}
	}

	if opts.Format == "json" {
		if werr := writeJSON(cmd.OutOrStdout(), result); werr != nil {
			return werr
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Reconciled %d habit(s)\n", result.Updated)
	}

	if result.Error != "" {
		return WrapExitError(ExitFailure, "reconcile finished with failures", err)
	}
	return nil
}
