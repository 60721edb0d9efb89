// Package cli implements habitctl, the admin command line for the habit store.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dias221467/Habit_Streaks/internal/config"
	"github.com/Dias221467/Habit_Streaks/internal/database"
	"github.com/Dias221467/Habit_Streaks/internal/repository"
	"github.com/Dias221467/Habit_Streaks/pkg/logger"
)

// StoreOpener opens the stores a command works on.
type StoreOpener func(ctx context.Context) (*repository.Stores, *config.Config, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	open StoreOpener
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command against the configured store.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOpener(openConfiguredStores)
}

// NewRootCommandWithOpener creates the root command with a custom store opener.
func NewRootCommandWithOpener(open StoreOpener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "habitctl",
		Short: "habitctl - habit streak administration",
		Long:  "Inspect habit streaks and reconcile the cached streak fields with the completion log.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			logger.InitLogger(logger.Options{Level: level})
			logger.Log.SetOutput(cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewLeaderboardCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func openConfiguredStores(ctx context.Context) (*repository.Stores, *config.Config, error) {
	cfg := config.LoadConfig()
	stores, _, err := database.OpenStores(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return stores, cfg, nil
}
