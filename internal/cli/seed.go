package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukerupert/meetings/internal/config"
	"github.com/dukerupert/meetings/internal/database"
	"github.com/dukerupert/meetings/internal/store"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file]",
		Short: "Load meeting definitions from a YAML or JSON file",
		Long: `Upsert every meeting in the given file (or the configured seed_file).
Invalid entries are reported and skipped; the rest are still saved.

Example:
  meetings seed meetings.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config.SeedFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no seed file given and seed_file is not configured")
			}

			db, err := database.Open(rootOpts.Config.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			return seedFrom(cmd.Context(), store.NewMeetingStore(db), path, rootOpts.Logger)
		},
	}
}

// seedFrom applies the seed file at path. Invalid meetings are logged; only
// an unreadable or malformed file is an error.
func seedFrom(ctx context.Context, meetings config.MeetingUpserter, path string, logger *slog.Logger) error {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	applied, err := config.ApplySeed(ctx, meetings, seed)
	if err != nil {
		logger.Warn("seed contained invalid meetings", "path", path, "error", err)
	}
	logger.Info("seed applied", "path", path, "applied", applied, "total", len(seed.Meetings))
	return nil
}
