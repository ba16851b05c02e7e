package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukerupert/meetings/internal/config"
	"github.com/dukerupert/meetings/internal/database"
)

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run a single reminder pass and exit",
		Long: `Run one reminder pass over every meeting and print the pass summary
as JSON. Use this when an external scheduler (system cron, a Kubernetes
CronJob) drives reminders instead of "meetings serve".

With the memory marker backend nothing is remembered between runs, so
use sqlite or redis here.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd.Context(), rootOpts.Config, rootOpts.Logger, cmd.OutOrStdout())
		},
	}
}

func runDispatch(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	markers, err := openMarkers(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer markers.close()

	d := newDispatcher(cfg, db, markers, newPushService(cfg), logger)
	sum, err := d.Dispatch(ctx)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}
