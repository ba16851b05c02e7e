package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dukerupert/meetings/internal/config"
	"github.com/dukerupert/meetings/internal/logging"
)

// RootOptions holds global flags and the state they produce.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string

	Config *config.Config
	Logger *slog.Logger
}

// NewRootCommand creates the root command for the meetings CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "meetings",
		Short: "Meeting scheduler, JaaS token issuer and reminder dispatcher",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = opts.LogLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat = opts.LogFormat
			}
			if f := cfg.LogFormat; f != "text" && f != "json" {
				return fmt.Errorf("invalid log format %q: must be text or json", f)
			}
			opts.Config = cfg
			opts.Logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config file (default ./meetings.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewDispatchCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewHashPasswordCommand())
	cmd.AddCommand(NewVAPIDKeysCommand())

	return cmd
}
