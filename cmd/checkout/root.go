package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/safar/checkout-lifecycle/internal/config"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	LogLevel string
	JSONLogs bool

	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Order and payment lifecycle service for bank-transfer checkout",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if opts.LogLevel != "" {
				if err := cfg.LogLevel.UnmarshalText([]byte(opts.LogLevel)); err != nil {
					return fmt.Errorf("invalid --log-level %q: %w", opts.LogLevel, err)
				}
			}
			opts.cfg = cfg
			setupLogger(cfg.LogLevel, opts.JSONLogs)
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&opts.JSONLogs, "json-logs", false, "emit logs as JSON")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newNotifierCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	cmd.AddCommand(newHashPasswordCommand())

	return cmd
}

func setupLogger(level slog.Level, json bool) {
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	if json {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
}
