package main

import (
	"os/signal"
	"syscall"

	"github.com/safar/checkout-lifecycle/internal/outbox"
	"github.com/spf13/cobra"
)

func newNotifierCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "notifier",
		Short: "Consume queued notifications from the broker and send them by email",
		Long: `Consume notification intents published by "checkout serve" when
NOTIFY_TRANSPORT=amqp and deliver them over SMTP. Messages that fail are
dead-lettered, not retried.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg := root.cfg
			mailer, err := newMailer(cfg)
			if err != nil {
				return err
			}

			conn, ch, err := openAMQP(cfg)
			if err != nil {
				return err
			}
			defer conn.Close()
			defer ch.Close()

			return outbox.Consume(ctx, ch, cfg.Notify.Queue, mailer)
		},
	}
}
