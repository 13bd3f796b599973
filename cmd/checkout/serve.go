package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/safar/checkout-lifecycle/internal/api"
	"github.com/safar/checkout-lifecycle/internal/auth"
	"github.com/safar/checkout-lifecycle/internal/config"
	"github.com/safar/checkout-lifecycle/internal/database"
	"github.com/safar/checkout-lifecycle/internal/lifecycle"
	"github.com/safar/checkout-lifecycle/internal/notify"
	"github.com/safar/checkout-lifecycle/internal/outbox"
	"github.com/safar/checkout-lifecycle/internal/store"
	"github.com/spf13/cobra"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the notification relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, root.cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("connected to database")

	st := store.New(db)

	authority, err := auth.NewAuthority(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	dispatcher, closeDispatcher, err := newDispatcher(cfg)
	if err != nil {
		return err
	}
	defer closeDispatcher()

	ob := outbox.New(st)
	relay := outbox.NewRelay(st, dispatcher, ob.Wakeups(), outbox.RelayConfig{
		Interval:  cfg.Notify.PollInterval,
		BatchSize: cfg.Notify.BatchSize,
	})

	engine := lifecycle.New(st, st, ob, authority,
		lifecycle.WithStrictTransitions(cfg.Orders.StrictTransitions),
		lifecycle.WithOrderNumberAttempts(cfg.Orders.OrderNumberAttempts),
	)

	handler := api.NewHandler(engine, authority, auth.Credentials{
		Username:     cfg.Auth.AdminUsername,
		PasswordHash: cfg.Auth.AdminPasswordHash,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(handler, st),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("server starting", "addr", srv.Addr, "notify_transport", cfg.Notify.Transport)
	if err := runServer(ctx, srv, relay, 10*time.Second); err != nil {
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}

type backgroundWorker interface {
	Run(ctx context.Context)
}

// runServer serves until ctx is done or the listener fails. The worker runs
// alongside and has always returned by the time runServer does.
func runServer(ctx context.Context, srv *http.Server, worker backgroundWorker, shutdownTimeout time.Duration) error {
	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(workerCtx)
	}()
	defer func() {
		stopWorker()
		<-workerDone
	}()

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// newDispatcher picks where the relay sends intents: straight to SMTP, or to
// the broker for the notifier worker.
func newDispatcher(cfg *config.Config) (outbox.Dispatcher, func(), error) {
	if cfg.Notify.Transport != config.TransportAMQP {
		mailer, err := newMailer(cfg)
		if err != nil {
			return nil, nil, err
		}
		return mailer, func() {}, nil
	}

	conn, ch, err := openAMQP(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		ch.Close()
		conn.Close()
	}
	return outbox.NewAMQPPublisher(ch, cfg.Notify.Exchange), closeFn, nil
}

func newMailer(cfg *config.Config) (*notify.Mailer, error) {
	catalog, err := notify.DefaultCatalog()
	if err != nil {
		return nil, fmt.Errorf("load email templates: %w", err)
	}
	return notify.NewMailer(catalog, notify.NewSender(cfg.Mail)), nil
}

func openAMQP(cfg *config.Config) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.Notify.AMQPURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := outbox.DeclareTopology(ch, cfg.Notify.Exchange, cfg.Notify.Queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}
