package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/safar/checkout-lifecycle/internal/metrics"
	"github.com/safar/checkout-lifecycle/internal/models"
)

type Store interface {
	InsertNotification(ctx context.Context, n models.Notification) error
	DispatchNext(ctx context.Context, fn func(context.Context, models.Notification) error) (bool, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) error
}

// Outbox records notification intents. Dispatch happens later on a Relay.
type Outbox struct {
	store Store
	wake  chan struct{}
	now   func() time.Time
}

func New(store Store) *Outbox {
	return &Outbox{
		store: store,
		wake:  make(chan struct{}, 1),
		now:   time.Now,
	}
}

// Enqueue stores the intent and nudges the relay. It does not wait for delivery.
func (o *Outbox) Enqueue(ctx context.Context, n models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.State = models.NotificationPending
	n.CreatedAt = o.now()

	if err := o.store.InsertNotification(ctx, n); err != nil {
		metrics.RecordNotification(string(n.Kind), metrics.ResultEnqueueErr)
		return fmt.Errorf("enqueue %s for order %d: %w", n.Kind, n.OrderID, err)
	}
	metrics.RecordNotification(string(n.Kind), metrics.ResultQueued)
	o.wakeRelay()
	return nil
}

// Committed accounts for an intent the order store wrote in its own transaction.
// Only intents whose row was stored (State pending) wake the relay.
func (o *Outbox) Committed(n models.Notification) {
	if n.State != models.NotificationPending {
		metrics.RecordNotification(string(n.Kind), metrics.ResultEnqueueErr)
		return
	}
	metrics.RecordNotification(string(n.Kind), metrics.ResultQueued)
	o.wakeRelay()
}

func (o *Outbox) wakeRelay() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Outbox) Wakeups() <-chan struct{} {
	return o.wake
}

type RelayConfig struct {
	Interval        time.Duration
	BatchSize       int
	DispatchTimeout time.Duration
}

// Relay drains pending intents through a Dispatcher. Every intent gets one
// attempt; failures are logged and recorded on the row, never retried.
type Relay struct {
	store      Store
	dispatcher Dispatcher
	wake       <-chan struct{}
	cfg        RelayConfig
}

func NewRelay(store Store, dispatcher Dispatcher, wake <-chan struct{}, cfg RelayConfig) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 30 * time.Second
	}
	return &Relay{store: store, dispatcher: dispatcher, wake: wake, cfg: cfg}
}

func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.Info("notification relay started", "interval", r.cfg.Interval, "batch", r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			slog.Info("notification relay stopping")
			return
		case <-ticker.C:
		case <-r.wake:
		}
		r.Drain(ctx)
	}
}

// Drain dispatches up to one batch of pending intents and returns how many it claimed.
func (r *Relay) Drain(ctx context.Context) int {
	claimed := 0
	for claimed < r.cfg.BatchSize {
		found, err := r.store.DispatchNext(ctx, r.dispatchOne)
		if err != nil {
			slog.Error("claim notification failed", "error", err)
			return claimed
		}
		if !found {
			return claimed
		}
		claimed++
	}
	return claimed
}

func (r *Relay) dispatchOne(ctx context.Context, n models.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.DispatchTimeout)
	defer cancel()

	if err := r.dispatcher.Dispatch(ctx, n); err != nil {
		metrics.RecordNotification(string(n.Kind), metrics.ResultFailed)
		slog.Warn("notification dispatch failed",
			"notification_id", n.ID,
			"order_id", n.OrderID,
			"kind", n.Kind,
			"error", err,
		)
		return err
	}

	metrics.RecordNotification(string(n.Kind), metrics.ResultSent)
	slog.Info("notification dispatched", "notification_id", n.ID, "order_id", n.OrderID, "kind", n.Kind)
	return nil
}
