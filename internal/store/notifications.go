package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/safar/checkout-lifecycle/internal/database"
	"github.com/safar/checkout-lifecycle/internal/models"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) InsertNotification(ctx context.Context, n models.Notification) error {
	return insertNotification(ctx, s.db, n)
}

func insertNotification(ctx context.Context, db execer, n models.Notification) error {
	payload, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("encode notification payload: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO notification_outbox (id, order_id, kind, recipient, payload, state, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (id) DO NOTHING`,
		n.ID, n.OrderID, string(n.Kind), n.Recipient, string(payload), string(models.NotificationPending))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// insertNotificationSavepoint writes n inside tx without letting a failed insert
// abort the surrounding transaction. stored reports whether the row was written.
func insertNotificationSavepoint(ctx context.Context, tx *sql.Tx, n models.Notification) (stored bool, err error) {
	if _, err := tx.ExecContext(ctx, `SAVEPOINT notification_intent`); err != nil {
		return false, fmt.Errorf("savepoint notification: %w", err)
	}
	if err := insertNotification(ctx, tx, n); err != nil {
		if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT notification_intent`); rbErr != nil {
			return false, fmt.Errorf("rollback notification savepoint: %w", rbErr)
		}
		slog.Warn("notification not queued", "order_id", n.OrderID, "kind", n.Kind, "error", err)
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT notification_intent`); err != nil {
		return false, fmt.Errorf("release notification savepoint: %w", err)
	}
	return true, nil
}

// DispatchNext claims the oldest pending notification, hands it to fn and records
// the outcome. The row stays locked while fn runs so concurrent relays skip it.
// fn's error is stored on the row, not returned: each intent gets exactly one attempt.
// found is false when the outbox is empty.
func (s *Store) DispatchNext(ctx context.Context, fn func(context.Context, models.Notification) error) (found bool, err error) {
	err = database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		n, err := claimPendingNotification(ctx, tx)
		if err != nil {
			return err
		}
		found = true

		state := models.NotificationSent
		var lastError string
		if sendErr := fn(ctx, *n); sendErr != nil {
			state = models.NotificationFailed
			lastError = sendErr.Error()
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE notification_outbox
			 SET state = $2, last_error = $3, dispatched_at = NOW()
			 WHERE id = $1`,
			n.ID, string(state), lastError)
		if err != nil {
			return fmt.Errorf("mark notification %s: %w", n.ID, err)
		}
		return nil
	})
	if errors.Is(err, ErrNotificationNotFound) {
		return false, nil
	}
	return found, err
}

func claimPendingNotification(ctx context.Context, tx *sql.Tx) (*models.Notification, error) {
	var (
		n       models.Notification
		payload string
	)

	err := tx.QueryRowContext(ctx,
		`SELECT id, order_id, kind, recipient, payload, state, created_at
		 FROM notification_outbox
		 WHERE state = $1
		 ORDER BY created_at
		 FOR UPDATE SKIP LOCKED
		 LIMIT 1`,
		string(models.NotificationPending)).Scan(
		&n.ID,
		&n.OrderID,
		&n.Kind,
		&n.Recipient,
		&payload,
		&n.State,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("claim notification: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &n.Data); err != nil {
		slog.Warn("recovered corrupt notification payload", "notification_id", n.ID, "error", err)
		n.Data = models.NotificationData{}
	}

	return &n, nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	var (
		n            models.Notification
		payload      string
		dispatchedAt sql.NullTime
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, order_id, kind, recipient, payload, state, last_error, created_at, dispatched_at
		 FROM notification_outbox
		 WHERE id = $1`, id).Scan(
		&n.ID,
		&n.OrderID,
		&n.Kind,
		&n.Recipient,
		&payload,
		&n.State,
		&n.LastError,
		&n.CreatedAt,
		&dispatchedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}

	if err := json.Unmarshal([]byte(payload), &n.Data); err != nil {
		slog.Warn("recovered corrupt notification payload", "notification_id", n.ID, "error", err)
	}
	if dispatchedAt.Valid {
		t := dispatchedAt.Time
		n.DispatchedAt = &t
	}

	return &n, nil
}
