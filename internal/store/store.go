package store

import (
	"context"
	"database/sql"
	"errors"
)

var (
	ErrUserNotFound            = errors.New("user not found")
	ErrOrderNotFound           = errors.New("order not found")
	ErrDuplicateOrderNumber    = errors.New("order number already exists")
	ErrTransitionNotAllowed    = errors.New("fulfillment transition not allowed")
	ErrNotificationNotFound    = errors.New("notification not found")
	ErrPaymentSettingsNotFound = errors.New("payment settings not found")
	ErrInvalidCursor           = errors.New("invalid cursor")
)

const orderNumberConstraint = "orders_order_number_key"

// Store is the Postgres-backed order repository, payment settings provider
// and notification outbox.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}
