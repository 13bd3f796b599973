package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/checkout-lifecycle/internal/models"
)

// CreateUser inserts a registered customer. Accounts are owned by the
// authentication service; this exists for seeding and tests.
func (s *Store) CreateUser(ctx context.Context, email, name string) (*models.User, error) {
	user := &models.User{}

	query := `
		INSERT INTO users (email, name, created_at, updated_at, version)
		VALUES ($1, $2, NOW(), NOW(), 1)
		RETURNING id, email, name`

	err := s.db.QueryRowContext(ctx, query, email, name).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}

	query := `
		SELECT id, email, name
		FROM users
		WHERE id = $1`

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func (s *Store) ListAddresses(ctx context.Context, userID int64) ([]models.AddressRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, line1, line2, city, state, postal_code, created_at
		 FROM addresses
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	addresses := []models.AddressRecord{}
	for rows.Next() {
		var rec models.AddressRecord
		err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Address.Line1,
			&rec.Address.Line2,
			&rec.Address.City,
			&rec.Address.State,
			&rec.Address.PostalCode,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return addresses, nil
}
