package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/checkout-lifecycle/internal/database"
	"github.com/safar/checkout-lifecycle/internal/models"
)

const paymentSettingsColumns = `id, bank_name, account_name, account_number, instructions, is_active, updated_at`

func scanPaymentSettings(row rowScanner) (*models.PaymentSettings, error) {
	ps := &models.PaymentSettings{}
	err := row.Scan(
		&ps.ID,
		&ps.BankName,
		&ps.AccountName,
		&ps.AccountNumber,
		&ps.Instructions,
		&ps.IsActive,
		&ps.UpdatedAt,
	)
	return ps, err
}

// GetPaymentSettings returns the active row, or ErrPaymentSettingsNotFound.
func (s *Store) GetPaymentSettings(ctx context.Context) (*models.PaymentSettings, error) {
	ps, err := scanPaymentSettings(s.db.QueryRowContext(ctx,
		`SELECT `+paymentSettingsColumns+` FROM payment_settings WHERE is_active LIMIT 1`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentSettingsNotFound
		}
		return nil, fmt.Errorf("get payment settings: %w", err)
	}
	return ps, nil
}

// SavePaymentSettings overwrites the active row in place, or inserts one when none is active.
func (s *Store) SavePaymentSettings(ctx context.Context, in models.PaymentSettings) (*models.PaymentSettings, error) {
	var saved *models.PaymentSettings

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var activeID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM payment_settings WHERE is_active LIMIT 1 FOR UPDATE`).Scan(&activeID)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			saved, err = scanPaymentSettings(tx.QueryRowContext(ctx,
				`INSERT INTO payment_settings (bank_name, account_name, account_number, instructions, is_active, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
				 RETURNING `+paymentSettingsColumns,
				in.BankName, in.AccountName, in.AccountNumber, in.Instructions))
			if err != nil {
				return fmt.Errorf("insert payment settings: %w", err)
			}
		case err != nil:
			return fmt.Errorf("lock payment settings: %w", err)
		default:
			saved, err = scanPaymentSettings(tx.QueryRowContext(ctx,
				`UPDATE payment_settings
				 SET bank_name = $2, account_name = $3, account_number = $4, instructions = $5, updated_at = NOW()
				 WHERE id = $1
				 RETURNING `+paymentSettingsColumns,
				activeID, in.BankName, in.AccountName, in.AccountNumber, in.Instructions))
			if err != nil {
				return fmt.Errorf("update payment settings: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}
