package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/safar/checkout-lifecycle/internal/models"
	"github.com/safar/checkout-lifecycle/internal/store"
)

// GetPaymentSettings returns the active bank account, or nil when none is configured.
func (e *Engine) GetPaymentSettings(ctx context.Context) (*models.PaymentSettings, error) {
	settings, err := e.settings.GetPaymentSettings(ctx)
	if errors.Is(err, store.ErrPaymentSettingsNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get payment settings", Err: err}
	}
	return settings, nil
}

// UpdatePaymentSettings overwrites the active row, creating it on first use.
func (e *Engine) UpdatePaymentSettings(ctx context.Context, capability string, in models.PaymentSettings) (*models.PaymentSettings, error) {
	if err := e.requireAdmin(capability); err != nil {
		return nil, err
	}

	in.BankName = strings.TrimSpace(in.BankName)
	in.AccountName = strings.TrimSpace(in.AccountName)
	in.AccountNumber = strings.TrimSpace(in.AccountNumber)
	switch {
	case in.BankName == "":
		return nil, invalid("bank_name", "required")
	case in.AccountName == "":
		return nil, invalid("account_name", "required")
	case in.AccountNumber == "":
		return nil, invalid("account_number", "required")
	}

	saved, err := e.settings.SavePaymentSettings(ctx, in)
	if err != nil {
		return nil, &PersistenceError{Op: "save payment settings", Err: err}
	}
	slog.Info("payment settings updated", "settings_id", saved.ID, "bank", saved.BankName)
	return saved, nil
}
