package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/safar/checkout-lifecycle/internal/auth"
	"github.com/safar/checkout-lifecycle/internal/models"
	"github.com/safar/checkout-lifecycle/internal/store"
)

// Repository is the order storage the engine drives. *store.Store implements it.
type Repository interface {
	CreateOrder(ctx context.Context, req store.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.OrderSummary, error)
	ListCustomerOrdersCursor(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage, error)
	SetPaymentEvidence(ctx context.Context, id int64, proofURL, transactionID *string) error
	ApprovePayment(ctx context.Context, id int64) error
	RejectPayment(ctx context.Context, id int64) error
	SetFulfillmentStatus(ctx context.Context, id int64, status models.FulfillmentStatus, allowedFrom []models.FulfillmentStatus) error
	DeleteOrder(ctx context.Context, id int64) error
}

type SettingsStore interface {
	GetPaymentSettings(ctx context.Context) (*models.PaymentSettings, error)
	SavePaymentSettings(ctx context.Context, in models.PaymentSettings) (*models.PaymentSettings, error)
}

// Notifier accepts notification intents. Delivery happens elsewhere.
// Committed is told about intents the repository wrote alongside an order.
type Notifier interface {
	Enqueue(ctx context.Context, n models.Notification) error
	Committed(n models.Notification)
}

type Authorizer interface {
	RequireAdmin(token string) (*auth.Claims, error)
}

const DefaultOrderNumberAttempts = 5

// Engine runs the order and payment lifecycle. It is safe for concurrent use;
// all state lives in the repository.
type Engine struct {
	orders   Repository
	settings SettingsStore
	notifier Notifier
	admins   Authorizer

	strict         bool
	numberAttempts int
	orderNumber    func() string
}

type EngineOption func(*Engine)

// WithStrictTransitions rejects fulfillment moves outside the forward workflow.
func WithStrictTransitions(strict bool) EngineOption {
	return func(e *Engine) {
		e.strict = strict
	}
}

func WithOrderNumberAttempts(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.numberAttempts = n
		}
	}
}

func WithOrderNumbers(gen func() string) EngineOption {
	return func(e *Engine) {
		e.orderNumber = gen
	}
}

func New(orders Repository, settings SettingsStore, notifier Notifier, admins Authorizer, opts ...EngineOption) *Engine {
	e := &Engine{
		orders:         orders,
		settings:       settings,
		notifier:       notifier,
		admins:         admins,
		numberAttempts: DefaultOrderNumberAttempts,
		orderNumber:    store.GenerateOrderNumber,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) requireAdmin(capability string) error {
	claims, err := e.admins.RequireAdmin(capability)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	slog.Debug("admin capability accepted", "subject", claims.Subject)
	return nil
}

// storeError maps repository errors onto the engine's taxonomy.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		return fmt.Errorf("%s: order %w", op, ErrNotFound)
	case errors.Is(err, store.ErrTransitionNotAllowed):
		return invalid("status", "transition not allowed from current status")
	case errors.Is(err, store.ErrUserNotFound):
		return invalid("customer_id", "unknown customer")
	case errors.Is(err, store.ErrInvalidCursor):
		return invalid("cursor", "malformed cursor")
	}
	return &PersistenceError{Op: op, Err: err}
}

// intent builds the notification for order, or nil when nobody can receive it.
func intent(kind models.NotificationKind, order *models.Order, data models.NotificationData) *models.Notification {
	recipient := order.ContactEmail()
	if recipient == "" {
		slog.Warn("skipping notification without recipient", "order_id", order.ID, "kind", kind)
		return nil
	}
	return &models.Notification{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Kind:      kind,
		Recipient: recipient,
		Data:      data,
	}
}

// enqueue records a notification intent. Failures never reach the caller.
func (e *Engine) enqueue(ctx context.Context, kind models.NotificationKind, order *models.Order, data models.NotificationData) {
	n := intent(kind, order, data)
	if n == nil {
		return
	}
	if err := e.notifier.Enqueue(ctx, *n); err != nil {
		slog.Warn("notification not queued", "order_id", order.ID, "kind", kind, "error", err)
	}
}

func notificationData(order *models.Order) models.NotificationData {
	data := models.NotificationData{
		OrderNumber:  order.OrderNumber,
		CustomerName: order.ContactName(),
		TotalAmount:  order.TotalAmount,
		Address:      order.Customer.Address,
		HasEvidence:  order.PaymentProofURL != nil || order.TransactionID != nil,
	}
	for _, item := range order.Items {
		data.Items = append(data.Items, models.NotificationItem{
			Name:     item.ProductName,
			Quantity: item.Quantity,
			Subtotal: item.Subtotal,
		})
	}
	return data
}
