package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/safar/checkout-lifecycle/internal/metrics"
	"github.com/safar/checkout-lifecycle/internal/models"
	"github.com/safar/checkout-lifecycle/internal/store"
	"github.com/shopspring/decimal"
)

type CreateOrderInput struct {
	CustomerID      *int64         `json:"customer_id,omitempty"`
	Items           []ItemInput    `json:"items"`
	ShippingAddress models.Address `json:"shipping_address"`
	Contact         Contact        `json:"contact"`
	TransactionID   *string        `json:"transaction_id,omitempty"`
	PaymentProofURL *string        `json:"payment_proof_url,omitempty"`
}

type ItemInput struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Size        *string         `json:"size,omitempty"`
	Color       *string         `json:"color,omitempty"`
}

type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type PaymentEvidence struct {
	ProofURL      *string `json:"payment_proof_url,omitempty"`
	TransactionID *string `json:"transaction_id,omitempty"`
}

func (p PaymentEvidence) normalized() PaymentEvidence {
	return PaymentEvidence{ProofURL: trimmed(p.ProofURL), TransactionID: trimmed(p.TransactionID)}
}

func (p PaymentEvidence) empty() bool {
	return p.ProofURL == nil && p.TransactionID == nil
}

// trimmed treats blank strings as absent.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (in CreateOrderInput) validate() error {
	if len(in.Items) == 0 {
		return invalid("items", "at least one item is required")
	}
	for i, item := range in.Items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(item.ProductName) == "" {
			return invalid(field+".product_name", "required")
		}
		if item.Quantity < 1 {
			return invalid(field+".quantity", "must be at least 1")
		}
		if item.UnitPrice.IsNegative() {
			return invalid(field+".unit_price", "must not be negative")
		}
		if !item.UnitPrice.Equal(item.UnitPrice.Round(MoneyPlaces)) {
			return invalid(field+".unit_price", "at most 2 decimal places")
		}
	}

	addr := in.ShippingAddress
	switch {
	case strings.TrimSpace(addr.Line1) == "":
		return invalid("shipping_address.line1", "required")
	case strings.TrimSpace(addr.City) == "":
		return invalid("shipping_address.city", "required")
	case strings.TrimSpace(addr.State) == "":
		return invalid("shipping_address.state", "required")
	}

	if strings.TrimSpace(in.Contact.Name) == "" {
		return invalid("contact.name", "required")
	}
	if email := strings.TrimSpace(in.Contact.Email); email == "" || !strings.Contains(email, "@") {
		return invalid("contact.email", "a valid email is required")
	}
	return nil
}

// MoneyPlaces matches the NUMERIC(14, 2) money columns.
const MoneyPlaces = 2

// OrderTotal sums unit price times quantity over the items.
func OrderTotal(items []ItemInput) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// CreateOrder validates the cart, writes the order with its items and queues the
// confirmation email. A clash on the generated order number is retried with a
// fresh number.
func (e *Engine) CreateOrder(ctx context.Context, in CreateOrderInput) (order *models.Order, err error) {
	defer func() { metrics.RecordOrderOperation("create", err) }()

	if err := in.validate(); err != nil {
		return nil, err
	}

	evidence := PaymentEvidence{ProofURL: in.PaymentProofURL, TransactionID: in.TransactionID}.normalized()
	paymentStatus := models.PaymentPending
	if !evidence.empty() {
		paymentStatus = models.PaymentVerifying
	}

	req := store.CreateOrderRequest{
		UserID: in.CustomerID,
		Customer: models.CustomerSnapshot{
			Name:    strings.TrimSpace(in.Contact.Name),
			Email:   strings.TrimSpace(in.Contact.Email),
			Phone:   strings.TrimSpace(in.Contact.Phone),
			Address: in.ShippingAddress,
		},
		TotalAmount:     OrderTotal(in.Items),
		PaymentStatus:   paymentStatus,
		PaymentProofURL: evidence.ProofURL,
		TransactionID:   evidence.TransactionID,
	}
	for _, item := range in.Items {
		req.Items = append(req.Items, store.OrderItemRequest{
			ProductID:   item.ProductID,
			ProductName: strings.TrimSpace(item.ProductName),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Size:        item.Size,
			Color:       item.Color,
		})
	}

	bank := e.activeBank(ctx)
	var confirmation *models.Notification
	req.Confirmation = func(created *models.Order) *models.Notification {
		data := notificationData(created)
		data.Bank = bank
		confirmation = intent(models.NotifyOrderConfirmed, created, data)
		return confirmation
	}

	for attempt := 1; ; attempt++ {
		confirmation = nil
		req.OrderNumber = e.orderNumber()
		order, err = e.orders.CreateOrder(ctx, req)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrDuplicateOrderNumber) || attempt >= e.numberAttempts {
			return nil, storeError("create order", err)
		}
		slog.Warn("order number collision, regenerating", "order_number", req.OrderNumber, "attempt", attempt)
	}

	slog.Info("order created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"total", order.TotalAmount.StringFixed(2),
		"payment_status", order.PaymentStatus,
		"guest", order.IsGuest(),
	)

	if confirmation != nil {
		e.notifier.Committed(*confirmation)
	}

	return order, nil
}

func (e *Engine) activeBank(ctx context.Context) *models.PaymentSettings {
	settings, err := e.settings.GetPaymentSettings(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrPaymentSettingsNotFound) {
			slog.Warn("payment settings unavailable for confirmation", "error", err)
		}
		return nil
	}
	return settings
}

// SubmitPaymentEvidence records a proof URL and/or a transaction reference and
// moves payment to verifying. Fields left out keep their stored value.
func (e *Engine) SubmitPaymentEvidence(ctx context.Context, orderID int64, evidence PaymentEvidence) (err error) {
	defer func() { metrics.RecordOrderOperation("submit_evidence", err) }()

	evidence = evidence.normalized()
	if evidence.empty() {
		return invalid("payment_evidence", "a proof URL or transaction id is required")
	}

	if err := e.orders.SetPaymentEvidence(ctx, orderID, evidence.ProofURL, evidence.TransactionID); err != nil {
		return storeError("submit payment evidence", err)
	}

	slog.Info("payment evidence submitted",
		"order_id", orderID,
		"has_proof", evidence.ProofURL != nil,
		"has_transaction_id", evidence.TransactionID != nil,
	)
	return nil
}

// VerifyPayment settles the administrator's decision. Approval marks the order
// paid and processing; rejection returns payment to pending so the customer can
// resubmit.
func (e *Engine) VerifyPayment(ctx context.Context, capability string, orderID int64, approved bool) (err error) {
	defer func() { metrics.RecordOrderOperation("verify_payment", err) }()

	if err := e.requireAdmin(capability); err != nil {
		return err
	}

	order, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		return storeError("verify payment", err)
	}

	if !approved {
		if err := e.orders.RejectPayment(ctx, orderID); err != nil {
			return storeError("reject payment", err)
		}
		slog.Info("payment rejected", "order_id", orderID, "previous_status", order.PaymentStatus)
		if order.PaymentStatus != models.PaymentPending {
			e.enqueue(ctx, models.NotifyPaymentRejected, order, notificationData(order))
		}
		return nil
	}

	if err := e.orders.ApprovePayment(ctx, orderID); err != nil {
		return storeError("approve payment", err)
	}
	slog.Info("payment approved", "order_id", orderID, "previous_status", order.PaymentStatus)

	if order.PaymentStatus != models.PaymentPaid {
		e.enqueue(ctx, models.NotifyPaymentApproved, order, notificationData(order))
	}
	return nil
}

// UpdateFulfillmentStatus sets the fulfillment status. Any status may follow any
// other unless strict transitions are enabled. Reaching delivered queues exactly
// one delivery email.
func (e *Engine) UpdateFulfillmentStatus(ctx context.Context, capability string, orderID int64, status models.FulfillmentStatus) (err error) {
	defer func() { metrics.RecordOrderOperation("update_status", err) }()

	if err := e.requireAdmin(capability); err != nil {
		return err
	}
	if !status.Valid() {
		return invalid("status", fmt.Sprintf("unknown fulfillment status %q", status))
	}

	var allowedFrom []models.FulfillmentStatus
	if e.strict {
		allowedFrom = models.AllowedFrom(status)
	}

	if err := e.orders.SetFulfillmentStatus(ctx, orderID, status, allowedFrom); err != nil {
		return storeError("update fulfillment status", err)
	}
	slog.Info("fulfillment status updated", "order_id", orderID, "status", status)

	if status != models.FulfillmentDelivered {
		return nil
	}

	order, lookupErr := e.orders.GetOrder(ctx, orderID)
	if lookupErr != nil {
		slog.Warn("delivered order lookup failed, notification skipped", "order_id", orderID, "error", lookupErr)
		return nil
	}
	e.enqueue(ctx, models.NotifyOrderDelivered, order, notificationData(order))
	return nil
}

func (e *Engine) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := e.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, storeError("get order", err)
	}
	return order, nil
}

func (e *Engine) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, invalid("order_number", "required")
	}
	order, err := e.orders.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, storeError("get order by number", err)
	}
	return order, nil
}

// ListOrders returns every order newest first for administrative review.
func (e *Engine) ListOrders(ctx context.Context, capability string) ([]models.OrderSummary, error) {
	if err := e.requireAdmin(capability); err != nil {
		return nil, err
	}
	orders, err := e.orders.ListOrders(ctx)
	if err != nil {
		return nil, storeError("list orders", err)
	}
	return orders, nil
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListCustomerOrders pages through one registered customer's orders, newest first.
func (e *Engine) ListCustomerOrders(ctx context.Context, customerID int64, cursor string, limit int) (*store.CursorPage, error) {
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	page, err := e.orders.ListCustomerOrdersCursor(ctx, customerID, cursor, limit)
	if err != nil {
		return nil, storeError("list customer orders", err)
	}
	return page, nil
}

func (e *Engine) DeleteOrder(ctx context.Context, capability string, orderID int64) (err error) {
	defer func() { metrics.RecordOrderOperation("delete", err) }()

	if err := e.requireAdmin(capability); err != nil {
		return err
	}
	if err := e.orders.DeleteOrder(ctx, orderID); err != nil {
		return storeError("delete order", err)
	}
	slog.Info("order deleted", "order_id", orderID)
	return nil
}
