package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type NotificationKind string

const (
	NotifyOrderConfirmed  NotificationKind = "order-confirmed"
	NotifyPaymentApproved NotificationKind = "payment-approved"
	NotifyPaymentRejected NotificationKind = "payment-rejected"
	NotifyOrderDelivered  NotificationKind = "order-delivered"
)

type NotificationState string

const (
	NotificationPending NotificationState = "pending"
	NotificationSent    NotificationState = "sent"
	NotificationFailed  NotificationState = "failed"
)

// Notification is an outbox intent: one best-effort email for one order event.
type Notification struct {
	ID           string            `json:"id"`
	OrderID      int64             `json:"order_id"`
	Kind         NotificationKind  `json:"kind"`
	Recipient    string            `json:"recipient"`
	Data         NotificationData  `json:"data"`
	State        NotificationState `json:"state"`
	LastError    string            `json:"last_error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	DispatchedAt *time.Time        `json:"dispatched_at,omitempty"`
}

// NotificationData is everything the templates need, captured at enqueue time.
type NotificationData struct {
	OrderNumber  string             `json:"order_number"`
	CustomerName string             `json:"customer_name"`
	TotalAmount  decimal.Decimal    `json:"total_amount"`
	Items        []NotificationItem `json:"items,omitempty"`
	Address      Address            `json:"address"`
	Bank         *PaymentSettings   `json:"bank,omitempty"`
	HasEvidence  bool               `json:"has_evidence"`
}

type NotificationItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}
