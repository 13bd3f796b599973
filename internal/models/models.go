package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code,omitempty"`
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// AddressRecord is a reusable address row owned by a registered customer.
type AddressRecord struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Address   Address   `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomerSnapshot is the contact and shipping data frozen on the order at checkout.
type CustomerSnapshot struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   string  `json:"phone"`
	Address Address `json:"address"`
}

type Order struct {
	ID                int64             `json:"id"`
	OrderNumber       string            `json:"order_number"`
	UserID            *int64            `json:"user_id,omitempty"`
	AddressID         *int64            `json:"address_id,omitempty"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	TotalAmount       decimal.Decimal   `json:"total_amount"`
	PaymentProofURL   *string           `json:"payment_proof_url,omitempty"`
	TransactionID     *string           `json:"transaction_id,omitempty"`
	Customer          CustomerSnapshot  `json:"customer"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	Version           int               `json:"version"`
	Items             []OrderItem       `json:"items,omitempty"`

	// Account is set for registered customers when the users row still exists.
	Account *User `json:"account,omitempty"`
}

// IsGuest reports whether the order has no registered customer.
func (o *Order) IsGuest() bool {
	return o.UserID == nil
}

// ContactEmail prefers the registered account email and falls back to the snapshot.
func (o *Order) ContactEmail() string {
	if o.Account != nil && o.Account.Email != "" {
		return o.Account.Email
	}
	return o.Customer.Email
}

// ContactName prefers the registered account name and falls back to the snapshot.
func (o *Order) ContactName() string {
	if o.Account != nil && o.Account.Name != "" {
		return o.Account.Name
	}
	return o.Customer.Name
}

type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Size        *string         `json:"size,omitempty"`
	Color       *string         `json:"color,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type PaymentSettings struct {
	ID            int64     `json:"id"`
	BankName      string    `json:"bank_name"`
	AccountName   string    `json:"account_name"`
	AccountNumber string    `json:"account_number"`
	Instructions  string    `json:"instructions,omitempty"`
	IsActive      bool      `json:"is_active"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OrderSummary is one row in the administrative order listing.
type OrderSummary struct {
	ID                int64             `json:"id"`
	OrderNumber       string            `json:"order_number"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	TotalAmount       decimal.Decimal   `json:"total_amount"`
	PaymentProofURL   *string           `json:"payment_proof_url,omitempty"`
	TransactionID     *string           `json:"transaction_id,omitempty"`
	CustomerName      string            `json:"customer_name"`
	CustomerEmail     string            `json:"customer_email"`
	Guest             bool              `json:"guest"`
	CreatedAt         time.Time         `json:"created_at"`
}
