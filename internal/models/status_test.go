package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to FulfillmentStatus
		want     bool
	}{
		{FulfillmentPending, FulfillmentProcessing, true},
		{FulfillmentProcessing, FulfillmentShipped, true},
		{FulfillmentShipped, FulfillmentDelivered, true},
		{FulfillmentPending, FulfillmentCancelled, true},
		{FulfillmentShipped, FulfillmentCancelled, true},
		{FulfillmentDelivered, FulfillmentDelivered, true},
		{FulfillmentPending, FulfillmentDelivered, false},
		{FulfillmentDelivered, FulfillmentPending, false},
		{FulfillmentCancelled, FulfillmentProcessing, false},
		{FulfillmentDelivered, FulfillmentCancelled, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStatusValid(t *testing.T) {
	assert.True(t, FulfillmentShipped.Valid())
	assert.False(t, FulfillmentStatus("lost").Valid())
	assert.True(t, PaymentVerifying.Valid())
	assert.False(t, PaymentStatus("refunded").Valid())
	assert.True(t, FulfillmentCancelled.Terminal())
	assert.False(t, FulfillmentShipped.Terminal())
}

func TestContactPrefersAccount(t *testing.T) {
	o := &Order{Customer: CustomerSnapshot{Name: "Guest Name", Email: "snap@example.com"}}
	assert.Equal(t, "snap@example.com", o.ContactEmail())
	assert.Equal(t, "Guest Name", o.ContactName())
	assert.True(t, o.IsGuest())

	uid := int64(7)
	o.UserID = &uid
	o.Account = &User{ID: 7, Email: "account@example.com"}
	assert.Equal(t, "account@example.com", o.ContactEmail())
	assert.Equal(t, "Guest Name", o.ContactName())
	assert.False(t, o.IsGuest())
}

func TestAllowedFrom(t *testing.T) {
	assert.ElementsMatch(t,
		[]FulfillmentStatus{FulfillmentDelivered, FulfillmentShipped},
		AllowedFrom(FulfillmentDelivered))
	assert.ElementsMatch(t,
		[]FulfillmentStatus{FulfillmentCancelled, FulfillmentPending, FulfillmentProcessing, FulfillmentShipped},
		AllowedFrom(FulfillmentCancelled))
	assert.ElementsMatch(t, []FulfillmentStatus{FulfillmentPending}, AllowedFrom(FulfillmentPending))
}
