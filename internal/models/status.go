package models

type FulfillmentStatus string

const (
	FulfillmentPending    FulfillmentStatus = "pending"
	FulfillmentProcessing FulfillmentStatus = "processing"
	FulfillmentShipped    FulfillmentStatus = "shipped"
	FulfillmentDelivered  FulfillmentStatus = "delivered"
	FulfillmentCancelled  FulfillmentStatus = "cancelled"
)

func (s FulfillmentStatus) Valid() bool {
	switch s {
	case FulfillmentPending, FulfillmentProcessing, FulfillmentShipped, FulfillmentDelivered, FulfillmentCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further fulfillment movement is expected.
func (s FulfillmentStatus) Terminal() bool {
	return s == FulfillmentDelivered || s == FulfillmentCancelled
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentVerifying PaymentStatus = "verifying"
	PaymentPaid      PaymentStatus = "paid"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentVerifying, PaymentPaid:
		return true
	}
	return false
}

var fulfillmentTransitions = map[FulfillmentStatus][]FulfillmentStatus{
	FulfillmentPending:    {FulfillmentProcessing, FulfillmentCancelled},
	FulfillmentProcessing: {FulfillmentShipped, FulfillmentCancelled},
	FulfillmentShipped:    {FulfillmentDelivered, FulfillmentCancelled},
}

// CanTransition reports whether from -> to follows the forward fulfillment workflow.
// Setting the current status again is always allowed.
func CanTransition(from, to FulfillmentStatus) bool {
	if from == to {
		return true
	}
	for _, next := range fulfillmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedFrom lists the statuses from which to may be entered, including to itself.
func AllowedFrom(to FulfillmentStatus) []FulfillmentStatus {
	from := []FulfillmentStatus{to}
	for src, targets := range fulfillmentTransitions {
		for _, next := range targets {
			if next == to {
				from = append(from, src)
			}
		}
	}
	return from
}
