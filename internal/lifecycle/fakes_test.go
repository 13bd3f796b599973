package lifecycle

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/safar/checkout-lifecycle/internal/auth"
	"github.com/safar/checkout-lifecycle/internal/models"
	"github.com/safar/checkout-lifecycle/internal/store"
	"github.com/shopspring/decimal"
)

// memRepo mirrors the Postgres repository semantics in memory.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*models.Order
	users  map[int64]*models.User

	createErr func(req store.CreateOrderRequest) error
	writeErr  error
	creates   int

	// outbox receives intents written alongside a created order.
	outbox *recordingNotifier
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[int64]*models.Order{}, users: map[int64]*models.User{}}
}

func (m *memRepo) CreateOrder(ctx context.Context, req store.CreateOrderRequest) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++

	if m.createErr != nil {
		if err := m.createErr(req); err != nil {
			return nil, err
		}
	}
	for _, o := range m.orders {
		if o.OrderNumber == req.OrderNumber {
			return nil, store.ErrDuplicateOrderNumber
		}
	}

	var account *models.User
	if req.UserID != nil {
		u, ok := m.users[*req.UserID]
		if !ok {
			return nil, store.ErrUserNotFound
		}
		account = u
	}

	m.nextID++
	now := time.Now()
	order := &models.Order{
		ID:                m.nextID,
		OrderNumber:       req.OrderNumber,
		UserID:            req.UserID,
		FulfillmentStatus: models.FulfillmentPending,
		PaymentStatus:     req.PaymentStatus,
		TotalAmount:       req.TotalAmount,
		PaymentProofURL:   req.PaymentProofURL,
		TransactionID:     req.TransactionID,
		Customer:          req.Customer,
		CreatedAt:         now.Add(time.Duration(m.nextID) * time.Millisecond),
		UpdatedAt:         now,
		Version:           1,
		Account:           account,
	}
	for i, item := range req.Items {
		order.Items = append(order.Items, models.OrderItem{
			ID:          int64(i + 1),
			OrderID:     order.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
			Size:        item.Size,
			Color:       item.Color,
		})
	}
	m.orders[order.ID] = order

	out := *order
	if req.Confirmation != nil && m.outbox != nil {
		if n := req.Confirmation(&out); n != nil {
			if err := m.outbox.Enqueue(ctx, *n); err == nil {
				n.State = models.NotificationPending
			}
		}
	}
	return &out, nil
}

func (m *memRepo) get(id int64) (*models.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	return o, nil
}

func (m *memRepo) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.get(id)
	if err != nil {
		return nil, err
	}
	out := *o
	return &out, nil
}

func (m *memRepo) GetOrderByNumber(_ context.Context, number string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNumber == number {
			out := *o
			return &out, nil
		}
	}
	return nil, store.ErrOrderNotFound
}

func (m *memRepo) sorted() []*models.Order {
	list := make([]*models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		list = append(list, o)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list
}

func summary(o *models.Order) models.OrderSummary {
	return models.OrderSummary{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		FulfillmentStatus: o.FulfillmentStatus,
		PaymentStatus:     o.PaymentStatus,
		TotalAmount:       o.TotalAmount,
		CustomerName:      o.ContactName(),
		CustomerEmail:     o.ContactEmail(),
		Guest:             o.IsGuest(),
		CreatedAt:         o.CreatedAt,
	}
}

func (m *memRepo) ListOrders(context.Context) ([]models.OrderSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return nil, m.writeErr
	}
	out := []models.OrderSummary{}
	for _, o := range m.sorted() {
		out = append(out, summary(o))
	}
	return out, nil
}

func (m *memRepo) ListCustomerOrdersCursor(_ context.Context, userID int64, cursor string, limit int) (*store.CursorPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(cursor) != "" {
		return nil, errors.Join(store.ErrInvalidCursor, errors.New("paging not modelled"))
	}
	out := []models.OrderSummary{}
	for _, o := range m.sorted() {
		if o.UserID != nil && *o.UserID == userID && len(out) < limit {
			out = append(out, summary(o))
		}
	}
	return &store.CursorPage{Items: out}, nil
}

func (m *memRepo) SetPaymentEvidence(_ context.Context, id int64, proofURL, transactionID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	o, err := m.get(id)
	if err != nil {
		return err
	}
	if proofURL != nil {
		o.PaymentProofURL = proofURL
	}
	if transactionID != nil {
		o.TransactionID = transactionID
	}
	o.PaymentStatus = models.PaymentVerifying
	o.Version++
	return nil
}

func (m *memRepo) ApprovePayment(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.get(id)
	if err != nil {
		return err
	}
	o.PaymentStatus = models.PaymentPaid
	o.FulfillmentStatus = models.FulfillmentProcessing
	return nil
}

func (m *memRepo) RejectPayment(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.get(id)
	if err != nil {
		return err
	}
	o.PaymentStatus = models.PaymentPending
	return nil
}

func (m *memRepo) SetFulfillmentStatus(_ context.Context, id int64, status models.FulfillmentStatus, allowedFrom []models.FulfillmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.get(id)
	if err != nil {
		return err
	}
	if len(allowedFrom) > 0 {
		ok := false
		for _, from := range allowedFrom {
			if from == o.FulfillmentStatus {
				ok = true
			}
		}
		if !ok {
			return store.ErrTransitionNotAllowed
		}
	}
	o.FulfillmentStatus = status
	return nil
}

func (m *memRepo) DeleteOrder(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.get(id); err != nil {
		return err
	}
	delete(m.orders, id)
	return nil
}

type memSettings struct {
	active *models.PaymentSettings
	err    error
}

func (s *memSettings) GetPaymentSettings(context.Context) (*models.PaymentSettings, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.active == nil {
		return nil, store.ErrPaymentSettingsNotFound
	}
	out := *s.active
	return &out, nil
}

func (s *memSettings) SavePaymentSettings(_ context.Context, in models.PaymentSettings) (*models.PaymentSettings, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.active != nil {
		in.ID = s.active.ID
	} else {
		in.ID = 1
	}
	in.IsActive = true
	s.active = &in
	out := in
	return &out, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	queued    []models.Notification
	committed []models.Notification
	err       error
}

func (n *recordingNotifier) Committed(note models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.committed = append(n.committed, note)
}

func (n *recordingNotifier) Enqueue(_ context.Context, note models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queued = append(n.queued, note)
	return n.err
}

func (n *recordingNotifier) kinds() []models.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := []models.NotificationKind{}
	for _, q := range n.queued {
		out = append(out, q.Kind)
	}
	return out
}

const adminToken = "admin-capability"

type staticAuthorizer struct{}

func (staticAuthorizer) RequireAdmin(token string) (*auth.Claims, error) {
	if token != adminToken {
		return nil, auth.ErrInvalidToken
	}
	claims := &auth.Claims{Role: auth.RoleAdmin}
	claims.Subject = "admin"
	return claims, nil
}
