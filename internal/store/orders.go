package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/checkout-lifecycle/internal/database"
	"github.com/safar/checkout-lifecycle/internal/models"
	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	OrderNumber     string
	UserID          *int64
	Customer        models.CustomerSnapshot
	Items           []OrderItemRequest
	TotalAmount     decimal.Decimal
	PaymentStatus   models.PaymentStatus
	PaymentProofURL *string
	TransactionID   *string

	// Confirmation builds the notification intent written in the same
	// transaction as the order. The returned intent's State is set to pending
	// once its row is stored; a failed insert leaves the order in place.
	Confirmation func(order *models.Order) *models.Notification
}

type OrderItemRequest struct {
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Size        *string
	Color       *string
}

const orderColumns = `
	o.id, o.order_number, o.user_id, o.address_id, o.fulfillment_status, o.payment_status,
	o.total_amount, o.payment_proof_url, o.transaction_id, o.customer_snapshot,
	o.created_at, o.updated_at, o.version,
	u.id, u.email, u.name`

const orderFrom = `
	FROM orders o
	LEFT JOIN users u ON u.id = o.user_id`

// CreateOrder writes the address (registered customers only), the order and its
// items in one transaction. Readers never see an order without its items.
func (s *Store) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	snapshot, err := encodeSnapshot(req.Customer)
	if err != nil {
		return nil, err
	}

	var order *models.Order

	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var addressID *int64
		if req.UserID != nil {
			id, err := insertAddress(ctx, tx, *req.UserID, req.Customer.Address)
			if err != nil {
				return err
			}
			addressID = &id
		}

		order = &models.Order{
			OrderNumber:       req.OrderNumber,
			UserID:            req.UserID,
			AddressID:         addressID,
			FulfillmentStatus: models.FulfillmentPending,
			PaymentStatus:     req.PaymentStatus,
			TotalAmount:       req.TotalAmount,
			PaymentProofURL:   req.PaymentProofURL,
			TransactionID:     req.TransactionID,
			Customer:          req.Customer,
		}

		err := tx.QueryRowContext(ctx,
			`INSERT INTO orders (order_number, user_id, address_id, fulfillment_status, payment_status,
			                     total_amount, payment_proof_url, transaction_id, customer_snapshot,
			                     created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW(), 1)
			 RETURNING id, created_at, updated_at, version`,
			req.OrderNumber,
			nullInt64(req.UserID),
			nullInt64(addressID),
			string(models.FulfillmentPending),
			string(req.PaymentStatus),
			req.TotalAmount,
			nullString(req.PaymentProofURL),
			nullString(req.TransactionID),
			snapshot,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt, &order.Version)
		if err != nil {
			if database.IsUniqueViolation(err, orderNumberConstraint) {
				return ErrDuplicateOrderNumber
			}
			if database.IsForeignKeyViolation(err) {
				return ErrUserNotFound
			}
			return fmt.Errorf("create order: %w", err)
		}

		items := make([]models.OrderItem, 0, len(req.Items))
		for _, item := range req.Items {
			created, err := insertOrderItem(ctx, tx, order.ID, item)
			if err != nil {
				return err
			}
			items = append(items, created)
		}
		order.Items = items

		if req.UserID != nil {
			account, err := accountInTx(ctx, tx, *req.UserID)
			if err != nil {
				return err
			}
			order.Account = account
		}

		if req.Confirmation == nil {
			return nil
		}
		n := req.Confirmation(order)
		if n == nil {
			return nil
		}
		n.State = ""
		stored, err := insertNotificationSavepoint(ctx, tx, *n)
		if err != nil {
			return err
		}
		if stored {
			n.State = models.NotificationPending
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func accountInTx(ctx context.Context, tx *sql.Tx, userID int64) (*models.User, error) {
	account := &models.User{ID: userID}
	err := tx.QueryRowContext(ctx,
		`SELECT email, name FROM users WHERE id = $1`, userID).Scan(&account.Email, &account.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load order account: %w", err)
	}
	return account, nil
}

func insertAddress(ctx context.Context, tx *sql.Tx, userID int64, addr models.Address) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO addresses (user_id, line1, line2, city, state, postal_code, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING id`,
		userID, addr.Line1, addr.Line2, addr.City, addr.State, addr.PostalCode).Scan(&id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("create address: %w", err)
	}
	return id, nil
}

func insertOrderItem(ctx context.Context, tx *sql.Tx, orderID int64, req OrderItemRequest) (models.OrderItem, error) {
	item := models.OrderItem{
		OrderID:     orderID,
		ProductID:   req.ProductID,
		ProductName: req.ProductName,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		Subtotal:    req.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))),
		Size:        req.Size,
		Color:       req.Color,
	}

	err := tx.QueryRowContext(ctx,
		`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, subtotal, size, color, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 RETURNING id, created_at`,
		orderID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.Subtotal,
		nullString(item.Size), nullString(item.Color),
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return item, fmt.Errorf("create order item: %w", err)
	}

	return item, nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		order       models.Order
		userID      sql.NullInt64
		addressID   sql.NullInt64
		proof       sql.NullString
		txnID       sql.NullString
		snapshot    sql.NullString
		accountID   sql.NullInt64
		accountMail sql.NullString
		accountName sql.NullString
	)

	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&userID,
		&addressID,
		&order.FulfillmentStatus,
		&order.PaymentStatus,
		&order.TotalAmount,
		&proof,
		&txnID,
		&snapshot,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
		&accountID,
		&accountMail,
		&accountName,
	)
	if err != nil {
		return nil, err
	}

	order.UserID = int64Ptr(userID)
	order.AddressID = int64Ptr(addressID)
	order.PaymentProofURL = stringPtr(proof)
	order.TransactionID = stringPtr(txnID)
	order.Customer = snapshotOrEmpty(order.ID, snapshot.String)
	if accountID.Valid {
		order.Account = &models.User{
			ID:    accountID.Int64,
			Email: accountMail.String,
			Name:  accountName.String,
		}
	}

	return &order, nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+orderFrom+` WHERE o.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if order.Items, err = s.orderItems(ctx, order.ID); err != nil {
		return nil, err
	}

	return order, nil
}

func (s *Store) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+orderFrom+` WHERE o.order_number = $1`, orderNumber))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by number: %w", err)
	}

	if order.Items, err = s.orderItems(ctx, order.ID); err != nil {
		return nil, err
	}

	return order, nil
}

func (s *Store) orderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, quantity, unit_price, subtotal, size, color, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		var (
			item  models.OrderItem
			size  sql.NullString
			color sql.NullString
		)
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&size,
			&color,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.Size = stringPtr(size)
		item.Color = stringPtr(color)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func summarize(o *models.Order) models.OrderSummary {
	return models.OrderSummary{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		FulfillmentStatus: o.FulfillmentStatus,
		PaymentStatus:     o.PaymentStatus,
		TotalAmount:       o.TotalAmount,
		PaymentProofURL:   o.PaymentProofURL,
		TransactionID:     o.TransactionID,
		CustomerName:      o.ContactName(),
		CustomerEmail:     o.ContactEmail(),
		Guest:             o.IsGuest(),
		CreatedAt:         o.CreatedAt,
	}
}

// ListOrders returns every order newest first with the resolved customer contact.
func (s *Store) ListOrders(ctx context.Context) ([]models.OrderSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+orderFrom+` ORDER BY o.created_at DESC, o.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.OrderSummary{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, summarize(order))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

func (s *Store) ListCustomerOrdersCursor(ctx context.Context, userID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	before, beforeID := cursorData.bounds()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+orderFrom+`
		 WHERE o.user_id = $1
		   AND ($2::timestamptz IS NULL OR (o.created_at, o.id) < ($2::timestamptz, $3::bigint))
		 ORDER BY o.created_at DESC, o.id DESC
		 LIMIT $4`,
		userID, before, beforeID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list customer orders: %w", err)
	}
	defer rows.Close()

	orders := []models.OrderSummary{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, summarize(order))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// SetPaymentEvidence records whichever evidence fields are non-nil and moves the
// order to verifying. Fields passed as nil keep their stored value.
func (s *Store) SetPaymentEvidence(ctx context.Context, id int64, proofURL, transactionID *string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET payment_proof_url = COALESCE($2, payment_proof_url),
		     transaction_id = COALESCE($3, transaction_id),
		     payment_status = $4,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $1`,
		id, nullString(proofURL), nullString(transactionID), string(models.PaymentVerifying))
	if err != nil {
		return fmt.Errorf("set payment evidence: %w", err)
	}
	return expectRow(result)
}

func (s *Store) ApprovePayment(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET payment_status = $2,
		     fulfillment_status = $3,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $1`,
		id, string(models.PaymentPaid), string(models.FulfillmentProcessing))
	if err != nil {
		return fmt.Errorf("approve payment: %w", err)
	}
	return expectRow(result)
}

func (s *Store) RejectPayment(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET payment_status = $2,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $1`,
		id, string(models.PaymentPending))
	if err != nil {
		return fmt.Errorf("reject payment: %w", err)
	}
	return expectRow(result)
}

// SetFulfillmentStatus moves the order to status. When allowedFrom is non-empty the
// update only applies if the current status is one of them; otherwise
// ErrTransitionNotAllowed is returned.
func (s *Store) SetFulfillmentStatus(ctx context.Context, id int64, status models.FulfillmentStatus, allowedFrom []models.FulfillmentStatus) error {
	var from pq.StringArray
	for _, st := range allowedFrom {
		from = append(from, string(st))
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET fulfillment_status = $2,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $1
		   AND ($3::text[] IS NULL OR fulfillment_status = ANY($3::text[]))`,
		id, string(status), from)
	if err != nil {
		return fmt.Errorf("set fulfillment status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrTransitionNotAllowed
}

// DeleteOrder removes the order; its items go with it through ON DELETE CASCADE.
func (s *Store) DeleteOrder(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return expectRow(result)
}

func expectRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}
