package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"marketplace-service/internal/models"
)

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (buyer_id, seller_id, seller_name, total_price, shipping_fee,
			status, payment_method, order_date, delivery_address, delivery_lat, delivery_lng,
			idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, order, query,
		order.BuyerID, order.SellerID, order.SellerName, order.TotalPrice, order.ShippingFee,
		order.Status, order.PaymentMethod, order.OrderDate, order.DeliveryAddress,
		order.DeliveryLat, order.DeliveryLng, order.IdempotencyKey)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByIdempotencyKey retrieves the orders created by an earlier
// checkout with the same key, if any.
func (s *Store) GetOrdersByIdempotencyKey(ctx context.Context, key string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE idempotency_key = $1 ORDER BY id", key)
	return orders, err
}

// QueryOrders retrieves orders filtered by any combination of buyer,
// seller and status. A zero/empty filter is skipped.
func (s *Store) QueryOrders(ctx context.Context, buyerID, sellerID int64, status string) ([]models.Order, error) {
	clauses := []string{}
	args := []interface{}{}

	if buyerID != 0 {
		args = append(args, buyerID)
		clauses = append(clauses, "buyer_id = $"+strconv.Itoa(len(args)))
	}
	if sellerID != 0 {
		args = append(args, sellerID)
		clauses = append(clauses, "seller_id = $"+strconv.Itoa(len(args)))
	}
	if status != "" {
		args = append(args, status)
		clauses = append(clauses, "status = $"+strconv.Itoa(len(args)))
	}

	query := "SELECT * FROM orders"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, query, args...)
	return orders, err
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// CreateOrderItem creates a new order item
func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, product_name, image_url,
			quantity, unit, unit_price, subtotal)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	return s.db.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.ProductName, item.ImageURL,
		item.Quantity, item.Unit, item.UnitPrice, item.Subtotal)
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// CreatePayment creates a new payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, method, status, provider_tx_id, amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, payment, query,
		payment.OrderID, payment.Method, payment.Status, payment.ProviderTxID, payment.Amount)
}

// GetPaymentByOrderID retrieves payment for an order
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment not found for order: %d", orderID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdatePaymentStatus updates payment status
func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentID int64, status, providerTxID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payments SET status = $1, provider_tx_id = $2, updated_at = NOW() WHERE id = $3",
		status, providerTxID, paymentID)
	return err
}
