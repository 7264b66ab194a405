package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"marketplace-service/internal/geo"
	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyOrder is returned when a checkout carries no line items.
var ErrEmptyOrder = errors.New("order must contain at least one item")

// ErrInvalidTransition is returned when a status update is not allowed by
// the order lifecycle.
var ErrInvalidTransition = errors.New("illegal status transition")

// ErrInsufficientStock is returned when a line cannot be reserved.
var ErrInsufficientStock = errors.New("insufficient stock")

// OrderStore is the persistence surface the order service depends on.
// Satisfied by *store.Store.
type OrderStore interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	GetSellerByID(ctx context.Context, id int64) (*models.Seller, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrdersByIdempotencyKey(ctx context.Context, key string) ([]models.Order, error)
	QueryOrders(ctx context.Context, buyerID, sellerID int64, status string) ([]models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	HasReviewForOrder(ctx context.Context, orderID, buyerID int64) (bool, error)
}

// StockReserver reserves and releases product stock. Satisfied by
// *StockClient.
type StockReserver interface {
	Reserve(ctx context.Context, productID int64, quantity int) (bool, error)
	Release(ctx context.Context, productID int64, quantity int) error
}

// OrderEvents publishes order lifecycle events. Satisfied by
// *broker.EventPublisher.
type OrderEvents interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// ShippingRates configures the distance-based shipping fee.
type ShippingRates struct {
	BaseFee  int64
	FeePerKm int64
}

// OrderService owns the order collection. Reads are served from a local
// cache that fetches replace wholesale; mutations write through to storage
// and reconcile the cache with whatever storage returned.
type OrderService struct {
	store    OrderStore
	stock    StockReserver
	events   OrderEvents
	shipping ShippingRates
	logger   *zap.Logger

	mu       sync.RWMutex
	orders   []models.Order
	lastErr  string
	inFlight bool
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore, stock StockReserver, events OrderEvents, shipping ShippingRates) *OrderService {
	return &OrderService{
		store:    store,
		stock:    stock,
		events:   events,
		shipping: shipping,
		logger:   util.GetLogger(),
	}
}

// PlaceOrderRequest represents a checkout submission
type PlaceOrderRequest struct {
	BuyerID         int64              `json:"buyer_id"`
	PaymentMethod   string             `json:"payment_method" binding:"required,oneof=EWALLET COD"`
	Items           []OrderItemRequest `json:"items" binding:"required,min=1"`
	DeliveryAddress string             `json:"delivery_address" binding:"required"`
	DeliveryLat     float64            `json:"delivery_lat"`
	DeliveryLng     float64            `json:"delivery_lng"`
	IdempotencyKey  string             `json:"idempotency_key,omitempty"`
}

// OrderItemRequest represents one line in a checkout
type OrderItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// FetchOrders queries storage with optional filters and replaces the local
// collection with the result set. It is deliberately not coalesced: when
// two fetches race, the later response wins regardless of issue order.
func (s *OrderService) FetchOrders(ctx context.Context, buyerID, sellerID int64, status string) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.FetchOrders")
	defer span.End()

	s.setInFlight(true)
	defer s.setInFlight(false)

	orders, err := s.store.QueryOrders(ctx, buyerID, sellerID, status)
	if err != nil {
		s.recordError(err)
		return nil, fmt.Errorf("failed to fetch orders: %w", err)
	}

	for i := range orders {
		items, err := s.store.GetOrderItemsByOrderID(ctx, orders[i].ID)
		if err != nil {
			s.recordError(err)
			return nil, fmt.Errorf("failed to fetch order items: %w", err)
		}
		orders[i].Items = items
		s.deriveFlags(ctx, &orders[i])
	}

	s.mu.Lock()
	s.orders = orders
	s.lastErr = ""
	s.mu.Unlock()

	return orders, nil
}

// PlaceOrder validates and persists a checkout. A multi-seller cart is
// split into one order per seller; every created order is appended to the
// local collection with its storage-assigned id. There is no partial
// success: the first storage error aborts the whole checkout.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	s.setInFlight(true)
	defer s.setInFlight(false)

	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	existing, err := s.store.GetOrdersByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		s.recordError(err)
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if len(existing) > 0 {
		s.logger.Info("Duplicate checkout detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int("orders", len(existing)))
		return existing, nil
	}

	products, err := s.resolveProducts(ctx, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		s.recordError(err)
		return nil, err
	}

	if err := s.reserveStock(ctx, req.Items); err != nil {
		util.OrdersFailedTotal.WithLabelValues("reservation_failed").Inc()
		s.recordError(err)
		return nil, err
	}

	bySeller := map[int64][]OrderItemRequest{}
	for _, item := range req.Items {
		sellerID := products[item.ProductID].SellerID
		bySeller[sellerID] = append(bySeller[sellerID], item)
	}

	created := make([]models.Order, 0, len(bySeller))
	for sellerID, items := range bySeller {
		order, err := s.createSellerOrder(ctx, req, sellerID, items, products)
		if err != nil {
			s.releaseStock(ctx, req.Items)
			util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
			s.recordError(err)
			return nil, err
		}
		created = append(created, *order)
	}

	s.mu.Lock()
	s.orders = append(s.orders, created...)
	s.lastErr = ""
	s.mu.Unlock()

	util.OrdersPlacedTotal.Inc()
	util.OrdersSplitTotal.Observe(float64(len(created)))
	s.logger.Info("Checkout placed",
		zap.Int64("buyer_id", req.BuyerID),
		zap.Int("orders", len(created)))

	return created, nil
}

// UpdateOrderStatus validates the transition against the order lifecycle,
// persists it, and replaces the matching cached order in place.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()

	s.setInFlight(true)
	defer s.setInFlight(false)

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		s.recordError(err)
		return nil, err
	}

	if !models.CanTransition(order.Status, status) {
		err := fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, status)
		s.recordError(err)
		return nil, err
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, status); err != nil {
		s.recordError(err)
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	util.OrderStatusTransitions.WithLabelValues(order.Status, status).Inc()

	fromStatus := order.Status
	order.Status = status
	order.UpdatedAt = time.Now()
	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err == nil {
		order.Items = items
	}
	s.deriveFlags(ctx, order)

	s.mu.Lock()
	for i := range s.orders {
		if s.orders[i].ID == orderID {
			s.orders[i] = *order
			break
		}
	}
	s.lastErr = ""
	s.mu.Unlock()

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID:    orderID,
		BuyerID:    order.BuyerID,
		FromStatus: fromStatus,
		ToStatus:   status,
	}
	if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	return order, nil
}

// CancelOrder transitions an order to CANCELLED and releases its stock.
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64, reason string) (*models.Order, error) {
	order, err := s.UpdateOrderStatus(ctx, orderID, models.OrderStatusCancelled)
	if err != nil {
		return nil, err
	}

	for _, item := range order.Items {
		if err := s.stock.Release(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("Failed to release stock on cancellation",
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
	}

	event := &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCancelled,
			Timestamp: time.Now(),
		},
		OrderID: orderID,
		Reason:  reason,
	}
	if err := s.events.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}

	return order, nil
}

// GetOrdersByBuyer filters the cached collection without fetching; the
// result may be stale until FetchOrders runs.
func (s *OrderService) GetOrdersByBuyer(buyerID int64) []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Order{}
	for _, o := range s.orders {
		if o.BuyerID == buyerID {
			out = append(out, o)
		}
	}
	return out
}

// GetOrdersBySeller filters the cached collection without fetching.
func (s *OrderService) GetOrdersBySeller(sellerID int64) []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Order{}
	for _, o := range s.orders {
		if o.SellerID == sellerID {
			out = append(out, o)
		}
	}
	return out
}

// GetOrder retrieves an order with its items from storage.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	s.deriveFlags(ctx, order)

	return order, nil
}

// CachedOrders returns a copy of the local collection.
func (s *OrderService) CachedOrders() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// LastError returns the most recent mutation error, empty after a success.
func (s *OrderService) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// InFlight reports whether a remote call is currently running.
func (s *OrderService) InFlight() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight
}

func (s *OrderService) createSellerOrder(
	ctx context.Context,
	req *PlaceOrderRequest,
	sellerID int64,
	items []OrderItemRequest,
	products map[int64]*models.Product,
) (*models.Order, error) {
	seller, err := s.store.GetSellerByID(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve seller %d: %w", sellerID, err)
	}

	var itemsTotal int64
	for _, item := range items {
		itemsTotal += products[item.ProductID].Price * int64(item.Quantity)
	}

	distance := geo.Distance(
		geo.Point{Lat: seller.Lat, Lng: seller.Lng},
		geo.Point{Lat: req.DeliveryLat, Lng: req.DeliveryLng},
	)
	shippingFee := s.shipping.BaseFee + s.shipping.FeePerKm*int64(math.Ceil(distance))

	order := &models.Order{
		BuyerID:         req.BuyerID,
		SellerID:        sellerID,
		SellerName:      seller.Name,
		TotalPrice:      itemsTotal + shippingFee,
		ShippingFee:     shippingFee,
		Status:          models.OrderStatusPending,
		PaymentMethod:   req.PaymentMethod,
		OrderDate:       time.Now(),
		DeliveryAddress: req.DeliveryAddress,
		DeliveryLat:     req.DeliveryLat,
		DeliveryLng:     req.DeliveryLng,
		IdempotencyKey:  req.IdempotencyKey,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	eventItems := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		product := products[item.ProductID]
		orderItem := &models.OrderItem{
			OrderID:     order.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			ImageURL:    product.ImageURL,
			Quantity:    item.Quantity,
			Unit:        product.Unit,
			UnitPrice:   product.Price,
			Subtotal:    product.Price * int64(item.Quantity),
		}
		if err := s.store.CreateOrderItem(ctx, orderItem); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
		order.Items = append(order.Items, *orderItem)

		eventItems = append(eventItems, models.OrderItemData{
			ProductID: product.ID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
	}

	payment := &models.Payment{
		OrderID: order.ID,
		Method:  req.PaymentMethod,
		Status:  models.PaymentStatusPending,
		Amount:  order.TotalPrice,
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		SellerID:      sellerID,
		TotalPrice:    order.TotalPrice,
		PaymentMethod: order.PaymentMethod,
		Items:         eventItems,
	}
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Error(err))
	}

	return order, nil
}

func (s *OrderService) reserveStock(ctx context.Context, items []OrderItemRequest) error {
	start := time.Now()
	defer func() {
		util.StockReserveLatency.Observe(time.Since(start).Seconds())
	}()

	reserved := make([]OrderItemRequest, 0, len(items))
	for _, item := range items {
		ok, err := s.stock.Reserve(ctx, item.ProductID, item.Quantity)
		if err != nil {
			util.StockReservationsFailed.WithLabelValues("error").Inc()
			s.releaseStock(ctx, reserved)
			return fmt.Errorf("failed to reserve stock for product %d: %w", item.ProductID, err)
		}
		if !ok {
			util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
			s.releaseStock(ctx, reserved)
			return fmt.Errorf("%w: product %d", ErrInsufficientStock, item.ProductID)
		}
		reserved = append(reserved, item)
	}
	return nil
}

func (s *OrderService) releaseStock(ctx context.Context, items []OrderItemRequest) {
	for _, item := range items {
		if err := s.stock.Release(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.Error("Failed to release stock",
				zap.Int64("product_id", item.ProductID),
				zap.Error(err))
		}
	}
}

func (s *OrderService) resolveProducts(ctx context.Context, items []OrderItemRequest) (map[int64]*models.Product, error) {
	productIDs := make([]int64, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
	}

	products, err := s.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}

	productMap := make(map[int64]*models.Product)
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}

	for _, item := range items {
		if _, ok := productMap[item.ProductID]; !ok {
			return nil, fmt.Errorf("product not found: %d", item.ProductID)
		}
	}

	return productMap, nil
}

func (s *OrderService) deriveFlags(ctx context.Context, order *models.Order) {
	order.CanReorder = models.IsTerminalOrderStatus(order.Status)
	order.CanReview = false

	if order.Status == models.OrderStatusDelivered {
		reviewed, err := s.store.HasReviewForOrder(ctx, order.ID, order.BuyerID)
		if err != nil {
			s.logger.Warn("Failed to check review flag",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
			return
		}
		order.CanReview = !reviewed
	}
}

func (s *OrderService) recordError(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

func (s *OrderService) setInFlight(v bool) {
	s.mu.Lock()
	s.inFlight = v
	s.mu.Unlock()
}
