package service

import (
	"context"
	"fmt"
	"testing"

	"marketplace-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderStore struct {
	products map[int64]*models.Product
	sellers  map[int64]*models.Seller
	orders   map[int64]*models.Order
	items    map[int64][]models.OrderItem
	reviewed map[int64]bool
	nextID   int64
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		products: map[int64]*models.Product{},
		sellers:  map[int64]*models.Seller{},
		orders:   map[int64]*models.Order{},
		items:    map[int64][]models.OrderItem{},
		reviewed: map[int64]bool{},
	}
}

func (f *fakeOrderStore) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) GetSellerByID(_ context.Context, id int64) (*models.Seller, error) {
	s, ok := f.sellers[id]
	if !ok {
		return nil, fmt.Errorf("seller not found: %d", id)
	}
	return s, nil
}

func (f *fakeOrderStore) CreateOrder(_ context.Context, order *models.Order) error {
	f.nextID++
	order.ID = f.nextID
	stored := *order
	f.orders[order.ID] = &stored
	return nil
}

func (f *fakeOrderStore) CreateOrderItem(_ context.Context, item *models.OrderItem) error {
	f.nextID++
	item.ID = f.nextID
	f.items[item.OrderID] = append(f.items[item.OrderID], *item)
	return nil
}

func (f *fakeOrderStore) CreatePayment(_ context.Context, payment *models.Payment) error {
	f.nextID++
	payment.ID = f.nextID
	return nil
}

func (f *fakeOrderStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderStore) GetOrdersByIdempotencyKey(_ context.Context, key string) ([]models.Order, error) {
	out := []models.Order{}
	for _, o := range f.orders {
		if o.IdempotencyKey == key {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) QueryOrders(_ context.Context, buyerID, sellerID int64, status string) ([]models.Order, error) {
	out := []models.Order{}
	for _, o := range f.orders {
		if buyerID != 0 && o.BuyerID != buyerID {
			continue
		}
		if sellerID != 0 && o.SellerID != sellerID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeOrderStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	return f.items[orderID], nil
}

func (f *fakeOrderStore) UpdateOrderStatus(_ context.Context, orderID int64, status string) error {
	o, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order not found: %d", orderID)
	}
	o.Status = status
	return nil
}

func (f *fakeOrderStore) HasReviewForOrder(_ context.Context, orderID, _ int64) (bool, error) {
	return f.reviewed[orderID], nil
}

type fakeStock struct {
	failProduct int64
	reserved    map[int64]int
	released    map[int64]int
}

func newFakeStock() *fakeStock {
	return &fakeStock{reserved: map[int64]int{}, released: map[int64]int{}}
}

func (f *fakeStock) Reserve(_ context.Context, productID int64, quantity int) (bool, error) {
	if productID == f.failProduct {
		return false, nil
	}
	f.reserved[productID] += quantity
	return true, nil
}

func (f *fakeStock) Release(_ context.Context, productID int64, quantity int) error {
	f.released[productID] += quantity
	return nil
}

type fakeEvents struct {
	placed        int
	statusChanged int
	cancelled     int
}

func (f *fakeEvents) PublishOrderPlaced(_ context.Context, _ *models.OrderPlacedEvent) error {
	f.placed++
	return nil
}

func (f *fakeEvents) PublishOrderStatusChanged(_ context.Context, _ *models.OrderStatusChangedEvent) error {
	f.statusChanged++
	return nil
}

func (f *fakeEvents) PublishOrderCancelled(_ context.Context, _ *models.OrderCancelledEvent) error {
	f.cancelled++
	return nil
}

func newTestOrderService(store *fakeOrderStore, stock *fakeStock, events *fakeEvents) *OrderService {
	return NewOrderService(store, stock, events, ShippingRates{BaseFee: 5000, FeePerKm: 1500})
}

func seedCatalog(store *fakeOrderStore) {
	store.sellers[1] = &models.Seller{ID: 1, Name: "Green Farm", Lat: -6.2, Lng: 106.8}
	store.sellers[2] = &models.Seller{ID: 2, Name: "Hilltop Farm", Lat: -6.2, Lng: 106.8}
	store.products[10] = &models.Product{ID: 10, SellerID: 1, Name: "Tomatoes", Price: 100, Unit: "kg", Stock: 5}
	store.products[11] = &models.Product{ID: 11, SellerID: 1, Name: "Carrots", Price: 250, Unit: "kg", Stock: 10}
	store.products[20] = &models.Product{ID: 20, SellerID: 2, Name: "Rice", Price: 1200, Unit: "sack", Stock: 3}
}

func placeRequest(items ...OrderItemRequest) *PlaceOrderRequest {
	return &PlaceOrderRequest{
		BuyerID:         7,
		PaymentMethod:   models.PaymentMethodCOD,
		Items:           items,
		DeliveryAddress: "Jl. Pasar 1",
		// same coordinates as the sellers, so shipping is the base fee
		DeliveryLat:    -6.2,
		DeliveryLng:    106.8,
		IdempotencyKey: "test-checkout",
	}
}

func TestPlaceOrderSplitsMultiSellerCart(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	events := &fakeEvents{}
	svc := newTestOrderService(store, newFakeStock(), events)

	created, err := svc.PlaceOrder(context.Background(), placeRequest(
		OrderItemRequest{ProductID: 10, Quantity: 2},
		OrderItemRequest{ProductID: 20, Quantity: 1},
	))
	require.NoError(t, err)
	require.Len(t, created, 2)

	// storage-assigned ids survive into the local collection
	cached := svc.CachedOrders()
	require.Len(t, cached, 2)
	ids := map[int64]bool{}
	for _, o := range cached {
		assert.NotZero(t, o.ID)
		assert.NotNil(t, store.orders[o.ID])
		ids[o.ID] = true
	}
	assert.Len(t, ids, 2)

	assert.Equal(t, 2, events.placed)
	assert.Empty(t, svc.LastError())
}

func TestPlaceOrderSingleSellerTotals(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	svc := newTestOrderService(store, newFakeStock(), &fakeEvents{})

	created, err := svc.PlaceOrder(context.Background(), placeRequest(
		OrderItemRequest{ProductID: 10, Quantity: 2},
		OrderItemRequest{ProductID: 11, Quantity: 4},
	))
	require.NoError(t, err)
	require.Len(t, created, 1)

	order := created[0]
	assert.Equal(t, int64(5000), order.ShippingFee)
	assert.Equal(t, int64(2*100+4*250+5000), order.TotalPrice)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Len(t, order.Items, 2)
	for _, item := range order.Items {
		assert.Equal(t, item.UnitPrice*int64(item.Quantity), item.Subtotal)
	}
}

func TestPlaceOrderEmptyFails(t *testing.T) {
	svc := newTestOrderService(newFakeOrderStore(), newFakeStock(), &fakeEvents{})

	_, err := svc.PlaceOrder(context.Background(), placeRequest())
	assert.ErrorIs(t, err, ErrEmptyOrder)
	assert.Empty(t, svc.CachedOrders())
}

func TestPlaceOrderInsufficientStockCompensates(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	stock := newFakeStock()
	stock.failProduct = 20
	svc := newTestOrderService(store, stock, &fakeEvents{})

	_, err := svc.PlaceOrder(context.Background(), placeRequest(
		OrderItemRequest{ProductID: 10, Quantity: 2},
		OrderItemRequest{ProductID: 20, Quantity: 1},
	))
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Empty(t, svc.CachedOrders())
	assert.NotEmpty(t, svc.LastError())
	// the line reserved before the failure is released again
	assert.Equal(t, 2, stock.released[10])
}

func TestPlaceOrderIdempotency(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	svc := newTestOrderService(store, newFakeStock(), &fakeEvents{})

	first, err := svc.PlaceOrder(context.Background(), placeRequest(
		OrderItemRequest{ProductID: 10, Quantity: 1},
	))
	require.NoError(t, err)
	require.Len(t, first, 1)

	again, err := svc.PlaceOrder(context.Background(), placeRequest(
		OrderItemRequest{ProductID: 10, Quantity: 1},
	))
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, first[0].ID, again[0].ID)
	assert.Len(t, store.orders, 1)
}

func TestFetchOrdersReplacesCache(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	svc := newTestOrderService(store, newFakeStock(), &fakeEvents{})

	_, err := svc.PlaceOrder(context.Background(), placeRequest(
		OrderItemRequest{ProductID: 10, Quantity: 1},
	))
	require.NoError(t, err)
	require.Len(t, svc.CachedOrders(), 1)

	// a filtered fetch that matches nothing wipes the collection: replace,
	// not merge
	fetched, err := svc.FetchOrders(context.Background(), 999, 0, "")
	require.NoError(t, err)
	assert.Empty(t, fetched)
	assert.Empty(t, svc.CachedOrders())

	fetched, err = svc.FetchOrders(context.Background(), 7, 0, "")
	require.NoError(t, err)
	assert.Len(t, fetched, 1)
	assert.Len(t, svc.CachedOrders(), 1)
}

func TestUpdateOrderStatusValidTransition(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	events := &fakeEvents{}
	svc := newTestOrderService(store, newFakeStock(), events)

	created, err := svc.PlaceOrder(context.Background(), placeRequest(
		OrderItemRequest{ProductID: 10, Quantity: 1},
	))
	require.NoError(t, err)
	orderID := created[0].ID

	updated, err := svc.UpdateOrderStatus(context.Background(), orderID, models.OrderStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, updated.Status)
	assert.Equal(t, 1, events.statusChanged)

	// the cached copy is replaced in place
	cached := svc.CachedOrders()
	require.Len(t, cached, 1)
	assert.Equal(t, models.OrderStatusProcessing, cached[0].Status)
}

func TestUpdateOrderStatusRejectsIllegalTransition(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	svc := newTestOrderService(store, newFakeStock(), &fakeEvents{})

	created, err := svc.PlaceOrder(context.Background(), placeRequest(
		OrderItemRequest{ProductID: 10, Quantity: 1},
	))
	require.NoError(t, err)
	orderID := created[0].ID

	// skipping PROCESSING is not allowed
	_, err = svc.UpdateOrderStatus(context.Background(), orderID, models.OrderStatusShipped)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// terminal states accept nothing
	_, err = svc.UpdateOrderStatus(context.Background(), orderID, models.OrderStatusProcessing)
	require.NoError(t, err)
	_, err = svc.UpdateOrderStatus(context.Background(), orderID, models.OrderStatusShipped)
	require.NoError(t, err)
	_, err = svc.UpdateOrderStatus(context.Background(), orderID, models.OrderStatusDelivered)
	require.NoError(t, err)
	_, err = svc.UpdateOrderStatus(context.Background(), orderID, models.OrderStatusProcessing)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelOrderReleasesStock(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	stock := newFakeStock()
	events := &fakeEvents{}
	svc := newTestOrderService(store, stock, events)

	created, err := svc.PlaceOrder(context.Background(), placeRequest(
		OrderItemRequest{ProductID: 10, Quantity: 3},
	))
	require.NoError(t, err)

	cancelled, err := svc.CancelOrder(context.Background(), created[0].ID, "buyer request")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 3, stock.released[10])
	assert.Equal(t, 1, events.cancelled)
}

func TestBuyerAndSellerFiltersAreCacheOnly(t *testing.T) {
	store := newFakeOrderStore()
	seedCatalog(store)
	svc := newTestOrderService(store, newFakeStock(), &fakeEvents{})

	_, err := svc.PlaceOrder(context.Background(), placeRequest(
		OrderItemRequest{ProductID: 10, Quantity: 1},
		OrderItemRequest{ProductID: 20, Quantity: 1},
	))
	require.NoError(t, err)

	assert.Len(t, svc.GetOrdersByBuyer(7), 2)
	assert.Empty(t, svc.GetOrdersByBuyer(999))
	assert.Len(t, svc.GetOrdersBySeller(1), 1)
	assert.Len(t, svc.GetOrdersBySeller(2), 1)

	// an order created behind the service's back is invisible until a fetch
	store.CreateOrder(context.Background(), &models.Order{BuyerID: 7, SellerID: 1, Status: models.OrderStatusPending})
	assert.Len(t, svc.GetOrdersByBuyer(7), 2)
}
