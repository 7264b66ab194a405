package worker

import (
	"context"
	"time"

	"marketplace-service/internal/broker"
	"marketplace-service/internal/geo"
	"marketplace-service/internal/models"
	"marketplace-service/internal/redisclient"
	"marketplace-service/internal/service"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

// DeliveryWorker reacts to order lifecycle events: it caches a delivery
// estimate when an order ships, settles cash-on-delivery payments and
// commits reserved stock on delivery, and compensates declined e-wallet
// charges by cancelling the order.
type DeliveryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	redis        *redisclient.Client
	orders       *service.OrderService
	payments     *service.PaymentService
	stock        *service.StockClient
	courierSpeed float64
	logger       *zap.Logger
}

// NewDeliveryWorker creates a new delivery worker
func NewDeliveryWorker(
	consumer *broker.Consumer,
	store *store.Store,
	redis *redisclient.Client,
	orders *service.OrderService,
	payments *service.PaymentService,
	stock *service.StockClient,
	courierSpeed float64,
) *DeliveryWorker {
	w := &DeliveryWorker{
		consumer:     consumer,
		store:        store,
		redis:        redis,
		orders:       orders,
		payments:     payments,
		stock:        stock,
		courierSpeed: courierSpeed,
		logger:       util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderStatusChanged(w.handleStatusChanged)
	eventHandler.OnPaymentFailed(w.handlePaymentFailed)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *DeliveryWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting delivery worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *DeliveryWorker) Stop() error {
	w.logger.Info("Stopping delivery worker")
	return w.consumer.Close()
}

func (w *DeliveryWorker) handleStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	ctx, span := util.StartSpan(ctx, "DeliveryWorker.handleStatusChanged")
	defer span.End()

	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	switch event.ToStatus {
	case models.OrderStatusShipped:
		w.cacheDeliveryEstimate(ctx, event.OrderID)

	case models.OrderStatusDelivered:
		if err := w.payments.SettleCOD(ctx, event.OrderID); err != nil {
			w.logger.Error("Failed to settle COD payment",
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
		}

		items, err := w.store.GetOrderItemsByOrderID(ctx, event.OrderID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := w.stock.Commit(ctx, item.ProductID, item.Quantity); err != nil {
				w.logger.Error("Failed to commit stock",
					zap.Int64("product_id", item.ProductID),
					zap.Error(err))
			}
		}
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

func (w *DeliveryWorker) handlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "DeliveryWorker.handlePaymentFailed")
	defer span.End()

	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		return nil
	}

	w.logger.Warn("Payment declined, cancelling order",
		zap.Int64("order_id", event.OrderID),
		zap.String("reason", event.Reason))

	if _, err := w.orders.CancelOrder(ctx, event.OrderID, event.Reason); err != nil {
		w.logger.Error("Failed to cancel order after payment failure",
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

func (w *DeliveryWorker) cacheDeliveryEstimate(ctx context.Context, orderID int64) {
	order, err := w.store.GetOrderByID(ctx, orderID)
	if err != nil {
		w.logger.Error("Failed to load order for ETA", zap.Error(err))
		return
	}

	seller, err := w.store.GetSellerByID(ctx, order.SellerID)
	if err != nil {
		w.logger.Error("Failed to load seller for ETA", zap.Error(err))
		return
	}

	distance := geo.Distance(
		geo.Point{Lat: seller.Lat, Lng: seller.Lng},
		geo.Point{Lat: order.DeliveryLat, Lng: order.DeliveryLng},
	)
	eta := geo.EstimateDeliveryTime(distance, w.courierSpeed)

	if err := w.redis.SetDeliveryETA(ctx, orderID, eta, 7*24*time.Hour); err != nil {
		w.logger.Error("Failed to cache delivery ETA", zap.Error(err))
		return
	}

	w.logger.Info("Delivery estimate cached",
		zap.Int64("order_id", orderID),
		zap.Float64("distance_km", distance),
		zap.String("eta", eta))
}

// EventLedger tracks processed event ids so redelivered messages are
// dropped. Satisfied by *store.Store.
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// WalletCharger runs e-wallet charges. Satisfied by *service.PaymentService.
type WalletCharger interface {
	ChargeEWallet(ctx context.Context, orderID, amount int64) error
}

// PaymentWorker charges e-wallet payments asynchronously as orders are
// placed.
type PaymentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	ledger       EventLedger
	payments     WalletCharger
	logger       *zap.Logger
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer *broker.Consumer, ledger EventLedger, payments WalletCharger) *PaymentWorker {
	w := &PaymentWorker{
		consumer: consumer,
		ledger:   ledger,
		payments: payments,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(w.handleOrderPlaced)
	w.eventHandler = eventHandler

	return w
}

// Start starts the payment worker
func (w *PaymentWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting payment worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the payment worker
func (w *PaymentWorker) Stop() error {
	w.logger.Info("Stopping payment worker")
	return w.consumer.Close()
}

func (w *PaymentWorker) handleOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	if event.PaymentMethod != models.PaymentMethodEWallet {
		return nil
	}

	processed, err := w.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	w.logger.Info("Processing e-wallet charge", zap.Int64("order_id", event.OrderID))
	if err := w.payments.ChargeEWallet(ctx, event.OrderID, event.TotalPrice); err != nil {
		return err
	}

	if err := w.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}
