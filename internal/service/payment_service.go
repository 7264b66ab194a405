package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentStore is the persistence surface the payment service depends on.
// Satisfied by *store.Store.
type PaymentStore interface {
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID int64, status, providerTxID string) error
}

// PaymentEvents publishes payment outcomes. Satisfied by
// *broker.EventPublisher.
type PaymentEvents interface {
	PublishPaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// PaymentService settles payments. E-wallet charges run against a mocked
// provider when an order is placed; cash-on-delivery payments stay pending
// until the order is delivered.
type PaymentService struct {
	store          PaymentStore
	eventPublisher PaymentEvents
	logger         *zap.Logger
	successRate    float64 // mock provider success rate (0.0 - 1.0)
}

// NewPaymentService creates a new payment service
func NewPaymentService(store PaymentStore, eventPublisher PaymentEvents) *PaymentService {
	return &PaymentService{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
		successRate:    0.9,
	}
}

// ChargeEWallet runs the e-wallet charge for an order (mocked provider)
func (ps *PaymentService) ChargeEWallet(ctx context.Context, orderID int64, amount int64) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.ChargeEWallet")
	defer span.End()

	util.PaymentAttemptsTotal.Inc()

	payment, err := ps.store.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load payment: %w", err)
	}

	// redelivered events must not re-run a settled charge
	if payment.Status != models.PaymentStatusPending {
		ps.logger.Info("Payment already settled, skipping charge",
			zap.Int64("order_id", orderID),
			zap.String("status", payment.Status))
		return nil
	}

	ps.logger.Info("Charging e-wallet",
		zap.Int64("order_id", orderID),
		zap.Int64("amount", amount))

	time.Sleep(time.Duration(100+rand.Intn(400)) * time.Millisecond)

	success := rand.Float64() < ps.successRate
	providerTxID := fmt.Sprintf("TXN-%s", uuid.New().String()[:8])

	if success {
		ps.logger.Info("Payment succeeded",
			zap.Int64("order_id", orderID),
			zap.String("tx_id", providerTxID))

		if err := ps.store.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusSuccess, providerTxID); err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}

		util.PaymentSuccessTotal.Inc()

		event := &models.PaymentSuccessEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypePaymentSuccess,
				Timestamp: time.Now(),
			},
			OrderID:   orderID,
			PaymentID: payment.ID,
			Amount:    amount,
			TxID:      providerTxID,
		}
		if err := ps.eventPublisher.PublishPaymentSuccess(ctx, event); err != nil {
			ps.logger.Error("Failed to publish PaymentSuccess event", zap.Error(err))
		}

		return nil
	}

	ps.logger.Warn("Payment declined", zap.Int64("order_id", orderID))

	if err := ps.store.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusFailed, ""); err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}

	util.PaymentFailedTotal.Inc()

	event := &models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentFailed,
			Timestamp: time.Now(),
		},
		OrderID:   orderID,
		PaymentID: payment.ID,
		Reason:    "provider_declined",
	}
	if err := ps.eventPublisher.PublishPaymentFailed(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
	}

	return nil
}

// SettleCOD marks a cash-on-delivery payment as collected
func (ps *PaymentService) SettleCOD(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.SettleCOD")
	defer span.End()

	payment, err := ps.store.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load payment: %w", err)
	}
	if payment.Method != models.PaymentMethodCOD || payment.Status != models.PaymentStatusPending {
		return nil
	}

	providerTxID := fmt.Sprintf("COD-%s", uuid.New().String()[:8])
	if err := ps.store.UpdatePaymentStatus(ctx, payment.ID, models.PaymentStatusSuccess, providerTxID); err != nil {
		return fmt.Errorf("failed to settle COD payment: %w", err)
	}

	util.PaymentSuccessTotal.Inc()
	ps.logger.Info("COD payment settled", zap.Int64("order_id", orderID))
	return nil
}

// GetPayment retrieves payment for an order
func (ps *PaymentService) GetPayment(ctx context.Context, orderID int64) (*models.Payment, error) {
	return ps.store.GetPaymentByOrderID(ctx, orderID)
}
