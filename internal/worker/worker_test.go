package worker

import (
	"context"
	"testing"

	"marketplace-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	processed map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{processed: map[string]bool{}}
}

func (f *fakeLedger) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	return f.processed[eventID], nil
}

func (f *fakeLedger) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	f.processed[eventID] = true
	return nil
}

type fakeCharger struct {
	charges int
}

func (f *fakeCharger) ChargeEWallet(_ context.Context, _, _ int64) error {
	f.charges++
	return nil
}

func orderPlacedEvent(method string) *models.OrderPlacedEvent {
	return &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeOrderPlaced,
		},
		OrderID:       1,
		BuyerID:       7,
		SellerID:      1,
		TotalPrice:    5000,
		PaymentMethod: method,
	}
}

func TestPaymentWorkerChargesEWalletOnce(t *testing.T) {
	ledger := newFakeLedger()
	charger := &fakeCharger{}
	w := NewPaymentWorker(nil, ledger, charger)

	event := orderPlacedEvent(models.PaymentMethodEWallet)
	require.NoError(t, w.handleOrderPlaced(context.Background(), event))
	assert.Equal(t, 1, charger.charges)
	assert.True(t, ledger.processed["evt-1"])

	// a redelivered message is dropped by the ledger
	require.NoError(t, w.handleOrderPlaced(context.Background(), event))
	assert.Equal(t, 1, charger.charges)
}

func TestPaymentWorkerIgnoresCOD(t *testing.T) {
	ledger := newFakeLedger()
	charger := &fakeCharger{}
	w := NewPaymentWorker(nil, ledger, charger)

	require.NoError(t, w.handleOrderPlaced(context.Background(), orderPlacedEvent(models.PaymentMethodCOD)))
	assert.Zero(t, charger.charges)
	assert.Empty(t, ledger.processed)
}
