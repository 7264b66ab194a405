package service

import (
	"context"
	"fmt"
	"testing"

	"marketplace-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePaymentStore struct {
	payments map[int64]*models.Payment
	updates  int
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: map[int64]*models.Payment{}}
}

func (f *fakePaymentStore) GetPaymentByOrderID(_ context.Context, orderID int64) (*models.Payment, error) {
	p, ok := f.payments[orderID]
	if !ok {
		return nil, fmt.Errorf("payment not found for order: %d", orderID)
	}
	cp := *p
	return &cp, nil
}

func (f *fakePaymentStore) UpdatePaymentStatus(_ context.Context, paymentID int64, status, providerTxID string) error {
	f.updates++
	for _, p := range f.payments {
		if p.ID == paymentID {
			p.Status = status
			p.ProviderTxID = providerTxID
			return nil
		}
	}
	return fmt.Errorf("payment not found: %d", paymentID)
}

type fakePaymentEvents struct {
	success int
	failed  int
}

func (f *fakePaymentEvents) PublishPaymentSuccess(_ context.Context, _ *models.PaymentSuccessEvent) error {
	f.success++
	return nil
}

func (f *fakePaymentEvents) PublishPaymentFailed(_ context.Context, _ *models.PaymentFailedEvent) error {
	f.failed++
	return nil
}

func TestChargeEWalletSkipsSettledPayment(t *testing.T) {
	store := newFakePaymentStore()
	store.payments[1] = &models.Payment{
		ID:      100,
		OrderID: 1,
		Method:  models.PaymentMethodEWallet,
		Status:  models.PaymentStatusSuccess,
		Amount:  5000,
	}
	events := &fakePaymentEvents{}
	svc := NewPaymentService(store, events)

	// a redelivered charge must not touch a payment that already settled
	err := svc.ChargeEWallet(context.Background(), 1, 5000)
	require.NoError(t, err)
	assert.Zero(t, store.updates)
	assert.Zero(t, events.success)
	assert.Zero(t, events.failed)
	assert.Equal(t, models.PaymentStatusSuccess, store.payments[1].Status)
}

func TestChargeEWalletSkipsFailedPayment(t *testing.T) {
	store := newFakePaymentStore()
	store.payments[1] = &models.Payment{
		ID:      100,
		OrderID: 1,
		Method:  models.PaymentMethodEWallet,
		Status:  models.PaymentStatusFailed,
		Amount:  5000,
	}
	events := &fakePaymentEvents{}
	svc := NewPaymentService(store, events)

	err := svc.ChargeEWallet(context.Background(), 1, 5000)
	require.NoError(t, err)
	assert.Zero(t, store.updates)
	assert.Equal(t, models.PaymentStatusFailed, store.payments[1].Status)
}

func TestSettleCOD(t *testing.T) {
	store := newFakePaymentStore()
	store.payments[1] = &models.Payment{
		ID:      100,
		OrderID: 1,
		Method:  models.PaymentMethodCOD,
		Status:  models.PaymentStatusPending,
		Amount:  5000,
	}
	svc := NewPaymentService(store, &fakePaymentEvents{})

	err := svc.SettleCOD(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, store.payments[1].Status)
	assert.Equal(t, 1, store.updates)

	// settling again is a no-op
	err = svc.SettleCOD(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, store.updates)
}

func TestSettleCODSkipsEWallet(t *testing.T) {
	store := newFakePaymentStore()
	store.payments[1] = &models.Payment{
		ID:      100,
		OrderID: 1,
		Method:  models.PaymentMethodEWallet,
		Status:  models.PaymentStatusPending,
		Amount:  5000,
	}
	svc := NewPaymentService(store, &fakePaymentEvents{})

	err := svc.SettleCOD(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, store.updates)
	assert.Equal(t, models.PaymentStatusPending, store.payments[1].Status)
}
