package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionForwardOnly(t *testing.T) {
	assert.True(t, CanTransition(OrderStatusPending, OrderStatusProcessing))
	assert.True(t, CanTransition(OrderStatusProcessing, OrderStatusShipped))
	assert.True(t, CanTransition(OrderStatusShipped, OrderStatusDelivered))

	// no skipping, no going back
	assert.False(t, CanTransition(OrderStatusPending, OrderStatusShipped))
	assert.False(t, CanTransition(OrderStatusPending, OrderStatusDelivered))
	assert.False(t, CanTransition(OrderStatusShipped, OrderStatusProcessing))
	assert.False(t, CanTransition(OrderStatusDelivered, OrderStatusProcessing))
}

func TestCancellableFromAnyNonTerminalState(t *testing.T) {
	for _, from := range []string{OrderStatusPending, OrderStatusProcessing, OrderStatusShipped} {
		assert.True(t, CanTransition(from, OrderStatusCancelled), from)
	}
	assert.False(t, CanTransition(OrderStatusDelivered, OrderStatusCancelled))
	assert.False(t, CanTransition(OrderStatusCancelled, OrderStatusCancelled))
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, IsTerminalOrderStatus(OrderStatusDelivered))
	assert.True(t, IsTerminalOrderStatus(OrderStatusCancelled))
	assert.False(t, IsTerminalOrderStatus(OrderStatusPending))
	assert.False(t, IsTerminalOrderStatus(OrderStatusShipped))

	assert.True(t, IsTerminalReportStatus(ReportStatusResolved))
	assert.True(t, IsTerminalReportStatus(ReportStatusDismissed))
	assert.False(t, IsTerminalReportStatus(ReportStatusPending))
	assert.False(t, IsTerminalReportStatus(ReportStatusInvestigating))
}
