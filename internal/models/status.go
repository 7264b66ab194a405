package models

// Order statuses
const (
	OrderStatusPending    = "PENDING"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusCancelled  = "CANCELLED"
)

// validNext encodes the order lifecycle: forward-only along
// PENDING -> PROCESSING -> SHIPPED -> DELIVERED, with CANCELLED
// reachable from any non-terminal state.
var validNext = map[string]map[string]bool{
	OrderStatusPending:    {OrderStatusProcessing: true, OrderStatusCancelled: true},
	OrderStatusProcessing: {OrderStatusShipped: true, OrderStatusCancelled: true},
	OrderStatusShipped:    {OrderStatusDelivered: true, OrderStatusCancelled: true},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	return validNext[from][to]
}

// IsTerminalOrderStatus reports whether no further transition is offered.
func IsTerminalOrderStatus(status string) bool {
	return status == OrderStatusDelivered || status == OrderStatusCancelled
}

// IsTerminalReportStatus reports whether a report accepts no further
// admin action.
func IsTerminalReportStatus(status string) bool {
	return status == ReportStatusResolved || status == ReportStatusDismissed
}
