package models

import "time"

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypePaymentSuccess     = "PAYMENT_SUCCESS"
	EventTypePaymentFailed      = "PAYMENT_FAILED"
	EventTypeReviewCreated      = "REVIEW_CREATED"
	EventTypeReportFiled        = "REPORT_FILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published for each per-seller order created by a checkout
type OrderPlacedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	BuyerID       int64           `json:"buyer_id"`
	SellerID      int64           `json:"seller_id"`
	TotalPrice    int64           `json:"total_price"`
	PaymentMethod string          `json:"payment_method"`
	Items         []OrderItemData `json:"items"`
}

// OrderStatusChangedEvent published after a successful status transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	BuyerID    int64  `json:"buyer_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

// OrderCancelledEvent published when an order is cancelled (compensation)
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// PaymentSuccessEvent published when an e-wallet charge succeeds
type PaymentSuccessEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	PaymentID int64  `json:"payment_id"`
	Amount    int64  `json:"amount"`
	TxID      string `json:"tx_id"`
}

// PaymentFailedEvent published when an e-wallet charge is declined
type PaymentFailedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	PaymentID int64  `json:"payment_id"`
	Reason    string `json:"reason"`
}

// ReviewCreatedEvent published when a buyer reviews a delivered order
type ReviewCreatedEvent struct {
	BaseEvent
	ReviewID int64 `json:"review_id"`
	OrderID  int64 `json:"order_id"`
	SellerID int64 `json:"seller_id"`
	Rating   int   `json:"rating"`
}

// ReportFiledEvent published when a new report enters moderation
type ReportFiledEvent struct {
	BaseEvent
	ReportID   int64  `json:"report_id"`
	TargetType string `json:"target_type"`
	Priority   string `json:"priority"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}
