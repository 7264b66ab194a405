package models

import "time"

// User roles
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// Payment methods
const (
	PaymentMethodEWallet = "EWALLET"
	PaymentMethodCOD     = "COD"
)

// Product represents a product listed by a seller
type Product struct {
	ID        int64     `db:"id" json:"id"`
	SellerID  int64     `db:"seller_id" json:"seller_id"`
	Name      string    `db:"name" json:"name"`
	ImageURL  string    `db:"image_url" json:"image_url"`
	Price     int64     `db:"price" json:"price"`
	Unit      string    `db:"unit" json:"unit"`
	Stock     int       `db:"stock" json:"stock"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Seller holds the seller fields the order flow needs
type Seller struct {
	ID   int64   `db:"id" json:"id"`
	Name string  `db:"name" json:"name"`
	Lat  float64 `db:"lat" json:"lat"`
	Lng  float64 `db:"lng" json:"lng"`
}

// CartItem is one line in a buyer's cart. Price, unit and stock are a
// snapshot of the product at add time.
type CartItem struct {
	ID          string `json:"id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	ImageURL    string `json:"image_url"`
	Price       int64  `json:"price"`
	Unit        string `json:"unit"`
	Stock       int    `json:"stock"`
	Quantity    int    `json:"quantity"`
	Subtotal    int64  `json:"subtotal"`
}

// Order represents one per-seller order produced by a checkout
type Order struct {
	ID              int64       `db:"id" json:"id"`
	BuyerID         int64       `db:"buyer_id" json:"buyer_id"`
	SellerID        int64       `db:"seller_id" json:"seller_id"`
	SellerName      string      `db:"seller_name" json:"seller_name"`
	Items           []OrderItem `db:"-" json:"items"`
	TotalPrice      int64       `db:"total_price" json:"total_price"`
	ShippingFee     int64       `db:"shipping_fee" json:"shipping_fee"`
	Status          string      `db:"status" json:"status"`
	PaymentMethod   string      `db:"payment_method" json:"payment_method"`
	OrderDate       time.Time   `db:"order_date" json:"order_date"`
	DeliveryAddress string      `db:"delivery_address" json:"delivery_address"`
	DeliveryLat     float64     `db:"delivery_lat" json:"delivery_lat"`
	DeliveryLng     float64     `db:"delivery_lng" json:"delivery_lng"`
	CanReorder      bool        `db:"-" json:"can_reorder"`
	CanReview       bool        `db:"-" json:"can_review"`
	IdempotencyKey  string      `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// OrderItem represents one product line within an order
type OrderItem struct {
	ID          int64  `db:"id" json:"id"`
	OrderID     int64  `db:"order_id" json:"order_id"`
	ProductID   int64  `db:"product_id" json:"product_id"`
	ProductName string `db:"product_name" json:"product_name"`
	ImageURL    string `db:"image_url" json:"image_url"`
	Quantity    int    `db:"quantity" json:"quantity"`
	Unit        string `db:"unit" json:"unit"`
	UnitPrice   int64  `db:"unit_price" json:"unit_price"`
	Subtotal    int64  `db:"subtotal" json:"subtotal"`
}

// Payment represents a payment transaction for an order
type Payment struct {
	ID           int64     `db:"id" json:"id"`
	OrderID      int64     `db:"order_id" json:"order_id"`
	Method       string    `db:"method" json:"method"`
	Status       string    `db:"status" json:"status"`
	ProviderTxID string    `db:"provider_tx_id" json:"provider_tx_id,omitempty"`
	Amount       int64     `db:"amount" json:"amount"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Payment statuses
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailed  = "FAILED"
)

// Review is a buyer's rating of a delivered order
type Review struct {
	ID          int64     `db:"id" json:"id"`
	OrderID     int64     `db:"order_id" json:"order_id"`
	ProductID   int64     `db:"product_id" json:"product_id"`
	ProductName string    `db:"product_name" json:"product_name"`
	BuyerID     int64     `db:"buyer_id" json:"buyer_id"`
	SellerID    int64     `db:"seller_id" json:"seller_id"`
	SellerName  string    `db:"seller_name" json:"seller_name"`
	Rating      int       `db:"rating" json:"rating"`
	Comment     string    `db:"comment" json:"comment"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Report target types
const (
	ReportTargetFarmer  = "farmer"
	ReportTargetCrop    = "crop"
	ReportTargetMessage = "message"
)

// Report statuses. Resolved and dismissed are terminal.
const (
	ReportStatusPending       = "pending"
	ReportStatusInvestigating = "investigating"
	ReportStatusResolved      = "resolved"
	ReportStatusDismissed     = "dismissed"
)

// Report priorities
const (
	ReportPriorityLow    = "low"
	ReportPriorityMedium = "medium"
	ReportPriorityHigh   = "high"
)

// Report is a user complaint awaiting admin moderation
type Report struct {
	ID           int64     `db:"id" json:"id"`
	ReporterID   int64     `db:"reporter_id" json:"reporter_id"`
	ReporterName string    `db:"reporter_name" json:"reporter_name"`
	TargetType   string    `db:"target_type" json:"target_type"`
	TargetID     int64     `db:"target_id" json:"target_id"`
	TargetName   string    `db:"target_name" json:"target_name"`
	ReportType   string    `db:"report_type" json:"report_type"`
	Description  string    `db:"description" json:"description"`
	Status       string    `db:"status" json:"status"`
	Priority     string    `db:"priority" json:"priority"`
	AdminNotes   string    `db:"admin_notes" json:"admin_notes"`
	ActionTaken  string    `db:"action_taken" json:"action_taken"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
