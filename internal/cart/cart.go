package cart

import (
	"errors"
	"fmt"
	"time"

	"marketplace-service/internal/models"

	"github.com/google/uuid"
)

// ErrStockExceeded is returned when a mutation would push a line's quantity
// past the stock recorded in its product snapshot. It is raised before any
// state changes and never reaches storage.
var ErrStockExceeded = errors.New("quantity exceeds available stock")

// ErrItemNotFound is returned when a line id does not exist in the cart.
var ErrItemNotFound = errors.New("cart item not found")

// Cart holds a buyer's line items, at most one per product. TotalItems and
// TotalAmount are derived and recomputed from the full line set after every
// mutation; they are never mutated independently.
type Cart struct {
	BuyerID     int64             `json:"buyer_id"`
	Items       []models.CartItem `json:"items"`
	TotalItems  int               `json:"total_items"`
	TotalAmount int64             `json:"total_amount"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// New creates an empty cart for a buyer.
func New(buyerID int64) *Cart {
	return &Cart{BuyerID: buyerID, Items: []models.CartItem{}}
}

// AddToCart creates a new line for the product. If a line for the product
// already exists it returns (false, nil) without mutating anything; the
// caller is expected to confirm and retry with ForceAddToCart. A quantity
// above the product's stock fails with ErrStockExceeded.
func (c *Cart) AddToCart(product *models.Product, quantity int) (bool, error) {
	if quantity < 1 {
		quantity = 1
	}
	if _, ok := c.GetCartItem(product.ID); ok {
		return false, nil
	}
	if quantity > product.Stock {
		return false, fmt.Errorf("%w: requested %d, stock %d", ErrStockExceeded, quantity, product.Stock)
	}

	c.appendLine(product, quantity)
	c.recompute()
	return true, nil
}

// ForceAddToCart increments the existing line for the product, or adds a
// new one if none exists. The combined quantity is still checked against
// the stock snapshot.
func (c *Cart) ForceAddToCart(product *models.Product, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}

	for i := range c.Items {
		if c.Items[i].ProductID != product.ID {
			continue
		}
		newQty := c.Items[i].Quantity + quantity
		if newQty > c.Items[i].Stock {
			return fmt.Errorf("%w: requested %d, stock %d", ErrStockExceeded, newQty, c.Items[i].Stock)
		}
		c.Items[i].Quantity = newQty
		c.Items[i].Subtotal = c.Items[i].Price * int64(newQty)
		c.recompute()
		return nil
	}

	if quantity > product.Stock {
		return fmt.Errorf("%w: requested %d, stock %d", ErrStockExceeded, quantity, product.Stock)
	}
	c.appendLine(product, quantity)
	c.recompute()
	return nil
}

// UpdateQuantity replaces a line's quantity and subtotal. Quantities below
// one are a no-op; quantities above the line's recorded stock fail with
// ErrStockExceeded and leave the cart unchanged.
func (c *Cart) UpdateQuantity(itemID string, quantity int) error {
	if quantity < 1 {
		return nil
	}

	for i := range c.Items {
		if c.Items[i].ID != itemID {
			continue
		}
		if quantity > c.Items[i].Stock {
			return fmt.Errorf("%w: requested %d, stock %d", ErrStockExceeded, quantity, c.Items[i].Stock)
		}
		c.Items[i].Quantity = quantity
		c.Items[i].Subtotal = c.Items[i].Price * int64(quantity)
		c.recompute()
		return nil
	}

	return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
}

// RemoveFromCart deletes one line by id.
func (c *Cart) RemoveFromCart(itemID string) error {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.recompute()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
}

// Clear removes all lines and zeroes the aggregates.
func (c *Cart) Clear() {
	c.Items = []models.CartItem{}
	c.recompute()
}

// GetCartItem looks up the line for a product without mutating the cart.
func (c *Cart) GetCartItem(productID int64) (models.CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return models.CartItem{}, false
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) appendLine(product *models.Product, quantity int) {
	c.Items = append(c.Items, models.CartItem{
		ID:          uuid.New().String(),
		ProductID:   product.ID,
		ProductName: product.Name,
		ImageURL:    product.ImageURL,
		Price:       product.Price,
		Unit:        product.Unit,
		Stock:       product.Stock,
		Quantity:    quantity,
		Subtotal:    product.Price * int64(quantity),
	})
}

func (c *Cart) recompute() {
	totalItems := 0
	var totalAmount int64
	for _, item := range c.Items {
		totalItems += item.Quantity
		totalAmount += item.Subtotal
	}
	c.TotalItems = totalItems
	c.TotalAmount = totalAmount
	c.UpdatedAt = time.Now()
}
