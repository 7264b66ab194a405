package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

// Persister stores carts across sessions. Satisfied by redisclient.Client.
type Persister interface {
	SaveCart(ctx context.Context, buyerID int64, cart interface{}, ttl time.Duration) error
	LoadCart(ctx context.Context, buyerID int64, dest interface{}) (bool, error)
	DeleteCart(ctx context.Context, buyerID int64) error
}

// Service applies cart mutations for buyers, persisting each cart after a
// successful mutation. A single mutex serializes mutations; the underlying
// algebra itself is not concurrency-safe.
type Service struct {
	mu     sync.Mutex
	store  Persister
	ttl    time.Duration
	logger *zap.Logger
}

// NewService creates a cart service backed by the given persister.
func NewService(store Persister, ttl time.Duration) *Service {
	return &Service{
		store:  store,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// Get returns the buyer's cart, empty if none is persisted.
func (s *Service) Get(ctx context.Context, buyerID int64) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, buyerID)
}

// AddToCart adds a new line for the product. Returns false without
// mutation when a line for the product already exists.
func (s *Service) AddToCart(ctx context.Context, buyerID int64, product *models.Product, quantity int) (bool, *Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(ctx, buyerID)
	if err != nil {
		return false, nil, err
	}

	added, err := c.AddToCart(product, quantity)
	if err != nil {
		util.StockViolationsTotal.Inc()
		return false, nil, err
	}
	if !added {
		return false, c, nil
	}

	if err := s.save(ctx, c); err != nil {
		return false, nil, err
	}
	util.CartMutationsTotal.WithLabelValues("add").Inc()
	return true, c, nil
}

// ForceAddToCart increments an existing line or adds a new one.
func (s *Service) ForceAddToCart(ctx context.Context, buyerID int64, product *models.Product, quantity int) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	if err := c.ForceAddToCart(product, quantity); err != nil {
		util.StockViolationsTotal.Inc()
		return nil, err
	}

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	util.CartMutationsTotal.WithLabelValues("force_add").Inc()
	return c, nil
}

// UpdateQuantity replaces a line's quantity.
func (s *Service) UpdateQuantity(ctx context.Context, buyerID int64, itemID string, quantity int) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	if err := c.UpdateQuantity(itemID, quantity); err != nil {
		if errors.Is(err, ErrStockExceeded) {
			util.StockViolationsTotal.Inc()
		}
		return nil, err
	}

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	util.CartMutationsTotal.WithLabelValues("update").Inc()
	return c, nil
}

// RemoveFromCart deletes one line.
func (s *Service) RemoveFromCart(ctx context.Context, buyerID int64, itemID string) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	if err := c.RemoveFromCart(itemID); err != nil {
		return nil, err
	}

	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	util.CartMutationsTotal.WithLabelValues("remove").Inc()
	return c, nil
}

// Clear drops the buyer's cart entirely.
func (s *Service) Clear(ctx context.Context, buyerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteCart(ctx, buyerID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	util.CartMutationsTotal.WithLabelValues("clear").Inc()
	return nil
}

func (s *Service) load(ctx context.Context, buyerID int64) (*Cart, error) {
	c := New(buyerID)
	found, err := s.store.LoadCart(ctx, buyerID, c)
	if err != nil {
		return nil, fmt.Errorf("failed to restore cart: %w", err)
	}
	if !found {
		s.logger.Debug("No persisted cart, starting empty", zap.Int64("buyer_id", buyerID))
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, c *Cart) error {
	if err := s.store.SaveCart(ctx, c.BuyerID, c, s.ttl); err != nil {
		return fmt.Errorf("failed to persist cart: %w", err)
	}
	return nil
}
