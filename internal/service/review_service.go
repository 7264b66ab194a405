package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"marketplace-service/internal/models"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxReviewCommentLen = 500

// ErrAlreadyReviewed is returned when a buyer reviews the same order twice.
var ErrAlreadyReviewed = errors.New("order already reviewed")

// ErrRatingOutOfRange is returned for ratings outside 1..5.
var ErrRatingOutOfRange = errors.New("rating must be between 1 and 5")

// ErrCommentTooLong is returned for comments over the length cap.
var ErrCommentTooLong = errors.New("comment exceeds 500 characters")

// ErrNotReviewable is returned when the order is not in a reviewable state.
var ErrNotReviewable = errors.New("only delivered orders can be reviewed")

// ReviewStore is the persistence surface the review service depends on.
// Satisfied by *store.Store.
type ReviewStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	CreateReview(ctx context.Context, review *models.Review) error
	HasReviewForOrder(ctx context.Context, orderID, buyerID int64) (bool, error)
	GetReviewsBySeller(ctx context.Context, sellerID int64) ([]models.Review, error)
	GetReviewsByProduct(ctx context.Context, productID int64) ([]models.Review, error)
	GetSellerRating(ctx context.Context, sellerID int64) (float64, int, error)
}

// ReviewEvents publishes review events. Satisfied by *broker.EventPublisher.
type ReviewEvents interface {
	PublishReviewCreated(ctx context.Context, event *models.ReviewCreatedEvent) error
}

// RatingCache caches aggregated seller ratings. Satisfied by
// *redisclient.Client.
type RatingCache interface {
	SetSellerRating(ctx context.Context, sellerID int64, average float64, count int, ttl time.Duration) error
}

// ReviewService owns the review collection; fetches replace the local
// cache like the order service.
type ReviewService struct {
	store  ReviewStore
	events ReviewEvents
	cache  RatingCache
	logger *zap.Logger

	mu      sync.RWMutex
	reviews []models.Review
	lastErr string
}

// NewReviewService creates a new review service
func NewReviewService(store ReviewStore, events ReviewEvents, cache RatingCache) *ReviewService {
	return &ReviewService{
		store:  store,
		events: events,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// CreateReviewRequest represents a review submission
type CreateReviewRequest struct {
	OrderID int64  `json:"order_id" binding:"required"`
	BuyerID int64  `json:"buyer_id"`
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

// CreateReview validates and persists a review. One review per order per
// buyer, delivered orders only.
func (s *ReviewService) CreateReview(ctx context.Context, req *CreateReviewRequest) (*models.Review, error) {
	ctx, span := util.StartSpan(ctx, "ReviewService.CreateReview")
	defer span.End()

	if req.Rating < 1 || req.Rating > 5 {
		return nil, ErrRatingOutOfRange
	}
	if utf8.RuneCountInString(req.Comment) > maxReviewCommentLen {
		return nil, ErrCommentTooLong
	}

	order, err := s.store.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		s.recordError(err)
		return nil, err
	}
	if order.Status != models.OrderStatusDelivered {
		return nil, ErrNotReviewable
	}

	reviewed, err := s.store.HasReviewForOrder(ctx, req.OrderID, req.BuyerID)
	if err != nil {
		s.recordError(err)
		return nil, fmt.Errorf("failed to check existing review: %w", err)
	}
	if reviewed {
		return nil, ErrAlreadyReviewed
	}

	items := order.Items
	if len(items) == 0 {
		items, err = s.store.GetOrderItemsByOrderID(ctx, req.OrderID)
		if err != nil {
			s.recordError(err)
			return nil, fmt.Errorf("failed to load order items: %w", err)
		}
	}

	var productID int64
	var productName string
	if len(items) > 0 {
		productID = items[0].ProductID
		productName = items[0].ProductName
	}

	review := &models.Review{
		OrderID:     req.OrderID,
		ProductID:   productID,
		ProductName: productName,
		BuyerID:     req.BuyerID,
		SellerID:    order.SellerID,
		SellerName:  order.SellerName,
		Rating:      req.Rating,
		Comment:     req.Comment,
	}

	if err := s.store.CreateReview(ctx, review); err != nil {
		s.recordError(err)
		return nil, fmt.Errorf("failed to create review: %w", err)
	}

	util.ReviewsCreatedTotal.Inc()
	s.logger.Info("Review created",
		zap.Int64("order_id", req.OrderID),
		zap.Int("rating", req.Rating))

	s.mu.Lock()
	s.reviews = append(s.reviews, *review)
	s.lastErr = ""
	s.mu.Unlock()

	s.refreshSellerRating(ctx, order.SellerID)

	event := &models.ReviewCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReviewCreated,
			Timestamp: time.Now(),
		},
		ReviewID: review.ID,
		OrderID:  review.OrderID,
		SellerID: review.SellerID,
		Rating:   review.Rating,
	}
	if err := s.events.PublishReviewCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish ReviewCreated event", zap.Error(err))
	}

	return review, nil
}

// FetchReviewsBySeller replaces the local collection with the seller's
// reviews from storage.
func (s *ReviewService) FetchReviewsBySeller(ctx context.Context, sellerID int64) ([]models.Review, error) {
	reviews, err := s.store.GetReviewsBySeller(ctx, sellerID)
	if err != nil {
		s.recordError(err)
		return nil, fmt.Errorf("failed to fetch reviews: %w", err)
	}

	s.mu.Lock()
	s.reviews = reviews
	s.lastErr = ""
	s.mu.Unlock()

	return reviews, nil
}

// FetchReviewsByProduct replaces the local collection with the product's
// reviews from storage.
func (s *ReviewService) FetchReviewsByProduct(ctx context.Context, productID int64) ([]models.Review, error) {
	reviews, err := s.store.GetReviewsByProduct(ctx, productID)
	if err != nil {
		s.recordError(err)
		return nil, fmt.Errorf("failed to fetch reviews: %w", err)
	}

	s.mu.Lock()
	s.reviews = reviews
	s.lastErr = ""
	s.mu.Unlock()

	return reviews, nil
}

// HasReviewed reports whether the buyer already reviewed the order.
func (s *ReviewService) HasReviewed(ctx context.Context, orderID, buyerID int64) (bool, error) {
	return s.store.HasReviewForOrder(ctx, orderID, buyerID)
}

// LastError returns the most recent mutation error, empty after a success.
func (s *ReviewService) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *ReviewService) refreshSellerRating(ctx context.Context, sellerID int64) {
	average, count, err := s.store.GetSellerRating(ctx, sellerID)
	if err != nil {
		s.logger.Warn("Failed to compute seller rating",
			zap.Int64("seller_id", sellerID),
			zap.Error(err))
		return
	}
	if err := s.cache.SetSellerRating(ctx, sellerID, average, count, time.Hour); err != nil {
		s.logger.Warn("Failed to cache seller rating",
			zap.Int64("seller_id", sellerID),
			zap.Error(err))
	}
}

func (s *ReviewService) recordError(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}
