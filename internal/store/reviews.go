package store

import (
	"context"

	"marketplace-service/internal/models"
)

// CreateReview creates a new review
func (s *Store) CreateReview(ctx context.Context, review *models.Review) error {
	query := `
		INSERT INTO reviews (order_id, product_id, product_name, buyer_id,
			seller_id, seller_name, rating, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, review, query,
		review.OrderID, review.ProductID, review.ProductName, review.BuyerID,
		review.SellerID, review.SellerName, review.Rating, review.Comment)
}

// HasReviewForOrder reports whether the buyer already reviewed the order
func (s *Store) HasReviewForOrder(ctx context.Context, orderID, buyerID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM reviews WHERE order_id = $1 AND buyer_id = $2)",
		orderID, buyerID)
	return exists, err
}

// GetReviewsBySeller retrieves reviews for a seller, newest first
func (s *Store) GetReviewsBySeller(ctx context.Context, sellerID int64) ([]models.Review, error) {
	var reviews []models.Review
	err := s.db.SelectContext(ctx, &reviews,
		"SELECT * FROM reviews WHERE seller_id = $1 ORDER BY created_at DESC", sellerID)
	return reviews, err
}

// GetReviewsByProduct retrieves reviews for a product, newest first
func (s *Store) GetReviewsByProduct(ctx context.Context, productID int64) ([]models.Review, error) {
	var reviews []models.Review
	err := s.db.SelectContext(ctx, &reviews,
		"SELECT * FROM reviews WHERE product_id = $1 ORDER BY created_at DESC", productID)
	return reviews, err
}

// GetSellerRating computes a seller's average rating and review count
func (s *Store) GetSellerRating(ctx context.Context, sellerID int64) (average float64, count int, err error) {
	row := struct {
		Average float64 `db:"average"`
		Count   int     `db:"count"`
	}{}
	err = s.db.GetContext(ctx, &row,
		"SELECT COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count FROM reviews WHERE seller_id = $1",
		sellerID)
	return row.Average, row.Count, err
}
