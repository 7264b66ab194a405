package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"marketplace-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReviewStore struct {
	orders  map[int64]*models.Order
	reviews []models.Review
	nextID  int64
	ratings map[int64][]int
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{
		orders:  map[int64]*models.Order{},
		ratings: map[int64][]int{},
	}
}

func (f *fakeReviewStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order not found: %d", id)
	}
	return o, nil
}

func (f *fakeReviewStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order not found: %d", orderID)
	}
	return o.Items, nil
}

func (f *fakeReviewStore) CreateReview(_ context.Context, review *models.Review) error {
	f.nextID++
	review.ID = f.nextID
	review.CreatedAt = time.Now()
	f.reviews = append(f.reviews, *review)
	f.ratings[review.SellerID] = append(f.ratings[review.SellerID], review.Rating)
	return nil
}

func (f *fakeReviewStore) HasReviewForOrder(_ context.Context, orderID, buyerID int64) (bool, error) {
	for _, r := range f.reviews {
		if r.OrderID == orderID && r.BuyerID == buyerID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReviewStore) GetReviewsBySeller(_ context.Context, sellerID int64) ([]models.Review, error) {
	out := []models.Review{}
	for _, r := range f.reviews {
		if r.SellerID == sellerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReviewStore) GetReviewsByProduct(_ context.Context, productID int64) ([]models.Review, error) {
	out := []models.Review{}
	for _, r := range f.reviews {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReviewStore) GetSellerRating(_ context.Context, sellerID int64) (float64, int, error) {
	ratings := f.ratings[sellerID]
	if len(ratings) == 0 {
		return 0, 0, nil
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return float64(sum) / float64(len(ratings)), len(ratings), nil
}

type fakeReviewEvents struct {
	created int
}

func (f *fakeReviewEvents) PublishReviewCreated(_ context.Context, _ *models.ReviewCreatedEvent) error {
	f.created++
	return nil
}

type fakeRatingCache struct {
	average float64
	count   int
}

func (f *fakeRatingCache) SetSellerRating(_ context.Context, _ int64, average float64, count int, _ time.Duration) error {
	f.average = average
	f.count = count
	return nil
}

func deliveredOrder(id int64) *models.Order {
	return &models.Order{
		ID:         id,
		BuyerID:    7,
		SellerID:   1,
		SellerName: "Green Farm",
		Status:     models.OrderStatusDelivered,
		Items: []models.OrderItem{
			{ProductID: 10, ProductName: "Tomatoes", Quantity: 2, UnitPrice: 100, Subtotal: 200},
		},
	}
}

func TestCreateReview(t *testing.T) {
	store := newFakeReviewStore()
	store.orders[1] = deliveredOrder(1)
	events := &fakeReviewEvents{}
	cache := &fakeRatingCache{}
	svc := NewReviewService(store, events, cache)

	review, err := svc.CreateReview(context.Background(), &CreateReviewRequest{
		OrderID: 1, BuyerID: 7, Rating: 4, Comment: "fresh produce",
	})
	require.NoError(t, err)
	assert.NotZero(t, review.ID)
	assert.Equal(t, int64(1), review.SellerID)
	assert.Equal(t, "Green Farm", review.SellerName)
	assert.Equal(t, int64(10), review.ProductID)
	assert.Equal(t, 1, events.created)
	assert.Equal(t, 4.0, cache.average)
	assert.Equal(t, 1, cache.count)
}

func TestCreateReviewRatingBounds(t *testing.T) {
	store := newFakeReviewStore()
	store.orders[1] = deliveredOrder(1)
	svc := NewReviewService(store, &fakeReviewEvents{}, &fakeRatingCache{})

	for _, rating := range []int{0, -1, 6} {
		_, err := svc.CreateReview(context.Background(), &CreateReviewRequest{
			OrderID: 1, BuyerID: 7, Rating: rating,
		})
		assert.ErrorIs(t, err, ErrRatingOutOfRange)
	}
	assert.Empty(t, store.reviews)
}

func TestCreateReviewCommentTooLong(t *testing.T) {
	store := newFakeReviewStore()
	store.orders[1] = deliveredOrder(1)
	svc := NewReviewService(store, &fakeReviewEvents{}, &fakeRatingCache{})

	_, err := svc.CreateReview(context.Background(), &CreateReviewRequest{
		OrderID: 1, BuyerID: 7, Rating: 5, Comment: strings.Repeat("a", 501),
	})
	assert.ErrorIs(t, err, ErrCommentTooLong)
}

func TestCreateReviewCommentLengthCountsRunes(t *testing.T) {
	store := newFakeReviewStore()
	store.orders[1] = deliveredOrder(1)
	store.orders[2] = deliveredOrder(2)
	svc := NewReviewService(store, &fakeReviewEvents{}, &fakeRatingCache{})

	// 500 multi-byte characters are within the cap even though the string
	// is 1500 bytes
	_, err := svc.CreateReview(context.Background(), &CreateReviewRequest{
		OrderID: 1, BuyerID: 7, Rating: 5, Comment: strings.Repeat("日", 500),
	})
	assert.NoError(t, err)

	_, err = svc.CreateReview(context.Background(), &CreateReviewRequest{
		OrderID: 2, BuyerID: 7, Rating: 5, Comment: strings.Repeat("日", 501),
	})
	assert.ErrorIs(t, err, ErrCommentTooLong)
}

func TestCreateReviewRequiresDeliveredOrder(t *testing.T) {
	store := newFakeReviewStore()
	order := deliveredOrder(1)
	order.Status = models.OrderStatusShipped
	store.orders[1] = order
	svc := NewReviewService(store, &fakeReviewEvents{}, &fakeRatingCache{})

	_, err := svc.CreateReview(context.Background(), &CreateReviewRequest{
		OrderID: 1, BuyerID: 7, Rating: 5,
	})
	assert.ErrorIs(t, err, ErrNotReviewable)
}

func TestCreateReviewOncePerOrder(t *testing.T) {
	store := newFakeReviewStore()
	store.orders[1] = deliveredOrder(1)
	svc := NewReviewService(store, &fakeReviewEvents{}, &fakeRatingCache{})

	_, err := svc.CreateReview(context.Background(), &CreateReviewRequest{
		OrderID: 1, BuyerID: 7, Rating: 5,
	})
	require.NoError(t, err)

	_, err = svc.CreateReview(context.Background(), &CreateReviewRequest{
		OrderID: 1, BuyerID: 7, Rating: 3,
	})
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
	assert.Len(t, store.reviews, 1)
}

func TestFetchReviewsReplacesCollection(t *testing.T) {
	store := newFakeReviewStore()
	store.orders[1] = deliveredOrder(1)
	order2 := deliveredOrder(2)
	order2.SellerID = 2
	order2.SellerName = "Hilltop Farm"
	store.orders[2] = order2
	svc := NewReviewService(store, &fakeReviewEvents{}, &fakeRatingCache{})

	_, err := svc.CreateReview(context.Background(), &CreateReviewRequest{OrderID: 1, BuyerID: 7, Rating: 5})
	require.NoError(t, err)
	_, err = svc.CreateReview(context.Background(), &CreateReviewRequest{OrderID: 2, BuyerID: 7, Rating: 2})
	require.NoError(t, err)

	reviews, err := svc.FetchReviewsBySeller(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, reviews, 1)
	assert.Equal(t, int64(1), reviews[0].SellerID)

	reviews, err = svc.FetchReviewsBySeller(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, reviews, 1)
	assert.Equal(t, int64(2), reviews[0].SellerID)
}
