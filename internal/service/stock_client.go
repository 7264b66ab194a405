package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketplace-service/internal/redisclient"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

// StockClient handles stock reservation. Redis is the fast path; the
// database transaction is the fallback and the durable record.
type StockClient struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewStockClient creates a new stock client
func NewStockClient(store *store.Store, redis *redisclient.Client) *StockClient {
	return &StockClient{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// Reserve reserves stock for a product (fast path via Redis)
func (sc *StockClient) Reserve(ctx context.Context, productID int64, quantity int) (bool, error) {
	ctx, span := util.StartSpan(ctx, "StockClient.Reserve")
	defer span.End()

	ok, err := sc.redis.ReserveStock(ctx, productID, quantity)
	if err != nil {
		sc.logger.Warn("Redis reservation failed, falling back to DB",
			zap.Int64("product_id", productID),
			zap.Error(err))
		return sc.reserveDB(ctx, productID, quantity)
	}

	if !ok {
		return false, nil
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := sc.store.DeductStockTx(ctx, productID, quantity); err != nil {
			sc.logger.Error("Failed to sync reservation to DB",
				zap.Int64("product_id", productID),
				zap.Error(err))
		}
	}()

	return true, nil
}

// reserveDB reserves stock using a database transaction (fallback)
func (sc *StockClient) reserveDB(ctx context.Context, productID int64, quantity int) (bool, error) {
	err := sc.store.DeductStockTx(ctx, productID, quantity)
	if err != nil {
		if strings.Contains(err.Error(), "insufficient stock") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Release puts reserved stock back (compensation)
func (sc *StockClient) Release(ctx context.Context, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "StockClient.Release")
	defer span.End()

	if err := sc.redis.ReleaseStock(ctx, productID, quantity); err != nil {
		sc.logger.Error("Failed to release stock in Redis",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}

	return sc.store.RestoreStock(ctx, productID, quantity)
}

// Commit finalizes a reservation once the order is delivered
func (sc *StockClient) Commit(ctx context.Context, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "StockClient.Commit")
	defer span.End()

	return sc.redis.CommitStock(ctx, productID, quantity)
}

// SyncStockToRedis seeds Redis stock counters from the product table
func (sc *StockClient) SyncStockToRedis(ctx context.Context) error {
	sc.logger.Info("Starting stock sync to Redis")

	products, err := sc.store.GetProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to get products: %w", err)
	}

	for _, product := range products {
		if err := sc.redis.InitStock(ctx, product.ID, product.Stock, 0); err != nil {
			sc.logger.Error("Failed to init Redis stock",
				zap.Int64("product_id", product.ID),
				zap.Error(err))
		}
	}

	sc.logger.Info("Stock sync completed", zap.Int("count", len(products)))
	return nil
}
