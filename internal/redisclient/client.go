package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Lua scripts keep the check-and-mutate on stock atomic under concurrent
// checkouts. Stock is a hash {available, reserved} per product.
const reserveStockScript = `
local available = tonumber(redis.call('HGET', KEYS[1], 'available') or '-1')
local qty = tonumber(ARGV[1])
if available < 0 then return -1 end
if available < qty then return 0 end
redis.call('HINCRBY', KEYS[1], 'available', -qty)
redis.call('HINCRBY', KEYS[1], 'reserved', qty)
return 1
`

const releaseStockScript = `
local qty = tonumber(ARGV[1])
redis.call('HINCRBY', KEYS[1], 'available', qty)
redis.call('HINCRBY', KEYS[1], 'reserved', -qty)
return 1
`

const commitStockScript = `
local qty = tonumber(ARGV[1])
redis.call('HINCRBY', KEYS[1], 'reserved', -qty)
return 1
`

type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
	commitScript  *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
		commitScript:  redis.NewScript(commitStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func cartKey(buyerID int64) string {
	return fmt.Sprintf("cart:%d", buyerID)
}

// SaveCart persists a buyer's cart verbatim under its namespaced key so it
// survives across sessions.
func (c *Client) SaveCart(ctx context.Context, buyerID int64, cart interface{}, ttl time.Duration) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to marshal cart: %w", err)
	}
	return c.rdb.Set(ctx, cartKey(buyerID), data, ttl).Err()
}

// LoadCart restores a buyer's cart into dest. Returns (false, nil) when no
// cart is persisted.
func (c *Client) LoadCart(ctx context.Context, buyerID int64, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, cartKey(buyerID)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load cart: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cart: %w", err)
	}
	return true, nil
}

// DeleteCart drops a buyer's persisted cart.
func (c *Client) DeleteCart(ctx context.Context, buyerID int64) error {
	return c.rdb.Del(ctx, cartKey(buyerID)).Err()
}

// ReserveStock atomically reserves stock using a Lua script.
// Returns true if reservation successful, false if insufficient stock.
func (c *Client) ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	key := fmt.Sprintf("stock:%d", productID)

	result, err := c.reserveScript.Run(ctx, c.rdb, []string{key}, quantity).Result()
	if err != nil {
		return false, fmt.Errorf("reserve stock script failed: %w", err)
	}

	status, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	if status == -1 {
		return false, fmt.Errorf("stock not tracked for product %d", productID)
	}

	return status == 1, nil
}

// ReleaseStock atomically releases reserved stock (compensation)
func (c *Client) ReleaseStock(ctx context.Context, productID int64, quantity int) error {
	key := fmt.Sprintf("stock:%d", productID)

	if _, err := c.releaseScript.Run(ctx, c.rdb, []string{key}, quantity).Result(); err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}
	return nil
}

// CommitStock atomically commits reserved stock (final deduction)
func (c *Client) CommitStock(ctx context.Context, productID int64, quantity int) error {
	key := fmt.Sprintf("stock:%d", productID)

	if _, err := c.commitScript.Run(ctx, c.rdb, []string{key}, quantity).Result(); err != nil {
		return fmt.Errorf("commit stock script failed: %w", err)
	}
	return nil
}

// InitStock initializes stock counts for a product in Redis
func (c *Client) InitStock(ctx context.Context, productID int64, available, reserved int) error {
	key := fmt.Sprintf("stock:%d", productID)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "available", available)
	pipe.HSet(ctx, key, "reserved", reserved)

	_, err := pipe.Exec(ctx)
	return err
}

// GetStock retrieves current stock counts
func (c *Client) GetStock(ctx context.Context, productID int64) (available, reserved int, err error) {
	key := fmt.Sprintf("stock:%d", productID)

	result, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}

	if len(result) == 0 {
		return 0, 0, fmt.Errorf("stock not found for product %d", productID)
	}

	var availableInt, reservedInt int
	fmt.Sscanf(result["available"], "%d", &availableInt)
	fmt.Sscanf(result["reserved"], "%d", &reservedInt)

	return availableInt, reservedInt, nil
}

// SetDeliveryETA caches the human-readable delivery estimate for an order
func (c *Client) SetDeliveryETA(ctx context.Context, orderID int64, eta string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("eta:%d", orderID), eta, ttl).Err()
}

// GetDeliveryETA retrieves a cached delivery estimate, empty if absent
func (c *Client) GetDeliveryETA(ctx context.Context, orderID int64) (string, error) {
	eta, err := c.rdb.Get(ctx, fmt.Sprintf("eta:%d", orderID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return eta, err
}

// SetSellerRating caches a seller's aggregated rating
func (c *Client) SetSellerRating(ctx context.Context, sellerID int64, average float64, count int, ttl time.Duration) error {
	key := fmt.Sprintf("seller_rating:%d", sellerID)

	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, "average", average)
	pipe.HSet(ctx, key, "count", count)
	pipe.Expire(ctx, key, ttl)

	_, err := pipe.Exec(ctx)
	return err
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// CheckIdempotencyKey checks if an idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
