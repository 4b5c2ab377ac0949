package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/invalidate_stock.lua
var invalidateStockScript string

// InvalidateResult is the outcome of invalidating one cached stock value
type InvalidateResult int

const (
	InvalidateDuplicate InvalidateResult = -1
	InvalidateMiss      InvalidateResult = 0
	InvalidateEvicted   InvalidateResult = 1
)

func (r InvalidateResult) String() string {
	switch r {
	case InvalidateEvicted:
		return "evicted"
	case InvalidateMiss:
		return "miss"
	case InvalidateDuplicate:
		return "duplicate"
	}
	return "unknown"
}

// Client is the read-side stock cache. Postgres stays the source of truth;
// values here are only ever served as a hint.
type Client struct {
	rdb              *redis.Client
	invalidateScript *redis.Script
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
		rdb:              rdb,
		invalidateScript: redis.NewScript(invalidateStockScript),
	}, nil
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(productID int64) string {
	return fmt.Sprintf("stock:%d", productID)
}

func markerKey(eventID string, productID int64) string {
	return fmt.Sprintf("stock:applied:%s:%d", eventID, productID)
}

// GetStock returns the cached stock of a product. The bool is false on a miss.
func (c *Client) GetStock(ctx context.Context, productID int64) (int, bool, error) {
	val, err := c.rdb.Get(ctx, stockKey(productID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	stock, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("invalid cached stock for product %d: %w", productID, err)
	}
	return stock, true, nil
}

// SetStock caches a product's stock
func (c *Client) SetStock(ctx context.Context, productID int64, stock int, ttl time.Duration) error {
	return c.rdb.Set(ctx, stockKey(productID), stock, ttl).Err()
}

// InvalidateStock evicts a product's cached stock after a committed stock
// change, so the next read refills it from the database. Adding the change
// to the cached value instead would count it twice whenever the cache was
// filled after the commit. Each (event, product) pair is handled once, so a
// redelivered event does not evict a freshly refilled value.
func (c *Client) InvalidateStock(ctx context.Context, eventID string, productID int64, markerTTL time.Duration) (InvalidateResult, error) {
	keys := []string{stockKey(productID), markerKey(eventID, productID)}
	seconds := int64(markerTTL / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	result, err := c.invalidateScript.Run(ctx, c.rdb, keys, seconds).Result()
	if err != nil {
		return 0, fmt.Errorf("invalidate stock script failed: %w", err)
	}

	code, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type %T", result)
	}
	return InvalidateResult(code), nil
}
