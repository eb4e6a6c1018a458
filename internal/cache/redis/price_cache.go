package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each symbol's price is stored at "price:{symbol}" with fields "price" and
// "ts" (Unix nanoseconds). Keys expire after ttl so a dead feed never serves
// an old quote indefinitely.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. A zero ttl
// keeps entries until overwritten.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(symbol string) string {
	return "price:" + symbol
}

// SetPrice stores the latest price and timestamp for a symbol.
func (pc *PriceCache) SetPrice(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error {
	key := priceKey(symbol)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "price", price.String(), "ts", strconv.FormatInt(ts.UnixNano(), 10))
	if pc.ttl > 0 {
		pipe.PExpire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", symbol, err)
	}
	return nil
}

// GetPrice returns the cached price and its timestamp, or domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(symbol)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get price %s: %w", symbol, err)
	}
	priceStr, okP := vals["price"]
	tsStr, okT := vals["ts"]
	if !okP || !okT {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse price %s: %w", symbol, err)
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", symbol, err)
	}
	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
