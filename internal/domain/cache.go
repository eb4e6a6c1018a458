package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache provides fast access to the latest prices.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, time.Time, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// BanGuard records when outbound calls to the price provider may resume.
type BanGuard interface {
	// UnblockTime returns the zero time when no block is active.
	UnblockTime(ctx context.Context) (time.Time, error)
	// Block extends the current block to until. A shorter block is ignored.
	Block(ctx context.Context, until time.Time) error
}

// IsBlocked reports whether a block ending at unblockAt is still in effect.
func IsBlocked(unblockAt, now time.Time) bool {
	return !unblockAt.IsZero() && now.Before(unblockAt)
}
