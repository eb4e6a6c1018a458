package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// banKey holds the unix-millisecond instant at which calls to the price
// provider may resume. The key expires together with the block.
const banKey = "exchange:unblock_at"

// extendLua stores ARGV[1] only when it is later than the current value.
const extendLua = `
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local nxt = tonumber(ARGV[1])
if nxt > cur then
    redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
    return 1
end
return 0
`

// BanGuard implements domain.BanGuard on a single shared Redis key so that
// every instance backs off together.
type BanGuard struct {
	rdb    *redis.Client
	extend *redis.Script
}

// NewBanGuard creates a BanGuard backed by the given Client.
func NewBanGuard(c *Client) *BanGuard {
	return &BanGuard{rdb: c.Underlying(), extend: redis.NewScript(extendLua)}
}

// UnblockTime returns the recorded unblock instant, or the zero time.
func (g *BanGuard) UnblockTime(ctx context.Context) (time.Time, error) {
	raw, err := g.rdb.Get(ctx, banKey).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("redis: get unblock time: %w", err)
	}
	return parseUnblock(raw)
}

// Block records that calls are blocked until the given instant. Instants in
// the past are ignored, as are instants earlier than the current block.
func (g *BanGuard) Block(ctx context.Context, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	err := g.extend.Run(ctx, g.rdb, []string{banKey},
		until.UnixMilli(), ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis: set unblock time: %w", err)
	}
	return nil
}

func parseUnblock(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis: parse unblock time %q: %w", raw, err)
	}
	if ms <= 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// Compile-time interface check.
var _ domain.BanGuard = (*BanGuard)(nil)
