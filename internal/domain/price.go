package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Ticker is the last traded price of a symbol.
type Ticker struct {
	Symbol string
	Last   decimal.Decimal
	At     time.Time
}

// PriceOracle returns the last trade price for a symbol such as "BTC/USDT".
// It returns ErrPriceUnavailable (never a zero price) when no quote can be
// obtained, and ErrRateLimited when the provider throttles us.
type PriceOracle interface {
	LastPrice(ctx context.Context, symbol string) (Ticker, error)
}
