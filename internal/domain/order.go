package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction a binary order bets on.
type OrderSide string

const (
	OrderSideRise OrderSide = "RISE"
	OrderSideFall OrderSide = "FALL"
)

// Valid reports whether s is a known side.
func (s OrderSide) Valid() bool {
	return s == OrderSideRise || s == OrderSideFall
}

// OrderType selects the payout model of a binary order.
type OrderType string

const (
	OrderTypeRiseFall OrderType = "RISE_FALL"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	return t == OrderTypeRiseFall
}

// OrderStatus tracks the binary order lifecycle. PENDING is the only
// non-terminal state.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusWin      OrderStatus = "WIN"
	OrderStatusLoss     OrderStatus = "LOSS"
	OrderStatusDraw     OrderStatus = "DRAW"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusWin, OrderStatusLoss, OrderStatusDraw, OrderStatusCanceled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	return s == OrderStatusPending || s.Terminal()
}

// BinaryOrder is a user's bet on price direction over a fixed window.
type BinaryOrder struct {
	ID            string
	UserID        string
	Currency      string // base asset, e.g. "BTC"
	Pair          string // quote asset, e.g. "USDT"; the stake is held in this wallet
	Side          OrderSide
	Type          OrderType
	Amount        decimal.Decimal
	Price         decimal.Decimal // entry price
	ProfitPercent decimal.Decimal // snapshot taken at creation
	Status        OrderStatus
	ClosePrice    decimal.NullDecimal
	IsDemo        bool
	CreatedAt     time.Time
	ClosedAt      time.Time // scheduled expiry
	UpdatedAt     time.Time
}

// Symbol returns the market symbol, e.g. "BTC/USDT".
func (o BinaryOrder) Symbol() string {
	return o.Currency + "/" + o.Pair
}

// Profit returns amount × profit%.
func (o BinaryOrder) Profit() decimal.Decimal {
	return o.Amount.Mul(o.ProfitPercent).Div(hundred)
}

var hundred = decimal.NewFromInt(100)

// DetermineOutcome resolves a PENDING order against closePrice.
func DetermineOutcome(o BinaryOrder, closePrice decimal.Decimal) OrderStatus {
	cmp := closePrice.Cmp(o.Price)
	if cmp == 0 {
		return OrderStatusDraw
	}
	switch o.Type {
	case OrderTypeRiseFall:
		switch o.Side {
		case OrderSideRise:
			if cmp > 0 {
				return OrderStatusWin
			}
		case OrderSideFall:
			if cmp < 0 {
				return OrderStatusWin
			}
		}
	}
	return OrderStatusLoss
}

// SettlementCredit is the amount returned to the wallet for a settled order.
// The stake was debited at creation, so LOSS credits nothing.
func SettlementCredit(o BinaryOrder, outcome OrderStatus) decimal.Decimal {
	switch outcome {
	case OrderStatusWin:
		return o.Amount.Add(o.Profit())
	case OrderStatusDraw:
		return o.Amount
	default:
		return decimal.Zero
	}
}

// ValidatePercentage rejects a cancellation haircut outside [-100, 100].
// A nil percentage is valid.
func ValidatePercentage(percentage *decimal.Decimal) error {
	if percentage != nil && percentage.Abs().GreaterThan(hundred) {
		return ErrInvalidPercentage
	}
	return nil
}

// CancellationCredit is the amount returned to the wallet when a PENDING
// order is closed early. An explicit percentage is a flat haircut on the
// stake and takes precedence over the directional return computed from the
// current price.
func CancellationCredit(o BinaryOrder, current decimal.Decimal, percentage *decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidatePercentage(percentage); err != nil {
		return decimal.Zero, err
	}
	if percentage != nil {
		p := percentage.Abs()
		return o.Amount.Sub(o.Amount.Mul(p).Div(hundred)), nil
	}
	switch DetermineOutcome(o, current) {
	case OrderStatusWin:
		return o.Amount.Add(o.Profit()), nil
	case OrderStatusDraw:
		return o.Amount, nil
	default:
		return o.Amount.Sub(o.Profit()), nil
	}
}
