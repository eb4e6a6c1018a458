package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market is a tradable binary-options symbol with its stake limits.
type Market struct {
	Currency      string
	Pair          string
	MinAmount     decimal.Decimal
	MaxAmount     decimal.Decimal
	ProfitPercent decimal.Decimal // zero means use the global default
	Enabled       bool
	UpdatedAt     time.Time
}

// Symbol returns "CURRENCY/PAIR".
func (m Market) Symbol() string {
	return m.Currency + "/" + m.Pair
}

// AcceptsAmount reports whether amount lies within [MinAmount, MaxAmount].
// A zero MaxAmount means no upper bound.
func (m Market) AcceptsAmount(amount decimal.Decimal) bool {
	if !amount.IsPositive() || amount.LessThan(m.MinAmount) {
		return false
	}
	return m.MaxAmount.IsZero() || amount.LessThanOrEqual(m.MaxAmount)
}
