package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// OrderView is the JSON representation of a binary order shared by the
// HTTP API and real-time events.
type OrderView struct {
	ID         string           `json:"id"`
	UserID     string           `json:"userId"`
	Symbol     string           `json:"symbol"`
	Side       domain.OrderSide `json:"side"`
	Type       domain.OrderType `json:"type"`
	Amount     decimal.Decimal  `json:"amount"`
	Price      decimal.Decimal  `json:"price"`
	Profit     decimal.Decimal  `json:"profit"`
	Status     string           `json:"status"`
	ClosePrice *decimal.Decimal `json:"closePrice"`
	IsDemo     bool             `json:"isDemo"`
	CreatedAt  time.Time        `json:"createdAt"`
	ClosedAt   time.Time        `json:"closedAt"`
}

// NewOrderView converts a domain order.
func NewOrderView(o domain.BinaryOrder) OrderView {
	v := OrderView{
		ID:        o.ID,
		UserID:    o.UserID,
		Symbol:    o.Symbol(),
		Side:      o.Side,
		Type:      o.Type,
		Amount:    o.Amount,
		Price:     o.Price,
		Profit:    o.ProfitPercent,
		Status:    string(o.Status),
		IsDemo:    o.IsDemo,
		CreatedAt: o.CreatedAt,
		ClosedAt:  o.ClosedAt,
	}
	if o.ClosePrice.Valid {
		cp := o.ClosePrice.Decimal
		v.ClosePrice = &cp
	}
	return v
}
