package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// MarketStore is the read side of domain.MarketStore used by the handler.
type MarketStore interface {
	Get(ctx context.Context, currency, pair string) (domain.Market, error)
	List(ctx context.Context) ([]domain.Market, error)
}

// MarketHandler serves binary market metadata.
type MarketHandler struct {
	markets       MarketStore
	defaultProfit decimal.Decimal
	logger        *slog.Logger
}

// NewMarketHandler creates a MarketHandler. defaultProfit is reported for
// markets without their own profit percentage.
func NewMarketHandler(markets MarketStore, defaultProfit decimal.Decimal, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets:       markets,
		defaultProfit: defaultProfit,
		logger:        logger.With(slog.String("handler", "market")),
	}
}

type marketView struct {
	Symbol        string          `json:"symbol"`
	Currency      string          `json:"currency"`
	Pair          string          `json:"pair"`
	MinAmount     decimal.Decimal `json:"minAmount"`
	MaxAmount     decimal.Decimal `json:"maxAmount"`
	ProfitPercent decimal.Decimal `json:"profitPercent"`
	Enabled       bool            `json:"enabled"`
}

func (h *MarketHandler) view(m domain.Market) marketView {
	profit := m.ProfitPercent
	if !profit.IsPositive() {
		profit = h.defaultProfit
	}
	return marketView{
		Symbol:        m.Symbol(),
		Currency:      m.Currency,
		Pair:          m.Pair,
		MinAmount:     m.MinAmount,
		MaxAmount:     m.MaxAmount,
		ProfitPercent: profit,
		Enabled:       m.Enabled,
	}
}

// ListMarkets returns every configured market.
// GET /api/exchange/binary/market
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.markets.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}
	out := make([]marketView, 0, len(markets))
	for _, m := range markets {
		out = append(out, h.view(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": out})
}

// GetMarket returns one market.
// GET /api/exchange/binary/market/{currency}/{pair}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.Get(r.Context(),
		strings.ToUpper(r.PathValue("currency")),
		strings.ToUpper(r.PathValue("pair")),
	)
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(m))
}
