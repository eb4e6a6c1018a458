package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// TickerSource fetches a live quote from the upstream provider.
type TickerSource interface {
	TickerPrice(ctx context.Context, symbol string) (domain.Ticker, error)
}

// PriceService implements domain.PriceOracle as a read-through cache in
// front of a TickerSource. Fresh quotes are fanned out on the signal bus.
type PriceService struct {
	source TickerSource
	cache  domain.PriceCache
	bus    domain.SignalBus
	maxAge time.Duration
	logger *slog.Logger

	marshal func(v any) ([]byte, error)
}

var _ domain.PriceOracle = (*PriceService)(nil)

// NewPriceService creates a PriceService. cache and bus may be nil; a zero
// maxAge disables cache reads.
func NewPriceService(source TickerSource, cache domain.PriceCache, bus domain.SignalBus, maxAge time.Duration, logger *slog.Logger) *PriceService {
	return &PriceService{
		source:  source,
		cache:   cache,
		bus:     bus,
		maxAge:  maxAge,
		logger:  logger.With(slog.String("component", "price_service")),
		marshal: json.Marshal,
	}
}

// TickerChannel is the pub/sub channel carrying quotes for symbol.
func TickerChannel(symbol string) string {
	return "ch:ticker:" + symbol
}

// LastPrice returns the last trade price for symbol.
func (s *PriceService) LastPrice(ctx context.Context, symbol string) (domain.Ticker, error) {
	if s.cache != nil && s.maxAge > 0 {
		price, ts, err := s.cache.GetPrice(ctx, symbol)
		switch {
		case err == nil && price.IsPositive() && time.Since(ts) <= s.maxAge:
			return domain.Ticker{Symbol: symbol, Last: price, At: ts}, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			s.logger.WarnContext(ctx, "price cache read failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	tk, err := s.source.TickerPrice(ctx, symbol)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("price_service: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetPrice(ctx, symbol, tk.Last, tk.At); err != nil {
			s.logger.WarnContext(ctx, "price cache write failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.bus != nil {
		s.publish(ctx, symbol, tk)
	}
	return tk, nil
}

func (s *PriceService) publish(ctx context.Context, symbol string, tk domain.Ticker) {
	evt, err := s.marshal(map[string]any{
		"symbol": symbol,
		"last":   tk.Last,
		"at":     tk.At.Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "marshal ticker event failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.bus.Publish(ctx, TickerChannel(symbol), evt); err != nil {
		s.logger.DebugContext(ctx, "publish ticker failed", slog.String("error", err.Error()))
	}
}
