// Package binance is a minimal REST client for Binance public market data.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// Config holds client settings.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	// BanCooldown is the block length recorded when a 429/418 carries no
	// usable Retry-After header.
	BanCooldown time.Duration
}

// Client fetches ticker prices. Requests are self-throttled, and provider
// throttling responses are recorded in the BanGuard so that every caller
// stops until the block expires.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	guard      domain.BanGuard
	cooldown   time.Duration
	logger     *slog.Logger
}

// New creates a Client. guard may be nil.
func New(cfg Config, guard domain.BanGuard, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.BanCooldown <= 0 {
		cfg.BanCooldown = time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		guard:      guard,
		cooldown:   cfg.BanCooldown,
		logger:     logger.With(slog.String("component", "binance")),
	}
}

// MarketSymbol converts "BTC/USDT" to Binance's "BTCUSDT".
func MarketSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

type tickerResponse struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// TickerPrice returns the last trade price for symbol ("BTC/USDT").
func (c *Client) TickerPrice(ctx context.Context, symbol string) (domain.Ticker, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Ticker{}, fmt.Errorf("binance: ticker %s: %w", symbol, err)
	}

	q := url.Values{}
	q.Set("symbol", MarketSymbol(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/ticker/price?"+q.Encode(), nil)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("binance: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("binance: ticker %s: %w: %w", symbol, domain.ErrPriceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("binance: read ticker %s: %w: %w", symbol, domain.ErrPriceUnavailable, err)
	}
	if err := c.checkHTTPStatus(ctx, resp, body); err != nil {
		return domain.Ticker{}, fmt.Errorf("binance: ticker %s: %w", symbol, err)
	}

	var tr tickerResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return domain.Ticker{}, fmt.Errorf("binance: decode ticker %s: %w: %w", symbol, domain.ErrPriceUnavailable, err)
	}
	if !tr.Price.IsPositive() {
		return domain.Ticker{}, fmt.Errorf("binance: ticker %s: %w: non-positive price %s", symbol, domain.ErrPriceUnavailable, tr.Price)
	}
	return domain.Ticker{Symbol: symbol, Last: tr.Price, At: time.Now().UTC()}, nil
}

// checkHTTPStatus maps non-2xx responses to domain errors. 429 and 418 also
// record a block in the guard, as does a 403 from the provider's firewall.
// Auth failures upstream are an outage of the price source, never the
// caller's credentials.
func (c *Client) checkHTTPStatus(ctx context.Context, resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusTeapot:
		c.block(ctx, resp.StatusCode, time.Now().Add(retryAfter(resp.Header.Get("Retry-After"), c.cooldown)))
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrRateLimited, resp.StatusCode, bodyStr)
	case http.StatusForbidden:
		c.block(ctx, resp.StatusCode, time.Now().Add(c.cooldown))
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrPriceUnavailable, resp.StatusCode, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrPriceUnavailable, resp.StatusCode, bodyStr)
	}
}

func (c *Client) block(ctx context.Context, status int, until time.Time) {
	c.logger.WarnContext(ctx, "price provider throttled us",
		slog.Int("status", status),
		slog.Time("unblock_at", until),
	)
	if c.guard == nil {
		return
	}
	if err := c.guard.Block(ctx, until); err != nil {
		c.logger.ErrorContext(ctx, "record exchange block failed", slog.String("error", err.Error()))
	}
}

// retryAfter parses a Retry-After value in seconds, falling back to def.
func retryAfter(v string, def time.Duration) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}
