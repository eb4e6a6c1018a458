package binance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

type fakeGuard struct {
	mu    sync.Mutex
	until time.Time
}

func (g *fakeGuard) UnblockTime(context.Context) (time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.until, nil
}

func (g *fakeGuard) Block(_ context.Context, until time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if until.After(g.until) {
		g.until = until
	}
	return nil
}

func newClient(t *testing.T, h http.HandlerFunc, guard domain.BanGuard) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, RequestsPerSecond: 100, Burst: 10, BanCooldown: time.Minute},
		guard, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTickerPrice(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"64123.45000000"}`))
	}, nil)

	tk, err := c.TickerPrice(context.Background(), "btc/usdt")
	require.NoError(t, err)
	assert.Equal(t, "64123.45", tk.Last.String())
	assert.Equal(t, "btc/usdt", tk.Symbol)
}

func TestTickerPrice_RateLimitedBlocksGuard(t *testing.T) {
	guard := &fakeGuard{}
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}, guard)

	_, err := c.TickerPrice(context.Background(), "BTC/USDT")
	require.ErrorIs(t, err, domain.ErrRateLimited)

	until, _ := guard.UnblockTime(context.Background())
	assert.WithinDuration(t, time.Now().Add(120*time.Second), until, 5*time.Second)
}

func TestTickerPrice_BanWithoutRetryAfterUsesCooldown(t *testing.T) {
	guard := &fakeGuard{}
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}, guard)

	_, err := c.TickerPrice(context.Background(), "BTC/USDT")
	require.ErrorIs(t, err, domain.ErrRateLimited)
	until, _ := guard.UnblockTime(context.Background())
	assert.WithinDuration(t, time.Now().Add(time.Minute), until, 5*time.Second)
}

func TestTickerPrice_Unavailable(t *testing.T) {
	tests := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"bad symbol", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
		}},
		{"zero price", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"0.00000000"}`))
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`<html>`)) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newClient(t, tc.h, nil)
			_, err := c.TickerPrice(context.Background(), "BTC/USDT")
			assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
		})
	}
}

func TestTickerPrice_UpstreamAuthFailuresAreUnavailable(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			guard := &fakeGuard{}
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				_, _ = w.Write([]byte("WAF limit"))
			}, guard)

			_, err := c.TickerPrice(context.Background(), "BTC/USDT")
			require.ErrorIs(t, err, domain.ErrPriceUnavailable)
			assert.NotErrorIs(t, err, domain.ErrUnauthorized)

			until, _ := guard.UnblockTime(context.Background())
			if status == http.StatusForbidden {
				assert.WithinDuration(t, time.Now().Add(time.Minute), until, 5*time.Second)
			} else {
				assert.True(t, until.IsZero())
			}
		})
	}
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, retryAfter("30", time.Minute))
	assert.Equal(t, time.Minute, retryAfter("", time.Minute))
	assert.Equal(t, time.Minute, retryAfter("Wed, 21 Oct 2015 07:28:00 GMT", time.Minute))
}
