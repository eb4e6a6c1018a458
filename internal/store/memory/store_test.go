package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutWallet(domain.Wallet{ID: "w1", UserID: "u1", Currency: "USDT", Balance: decimal.NewFromInt(100)})

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx domain.Tx) error {
		require.NoError(t, tx.Ledger().UpdateWalletBalance(ctx, "w1", decimal.NewFromInt(40)))
		require.NoError(t, tx.Orders().Create(ctx, domain.BinaryOrder{ID: "o1", Status: domain.OrderStatusPending}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	w, _ := s.Wallet("w1")
	assert.Equal(t, "100", w.Balance.String())
	_, err = s.Orders().GetByID(ctx, "o1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLedger_RejectsNegativeBalance(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutWallet(domain.Wallet{ID: "w1", UserID: "u1", Currency: "USDT", Balance: decimal.NewFromInt(1)})

	err := s.Ledger().UpdateWalletBalance(ctx, "w1", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = s.Ledger().FindWallet(ctx, "u1", "BTC", domain.WalletTypeSpot)
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestOrders_CloseOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	orders := s.Orders()
	require.NoError(t, orders.Create(ctx, domain.BinaryOrder{ID: "o1", Status: domain.OrderStatusPending}))

	require.NoError(t, orders.Close(ctx, "o1", domain.OrderStatusWin, decimal.NewFromInt(110)))
	assert.ErrorIs(t, orders.Close(ctx, "o1", domain.OrderStatusLoss, decimal.NewFromInt(90)), domain.ErrOrderClosed)
	assert.ErrorIs(t, orders.Close(ctx, "missing", domain.OrderStatusWin, decimal.Zero), domain.ErrNotFound)

	o, err := orders.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusWin, o.Status)
	assert.Equal(t, "110", o.ClosePrice.Decimal.String())
}

func TestOrders_Listing(t *testing.T) {
	ctx := context.Background()
	s := New()
	orders := s.Orders()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, orders.Create(ctx, domain.BinaryOrder{
			ID:        id,
			UserID:    "u1",
			Status:    domain.OrderStatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			ClosedAt:  base.Add(time.Duration(10-i) * time.Minute),
		}))
	}
	require.NoError(t, orders.Close(ctx, "b", domain.OrderStatusDraw, decimal.NewFromInt(1)))

	pending, err := orders.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "c", pending[0].ID, "earliest expiry first")

	mine, err := orders.ListByUser(ctx, "u1", domain.OrderFilter{ListOpts: domain.ListOpts{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "c", mine[0].ID, "newest first")

	closed, err := orders.ListClosedBetween(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "b", closed[0].ID)
}
