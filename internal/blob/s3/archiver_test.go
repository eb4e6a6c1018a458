package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/service"
	"github.com/alanyoungcy/binaryoptions/internal/store/memory"
)

type memBlobs struct {
	objects map[string][]byte
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func closedOrder(t *testing.T, s *memory.Store, id string, closedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Orders().Create(ctx, domain.BinaryOrder{
		ID: id, UserID: "u1", Currency: "BTC", Pair: "USDT",
		Side: domain.OrderSideRise, Type: domain.OrderTypeRiseFall,
		Amount: decimal.NewFromInt(10), Price: decimal.NewFromInt(100),
		Status: domain.OrderStatusPending, CreatedAt: closedAt.Add(-time.Minute), ClosedAt: closedAt,
	}))
	require.NoError(t, s.Orders().Close(ctx, id, domain.OrderStatusWin, decimal.NewFromInt(101)))
}

func TestOrderArchiver_WritesMonthlyJSONL(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	closedOrder(t, store, "jan-1", time.Date(2025, 1, 3, 10, 0, 0, 0, time.UTC))
	closedOrder(t, store, "jan-2", time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC))
	closedOrder(t, store, "feb-1", time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC))
	closedOrder(t, store, "mar-1", time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))

	blobs := &memBlobs{objects: map[string][]byte{}}
	a := NewArchiver(store.Orders(), blobs, blobs, store.Audit())

	n, err := a.ArchiveOrders(ctx, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Len(t, blobs.objects, 2)
	assert.NotContains(t, blobs.objects, "archive/binary_orders/2025-03.jsonl")

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(blobs.objects["archive/binary_orders/2025-01.jsonl"]))
	for sc.Scan() {
		var v service.OrderView
		require.NoError(t, json.Unmarshal(sc.Bytes(), &v))
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []string{"jan-1", "jan-2"}, ids)

	again, err := a.ArchiveOrders(ctx, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, again)

	entries, err := store.Audit().List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("s3.example.com", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://already", normaliseEndpoint("http://already", true))
}
