package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
	"github.com/alanyoungcy/binaryoptions/internal/service"
)

// ClosedOrderSource is the read side of the order store the archiver needs.
type ClosedOrderSource interface {
	ListClosedBetween(ctx context.Context, from, to time.Time) ([]domain.BinaryOrder, error)
}

// defaultLookback bounds how many months a single run inspects.
const defaultLookback = 12

// OrderArchiver implements domain.Archiver. Each calendar month of closed
// orders becomes one JSONL object at archive/binary_orders/YYYY-MM.jsonl.
// Months already present in the bucket are skipped, so runs are idempotent.
// Archived rows stay in the database.
type OrderArchiver struct {
	orders   ClosedOrderSource
	writer   domain.BlobWriter
	reader   domain.BlobReader
	audit    domain.AuditStore
	lookback int
}

var _ domain.Archiver = (*OrderArchiver)(nil)

// NewArchiver creates an OrderArchiver. audit may be nil.
func NewArchiver(orders ClosedOrderSource, writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore) *OrderArchiver {
	return &OrderArchiver{
		orders:   orders,
		writer:   writer,
		reader:   reader,
		audit:    audit,
		lookback: defaultLookback,
	}
}

// ArchiveOrders uploads every complete month that ends on or before the
// month containing before, walking back at most lookback months. It returns
// the number of orders written.
func (a *OrderArchiver) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	end := monthStart(before.UTC())
	var total int64
	for range a.lookback {
		start := end.AddDate(0, -1, 0)
		n, err := a.archiveMonth(ctx, start, end)
		if err != nil {
			return total, err
		}
		total += n
		end = start
	}
	return total, nil
}

func (a *OrderArchiver) archiveMonth(ctx context.Context, from, to time.Time) (int64, error) {
	path := archivePath("binary_orders", from)
	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: %w", path, err)
	}
	if exists {
		return 0, nil
	}

	orders, err := a.orders.ListClosedBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query %s: %w", from.Format("2006-01"), err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	views := make([]service.OrderView, len(orders))
	for i, o := range orders {
		views[i] = service.NewOrderView(o)
	}
	buf, err := marshalJSONL(views)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	count := int64(len(orders))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.binary_orders", map[string]any{
			"path":  path,
			"count": count,
			"from":  from.Format(time.RFC3339),
			"to":    to.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive audit log: %w", err)
		}
	}
	return count, nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// archivePath builds the object key for one month of records.
//
//	archive/binary_orders/2025-01.jsonl
func archivePath(kind string, month time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, month.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
