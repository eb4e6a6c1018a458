package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

var _ domain.BinaryOrderStore = (*OrderStore)(nil)

// OrderStore implements domain.BinaryOrderStore.
type OrderStore struct{ s *Store }

func (o *OrderStore) Create(_ context.Context, order domain.BinaryOrder) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	if _, ok := o.s.orders[order.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	o.s.orders[order.ID] = order
	return nil
}

func (o *OrderStore) GetByID(_ context.Context, id string) (domain.BinaryOrder, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	order, ok := o.s.orders[id]
	if !ok {
		return domain.BinaryOrder{}, domain.ErrNotFound
	}
	return order, nil
}

func (o *OrderStore) GetForUpdate(ctx context.Context, id string) (domain.BinaryOrder, error) {
	return o.GetByID(ctx, id)
}

func (o *OrderStore) Close(_ context.Context, id string, status domain.OrderStatus, closePrice decimal.Decimal) error {
	if !status.Terminal() {
		return domain.ErrInvalidOrder
	}
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	order, ok := o.s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	if order.Status != domain.OrderStatusPending {
		return domain.ErrOrderClosed
	}
	order.Status = status
	order.ClosePrice = decimal.NewNullDecimal(closePrice)
	order.UpdatedAt = time.Now().UTC()
	o.s.orders[id] = order
	return nil
}

func (o *OrderStore) ListPending(_ context.Context) ([]domain.BinaryOrder, error) {
	out := o.filter(func(b domain.BinaryOrder) bool { return b.Status == domain.OrderStatusPending })
	slices.SortFunc(out, func(a, b domain.BinaryOrder) int { return a.ClosedAt.Compare(b.ClosedAt) })
	return out, nil
}

func (o *OrderStore) ListByUser(_ context.Context, userID string, f domain.OrderFilter) ([]domain.BinaryOrder, error) {
	out := o.filter(func(b domain.BinaryOrder) bool {
		if b.UserID != userID || (f.Status != "" && b.Status != f.Status) {
			return false
		}
		if f.Since != nil && b.CreatedAt.Before(*f.Since) {
			return false
		}
		return f.Until == nil || !b.CreatedAt.After(*f.Until)
	})
	slices.SortFunc(out, func(a, b domain.BinaryOrder) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return page(out, f.ListOpts), nil
}

func (o *OrderStore) ListClosedBetween(_ context.Context, from, to time.Time) ([]domain.BinaryOrder, error) {
	out := o.filter(func(b domain.BinaryOrder) bool {
		return b.Status.Terminal() && !b.ClosedAt.Before(from) && b.ClosedAt.Before(to)
	})
	slices.SortFunc(out, func(a, b domain.BinaryOrder) int { return a.ClosedAt.Compare(b.ClosedAt) })
	return out, nil
}

func (o *OrderStore) filter(keep func(domain.BinaryOrder) bool) []domain.BinaryOrder {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	var out []domain.BinaryOrder
	for _, b := range o.s.orders {
		if keep(b) {
			out = append(out, b)
		}
	}
	return out
}

func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
