package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

var (
	_ domain.MarketStore       = (*MarketStore)(nil)
	_ domain.NotificationStore = (*NotificationStore)(nil)
	_ domain.UserStore         = (*UserStore)(nil)
	_ domain.AuditStore        = (*AuditStore)(nil)
)

// MarketStore implements domain.MarketStore.
type MarketStore struct{ s *Store }

func (m *MarketStore) Upsert(_ context.Context, market domain.Market) error {
	market.UpdatedAt = time.Now().UTC()
	m.s.mu.Lock()
	m.s.markets[market.Symbol()] = market
	m.s.mu.Unlock()
	return nil
}

func (m *MarketStore) Get(_ context.Context, currency, pair string) (domain.Market, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	market, ok := m.s.markets[currency+"/"+pair]
	if !ok {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	return market, nil
}

func (m *MarketStore) List(_ context.Context) ([]domain.Market, error) {
	m.s.mu.Lock()
	out := make([]domain.Market, 0, len(m.s.markets))
	for _, market := range m.s.markets {
		out = append(out, market)
	}
	m.s.mu.Unlock()
	slices.SortFunc(out, func(a, b domain.Market) int { return strings.Compare(a.Symbol(), b.Symbol()) })
	return out, nil
}

// NotificationStore implements domain.NotificationStore.
type NotificationStore struct{ s *Store }

func (n *NotificationStore) Create(_ context.Context, note domain.Notification) error {
	n.s.mu.Lock()
	n.s.notifications = append(n.s.notifications, note)
	n.s.mu.Unlock()
	return nil
}

func (n *NotificationStore) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.Notification, error) {
	n.s.mu.Lock()
	var out []domain.Notification
	for i := len(n.s.notifications) - 1; i >= 0; i-- {
		if note := n.s.notifications[i]; note.UserID == userID {
			out = append(out, note)
		}
	}
	n.s.mu.Unlock()
	return page(out, opts), nil
}

// UserStore implements domain.UserStore.
type UserStore struct{ s *Store }

func (u *UserStore) GetByID(_ context.Context, id string) (domain.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

// AuditStore implements domain.AuditStore.
type AuditStore struct{ s *Store }

func (a *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	a.s.mu.Lock()
	a.s.audit = append(a.s.audit, domain.AuditEntry{
		ID:        int64(len(a.s.audit) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	a.s.mu.Unlock()
	return nil
}

func (a *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	a.s.mu.Lock()
	out := make([]domain.AuditEntry, 0, len(a.s.audit))
	for i := len(a.s.audit) - 1; i >= 0; i-- {
		out = append(out, a.s.audit[i])
	}
	a.s.mu.Unlock()
	return page(out, opts), nil
}
