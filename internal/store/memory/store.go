// Package memory implements the domain stores in process memory. It backs
// the "memory" storage driver and the service tests.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

var _ domain.TxManager = (*Store)(nil)

// Store holds all tables behind one mutex. WithTx serializes transactions
// and restores a snapshot of the ledger tables when fn fails.
type Store struct {
	txMu sync.Mutex

	mu            sync.Mutex
	orders        map[string]domain.BinaryOrder
	wallets       map[string]domain.Wallet
	transactions  map[string]domain.Transaction
	markets       map[string]domain.Market
	notifications []domain.Notification
	users         map[string]domain.User
	audit         []domain.AuditEntry
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		orders:       make(map[string]domain.BinaryOrder),
		wallets:      make(map[string]domain.Wallet),
		transactions: make(map[string]domain.Transaction),
		markets:      make(map[string]domain.Market),
		users:        make(map[string]domain.User),
	}
}

// Orders returns the order table view.
func (s *Store) Orders() *OrderStore { return &OrderStore{s: s} }

// Ledger returns the wallet and transaction view.
func (s *Store) Ledger() *LedgerStore { return &LedgerStore{s: s} }

// Markets returns the market table view.
func (s *Store) Markets() *MarketStore { return &MarketStore{s: s} }

// Notifications returns the notification table view.
func (s *Store) Notifications() *NotificationStore { return &NotificationStore{s: s} }

// Users returns the user table view.
func (s *Store) Users() *UserStore { return &UserStore{s: s} }

// Audit returns the audit log view.
func (s *Store) Audit() *AuditStore { return &AuditStore{s: s} }

type snapshot struct {
	orders       map[string]domain.BinaryOrder
	wallets      map[string]domain.Wallet
	transactions map[string]domain.Transaction
}

// WithTx runs fn with exclusive access to the order and ledger tables.
func (s *Store) WithTx(ctx context.Context, fn func(domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snap := snapshot{
		orders:       maps.Clone(s.orders),
		wallets:      maps.Clone(s.wallets),
		transactions: maps.Clone(s.transactions),
	}
	s.mu.Unlock()

	if err := fn(txView{s: s}); err != nil {
		s.mu.Lock()
		s.orders = snap.orders
		s.wallets = snap.wallets
		s.transactions = snap.transactions
		s.mu.Unlock()
		return err
	}
	return nil
}

type txView struct{ s *Store }

func (t txView) Orders() domain.BinaryOrderStore { return t.s.Orders() }
func (t txView) Ledger() domain.Ledger           { return t.s.Ledger() }

// PutWallet inserts or replaces a wallet.
func (s *Store) PutWallet(w domain.Wallet) {
	if w.Type == "" {
		w.Type = domain.WalletTypeSpot
	}
	s.mu.Lock()
	s.wallets[w.ID] = w
	s.mu.Unlock()
}

// Wallet returns a wallet by id.
func (s *Store) Wallet(id string) (domain.Wallet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	return w, ok
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
}
