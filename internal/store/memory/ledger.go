package memory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

var _ domain.Ledger = (*LedgerStore)(nil)

// LedgerStore implements domain.Ledger.
type LedgerStore struct{ s *Store }

func (l *LedgerStore) FindWallet(_ context.Context, userID, currency string, typ domain.WalletType) (domain.Wallet, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	for _, w := range l.s.wallets {
		if w.UserID == userID && w.Currency == currency && w.Type == typ {
			return w, nil
		}
	}
	return domain.Wallet{}, domain.ErrWalletNotFound
}

func (l *LedgerStore) UpdateWalletBalance(_ context.Context, walletID string, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return domain.ErrInsufficientBalance
	}
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	w, ok := l.s.wallets[walletID]
	if !ok {
		return domain.ErrWalletNotFound
	}
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	l.s.wallets[walletID] = w
	return nil
}

func (l *LedgerStore) CreateTransaction(_ context.Context, t domain.Transaction) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if _, ok := l.s.transactions[t.ID]; ok {
		return domain.ErrAlreadyExists
	}
	for _, existing := range l.s.transactions {
		if t.ReferenceID != "" && existing.ReferenceID == t.ReferenceID {
			return domain.ErrAlreadyExists
		}
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	l.s.transactions[t.ID] = t
	return nil
}

func (l *LedgerStore) FindTransactionByReference(_ context.Context, referenceID string) (domain.Transaction, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	for _, t := range l.s.transactions {
		if t.ReferenceID == referenceID {
			return t, nil
		}
	}
	return domain.Transaction{}, domain.ErrTransactionNotFound
}

func (l *LedgerStore) UpdateTransactionStatus(_ context.Context, id string, status domain.TransactionStatus) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	t, ok := l.s.transactions[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	l.s.transactions[id] = t
	return nil
}

func (l *LedgerStore) DeleteTransaction(_ context.Context, id string) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if _, ok := l.s.transactions[id]; !ok {
		return domain.ErrTransactionNotFound
	}
	delete(l.s.transactions, id)
	return nil
}
