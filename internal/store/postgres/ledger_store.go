package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

var _ domain.Ledger = (*LedgerStore)(nil)

// LedgerStore implements domain.Ledger over the wallets and transactions
// tables.
type LedgerStore struct {
	q querier
}

// NewLedgerStore creates a LedgerStore backed by the given pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{q: pool}
}

// FindWallet loads and row-locks the wallet for (userID, currency, typ).
func (s *LedgerStore) FindWallet(ctx context.Context, userID, currency string, typ domain.WalletType) (domain.Wallet, error) {
	const query = `
		SELECT id, user_id, currency, type, balance::text, updated_at
		FROM wallets
		WHERE user_id = $1 AND currency = $2 AND type = $3
		FOR UPDATE`

	var (
		w       domain.Wallet
		wt      string
		balance string
	)
	err := s.q.QueryRow(ctx, query, userID, currency, string(typ)).
		Scan(&w.ID, &w.UserID, &w.Currency, &wt, &balance, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Wallet{}, domain.ErrWalletNotFound
		}
		return domain.Wallet{}, fmt.Errorf("postgres: find wallet %s/%s: %w", userID, currency, err)
	}
	w.Type = domain.WalletType(wt)
	if w.Balance, err = parseDecimal("balance", balance); err != nil {
		return domain.Wallet{}, fmt.Errorf("postgres: find wallet %s/%s: %w", userID, currency, err)
	}
	return w, nil
}

// UpdateWalletBalance sets the wallet balance. Negative balances are refused.
func (s *LedgerStore) UpdateWalletBalance(ctx context.Context, walletID string, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return domain.ErrInsufficientBalance
	}
	tag, err := s.q.Exec(ctx,
		`UPDATE wallets SET balance = $2, updated_at = NOW() WHERE id = $1`,
		walletID, balance.String())
	if err != nil {
		return fmt.Errorf("postgres: update wallet %s balance: %w", walletID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// CreateTransaction inserts a ledger entry.
func (s *LedgerStore) CreateTransaction(ctx context.Context, t domain.Transaction) error {
	const query = `
		INSERT INTO transactions (
			id, user_id, wallet_id, type, status, amount, fee,
			description, reference_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`

	_, err := s.q.Exec(ctx, query,
		t.ID, t.UserID, t.WalletID, string(t.Type), string(t.Status),
		t.Amount.String(), t.Fee.String(), t.Description, t.ReferenceID, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create transaction %s: %w", t.ID, err)
	}
	return nil
}

// FindTransactionByReference returns the transaction linked to referenceID.
func (s *LedgerStore) FindTransactionByReference(ctx context.Context, referenceID string) (domain.Transaction, error) {
	const query = `
		SELECT id, user_id, wallet_id, type, status, amount::text, fee::text,
		       description, reference_id, created_at, updated_at
		FROM transactions
		WHERE reference_id = $1`

	var (
		t           domain.Transaction
		typ, status string
		amount, fee string
	)
	err := s.q.QueryRow(ctx, query, referenceID).Scan(
		&t.ID, &t.UserID, &t.WalletID, &typ, &status, &amount, &fee,
		&t.Description, &t.ReferenceID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, domain.ErrTransactionNotFound
		}
		return domain.Transaction{}, fmt.Errorf("postgres: find transaction for %s: %w", referenceID, err)
	}
	t.Type = domain.TransactionType(typ)
	t.Status = domain.TransactionStatus(status)
	if t.Amount, err = parseDecimal("amount", amount); err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: find transaction for %s: %w", referenceID, err)
	}
	if t.Fee, err = parseDecimal("fee", fee); err != nil {
		return domain.Transaction{}, fmt.Errorf("postgres: find transaction for %s: %w", referenceID, err)
	}
	return t, nil
}

// UpdateTransactionStatus sets the status of a transaction.
func (s *LedgerStore) UpdateTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE transactions SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update transaction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// DeleteTransaction hard-deletes a transaction.
func (s *LedgerStore) DeleteTransaction(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete transaction %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}
