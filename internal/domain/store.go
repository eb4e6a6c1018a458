package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderFilter narrows a user's order listing.
type OrderFilter struct {
	Status OrderStatus // empty means any
	ListOpts
}

// BinaryOrderStore persists binary orders. Orders are never deleted.
type BinaryOrderStore interface {
	Create(ctx context.Context, order BinaryOrder) error
	GetByID(ctx context.Context, id string) (BinaryOrder, error)
	// GetForUpdate reads the order and, inside a transaction, locks its row.
	GetForUpdate(ctx context.Context, id string) (BinaryOrder, error)
	// Close moves a PENDING order to a terminal status. It returns
	// ErrOrderClosed when the order is no longer PENDING.
	Close(ctx context.Context, id string, status OrderStatus, closePrice decimal.Decimal) error
	ListPending(ctx context.Context) ([]BinaryOrder, error)
	ListByUser(ctx context.Context, userID string, filter OrderFilter) ([]BinaryOrder, error)
	ListClosedBetween(ctx context.Context, from, to time.Time) ([]BinaryOrder, error)
}

// Ledger reads and mutates wallets and their transaction records.
type Ledger interface {
	// FindWallet returns ErrWalletNotFound when no wallet matches. Inside a
	// transaction the wallet row is locked.
	FindWallet(ctx context.Context, userID, currency string, typ WalletType) (Wallet, error)
	// UpdateWalletBalance rejects negative balances with ErrInsufficientBalance.
	UpdateWalletBalance(ctx context.Context, walletID string, balance decimal.Decimal) error
	CreateTransaction(ctx context.Context, tx Transaction) error
	// FindTransactionByReference returns ErrTransactionNotFound when absent.
	FindTransactionByReference(ctx context.Context, referenceID string) (Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id string, status TransactionStatus) error
	DeleteTransaction(ctx context.Context, id string) error
}

// Tx exposes stores bound to one atomic unit of work.
type Tx interface {
	Orders() BinaryOrderStore
	Ledger() Ledger
}

// TxManager runs fn inside a transaction, committing when fn returns nil
// and rolling back otherwise.
type TxManager interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// MarketStore persists binary market metadata.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	Get(ctx context.Context, currency, pair string) (Market, error)
	List(ctx context.Context) ([]Market, error)
}

// NotificationStore persists user inbox notifications.
type NotificationStore interface {
	Create(ctx context.Context, n Notification) error
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Notification, error)
}

// UserStore resolves account data for outbound messages.
type UserStore interface {
	GetByID(ctx context.Context, id string) (User, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
