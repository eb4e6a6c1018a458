package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletType distinguishes ledgers held by the same user.
type WalletType string

const (
	WalletTypeSpot WalletType = "SPOT"
)

// Wallet holds a balance per (user, currency, type).
type Wallet struct {
	ID        string
	UserID    string
	Currency  string
	Type      WalletType
	Balance   decimal.Decimal
	UpdatedAt time.Time
}

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionTypeBinaryOrder TransactionType = "BINARY_ORDER"
)

// TransactionStatus tracks a ledger entry.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
)

// Transaction is the ledger entry linked 1:1 to a non-demo binary order
// through ReferenceID.
type Transaction struct {
	ID          string
	UserID      string
	WalletID    string
	Type        TransactionType
	Status      TransactionStatus
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	Description string
	ReferenceID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
