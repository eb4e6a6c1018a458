package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

var _ domain.TxManager = (*TxManager)(nil)

// TxManager implements domain.TxManager with one pgx transaction per call.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a TxManager backed by the given pool.
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// WithTx runs fn inside a transaction. Errors returned by fn are passed
// through unwrapped after rollback.
func (m *TxManager) WithTx(ctx context.Context, fn func(domain.Tx) error) error {
	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		return fn(txStores{
			orders: &BinaryOrderStore{q: tx},
			ledger: &LedgerStore{q: tx},
		})
	})
}

type txStores struct {
	orders *BinaryOrderStore
	ledger *LedgerStore
}

func (t txStores) Orders() domain.BinaryOrderStore { return t.orders }
func (t txStores) Ledger() domain.Ledger           { return t.ledger }
