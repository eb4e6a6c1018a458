package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

var _ domain.MarketStore = (*MarketStore)(nil)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Upsert inserts or replaces a market's limits.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO binary_markets (currency, pair, min_amount, max_amount, profit_percent, enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (currency, pair) DO UPDATE SET
			min_amount     = EXCLUDED.min_amount,
			max_amount     = EXCLUDED.max_amount,
			profit_percent = EXCLUDED.profit_percent,
			enabled        = EXCLUDED.enabled,
			updated_at     = NOW()`

	_, err := s.pool.Exec(ctx, query,
		m.Currency, m.Pair, m.MinAmount.String(), m.MaxAmount.String(),
		m.ProfitPercent.String(), m.Enabled,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.Symbol(), err)
	}
	return nil
}

const marketCols = `currency, pair, min_amount::text, max_amount::text, profit_percent::text, enabled, updated_at`

func scanMarket(row scanner) (domain.Market, error) {
	var (
		m                  domain.Market
		minAmt, maxAmt, pp string
	)
	if err := row.Scan(&m.Currency, &m.Pair, &minAmt, &maxAmt, &pp, &m.Enabled, &m.UpdatedAt); err != nil {
		return domain.Market{}, err
	}
	var err error
	if m.MinAmount, err = parseDecimal("min_amount", minAmt); err != nil {
		return domain.Market{}, err
	}
	if m.MaxAmount, err = parseDecimal("max_amount", maxAmt); err != nil {
		return domain.Market{}, err
	}
	if m.ProfitPercent, err = parseDecimal("profit_percent", pp); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// Get returns the market for currency/pair.
func (s *MarketStore) Get(ctx context.Context, currency, pair string) (domain.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM binary_markets WHERE currency = $1 AND pair = $2`, currency, pair))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrMarketNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s/%s: %w", currency, pair, err)
	}
	return m, nil
}

// List returns all markets ordered by symbol.
func (s *MarketStore) List(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketCols+` FROM binary_markets ORDER BY currency, pair`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}
