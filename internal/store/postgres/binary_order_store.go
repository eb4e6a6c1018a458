package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

var _ domain.BinaryOrderStore = (*BinaryOrderStore)(nil)

// BinaryOrderStore implements domain.BinaryOrderStore using PostgreSQL.
type BinaryOrderStore struct {
	q querier
}

// NewBinaryOrderStore creates a BinaryOrderStore backed by the given pool.
func NewBinaryOrderStore(pool *pgxpool.Pool) *BinaryOrderStore {
	return &BinaryOrderStore{q: pool}
}

const binaryOrderCols = `id, user_id, currency, pair, side, type,
	amount::text, price::text, profit::text, status, close_price::text,
	is_demo, created_at, closed_at, updated_at`

func scanBinaryOrder(row scanner) (domain.BinaryOrder, error) {
	var (
		o                     domain.BinaryOrder
		side, typ, status     string
		amount, price, profit string
		closePrice            *string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Currency, &o.Pair, &side, &typ,
		&amount, &price, &profit, &status, &closePrice,
		&o.IsDemo, &o.CreatedAt, &o.ClosedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.BinaryOrder{}, err
	}
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(typ)
	o.Status = domain.OrderStatus(status)

	if o.Amount, err = parseDecimal("amount", amount); err != nil {
		return domain.BinaryOrder{}, err
	}
	if o.Price, err = parseDecimal("price", price); err != nil {
		return domain.BinaryOrder{}, err
	}
	if o.ProfitPercent, err = parseDecimal("profit", profit); err != nil {
		return domain.BinaryOrder{}, err
	}
	if closePrice != nil {
		cp, err := parseDecimal("close_price", *closePrice)
		if err != nil {
			return domain.BinaryOrder{}, err
		}
		o.ClosePrice = decimal.NewNullDecimal(cp)
	}
	return o, nil
}

func collectBinaryOrders(rows pgx.Rows) ([]domain.BinaryOrder, error) {
	defer rows.Close()
	var out []domain.BinaryOrder
	for rows.Next() {
		o, err := scanBinaryOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Create inserts a new PENDING order.
func (s *BinaryOrderStore) Create(ctx context.Context, o domain.BinaryOrder) error {
	const query = `
		INSERT INTO binary_orders (
			id, user_id, currency, pair, side, type,
			amount, price, profit, status, is_demo,
			created_at, closed_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $12)`

	_, err := s.q.Exec(ctx, query,
		o.ID, o.UserID, o.Currency, o.Pair, string(o.Side), string(o.Type),
		o.Amount.String(), o.Price.String(), o.ProfitPercent.String(),
		string(o.Status), o.IsDemo, o.CreatedAt, o.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create binary order %s: %w", o.ID, err)
	}
	return nil
}

// GetByID retrieves a single order.
func (s *BinaryOrderStore) GetByID(ctx context.Context, id string) (domain.BinaryOrder, error) {
	return s.get(ctx, `SELECT `+binaryOrderCols+` FROM binary_orders WHERE id = $1`, id)
}

// GetForUpdate retrieves the order and locks its row until the surrounding
// transaction ends.
func (s *BinaryOrderStore) GetForUpdate(ctx context.Context, id string) (domain.BinaryOrder, error) {
	return s.get(ctx, `SELECT `+binaryOrderCols+` FROM binary_orders WHERE id = $1 FOR UPDATE`, id)
}

func (s *BinaryOrderStore) get(ctx context.Context, query, id string) (domain.BinaryOrder, error) {
	o, err := scanBinaryOrder(s.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BinaryOrder{}, domain.ErrNotFound
		}
		return domain.BinaryOrder{}, fmt.Errorf("postgres: get binary order %s: %w", id, err)
	}
	return o, nil
}

// Close moves a PENDING order to status and records closePrice.
func (s *BinaryOrderStore) Close(ctx context.Context, id string, status domain.OrderStatus, closePrice decimal.Decimal) error {
	if !status.Terminal() {
		return fmt.Errorf("postgres: close binary order %s: %w: status %s", id, domain.ErrInvalidOrder, status)
	}
	const query = `
		UPDATE binary_orders
		SET status = $2, close_price = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`

	tag, err := s.q.Exec(ctx, query, id, string(status), closePrice.String())
	if err != nil {
		return fmt.Errorf("postgres: close binary order %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM binary_orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: close binary order %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrOrderClosed
}

// ListPending returns every PENDING order, earliest expiry first.
func (s *BinaryOrderStore) ListPending(ctx context.Context) ([]domain.BinaryOrder, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+binaryOrderCols+` FROM binary_orders WHERE status = 'PENDING' ORDER BY closed_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending binary orders: %w", err)
	}
	orders, err := collectBinaryOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan pending binary orders: %w", err)
	}
	return orders, nil
}

// ListByUser returns a user's orders, newest first.
func (s *BinaryOrderStore) ListByUser(ctx context.Context, userID string, filter domain.OrderFilter) ([]domain.BinaryOrder, error) {
	query := `SELECT ` + binaryOrderCols + ` FROM binary_orders WHERE user_id = $1`
	args := []any{userID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query, args = pageClause(query, args, filter.ListOpts, "created_at DESC")

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list binary orders for %s: %w", userID, err)
	}
	orders, err := collectBinaryOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan binary orders for %s: %w", userID, err)
	}
	return orders, nil
}

// ListClosedBetween returns terminal orders whose expiry lies in [from, to).
func (s *BinaryOrderStore) ListClosedBetween(ctx context.Context, from, to time.Time) ([]domain.BinaryOrder, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+binaryOrderCols+` FROM binary_orders
		 WHERE status <> 'PENDING' AND closed_at >= $1 AND closed_at < $2
		 ORDER BY closed_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed binary orders: %w", err)
	}
	orders, err := collectBinaryOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed binary orders: %w", err)
	}
	return orders, nil
}
