package postgres

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// scanner is implemented by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// parseDecimal converts a NUMERIC column selected as ::text.
func parseDecimal(col, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", col, s, err)
	}
	return d, nil
}

// pageClause appends time bounds, ordering and pagination to query and
// returns the extended query and args.
func pageClause(query string, args []any, opts domain.ListOpts, orderBy string) (string, []any) {
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY " + orderBy
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}
