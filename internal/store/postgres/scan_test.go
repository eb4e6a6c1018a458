package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/bo?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "bo"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestPageClause(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args := pageClause("SELECT 1 FROM t WHERE user_id = $1", []any{"u1"},
		domain.ListOpts{Since: &since, Limit: 10, Offset: 20}, "created_at DESC")

	assert.Equal(t, "SELECT 1 FROM t WHERE user_id = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4", q)
	require.Len(t, args, 4)
	assert.Equal(t, 10, args[2])
	assert.Equal(t, 20, args[3])
}

func TestParseDecimal(t *testing.T) {
	d, err := parseDecimal("balance", "1043.500000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1043.5", d.String())

	_, err = parseDecimal("balance", "abc")
	assert.ErrorContains(t, err, "balance")
}

func TestMigrationsEmbedded(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/001_init.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS binary_orders")
}
