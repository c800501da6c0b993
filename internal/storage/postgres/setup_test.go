package postgres_test

import (
	"context"
	"testing"

	"github.com/dropkit/checkout/internal/storage/postgres"
	"github.com/dropkit/checkout/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

func setupDB(t *testing.T) (*postgres.DB, *pgxpool.Pool) {
	t.Helper()
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)
	return postgres.NewDB(pool), pool
}
