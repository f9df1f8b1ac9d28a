package postgres_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pages/pkg/simplepages/repo/postgres"
	"github.com/tendant/simple-pages/pkg/simplepages/repotest"
)

// newTestPool connects to TEST_DATABASE_URL inside a throwaway schema.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	schema := "simplepages_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")

	admin, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err)
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", pgx.Identifier{schema}.Sanitize()))
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.EnsureSchema(ctx, pool))
	// Applying twice must be harmless.
	require.NoError(t, postgres.EnsureSchema(ctx, pool))
	return pool
}

func TestPostgresRepository_Conformance(t *testing.T) {
	pool := newTestPool(t)

	repotest.Run(t, func(t *testing.T) repotest.Backend {
		_, err := pool.Exec(context.Background(),
			"TRUNCATE placements, content_wrappers, pages, videos, audios, texts")
		require.NoError(t, err)
		return repotest.Backend{
			Repository: postgres.NewWithPool(pool),
			Stores:     postgres.NewKindStores(pool),
		}
	})
}
