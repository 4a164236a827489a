package postgres_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/mediastore"
	"github.com/tendant/simple-media/pkg/mediastore/repo/postgres"
	"github.com/tendant/simple-media/pkg/mediastore/repo/repotest"
)

var _ mediastore.Repository = (*postgres.Repository)(nil)

// setupTestPool connects to TEST_DATABASE_URL and applies migrations.
// Tests are skipped when the variable is not set.
func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping postgres integration tests")
	}

	require.NoError(t, postgres.Migrate(dsn, slog.Default()))

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestRepository(t *testing.T) {
	pool := setupTestPool(t)
	repotest.Run(t, func(t *testing.T) mediastore.Repository {
		return postgres.NewWithPool(pool)
	})
}

func TestRepository_ThumbnailIndex(t *testing.T) {
	pool := setupTestPool(t)
	ctx := context.Background()
	repo := postgres.NewWithPool(pool)
	owner := repotest.OwnerID()

	asset := repotest.NewAsset(mediastore.MediaKindImage)
	require.NoError(t, repo.CreateAsset(ctx, asset))
	first, err := repo.AppendLink(ctx, owner, asset.ID)
	require.NoError(t, err)
	second, err := repo.AppendLink(ctx, owner, asset.ID)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `UPDATE ownership_link SET display_order = 0 WHERE id = $1`, second.ID)
	assert.Error(t, err, "a second order-0 link must violate the partial unique index")

	require.NoError(t, repo.SetThumbnail(ctx, owner, second.ID))
	got, err := repo.GetLink(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, mediastore.DemotedOrder, got.DisplayOrder)
}

func TestMigrate_Idempotent(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping postgres integration tests")
	}
	require.NoError(t, postgres.Migrate(dsn, slog.Default()))
	require.NoError(t, postgres.Migrate(dsn, slog.Default()))
}
