package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-registry/pkg/registry"
	"github.com/tendant/simple-registry/pkg/registry/repo/postgres"
)

// newTestPool connects to TEST_DATABASE_URL and applies the migrations.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err, "Failed to connect to test database")
	require.NoError(t, pool.Ping(ctx), "Failed to ping test database")
	require.NoError(t, postgres.Migrate(ctx, pool, ""))

	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DELETE FROM package_versions WHERE name LIKE '@registry-test/%'")
		pool.Close()
	})
	return pool
}

func TestRepository(t *testing.T) {
	pool := newTestPool(t)
	repo := postgres.NewWithPool(pool)
	ctx := context.Background()
	name := "@registry-test/pkg-" + uuid.NewString()[:8]
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := &registry.Version{
		ID: uuid.New(), Name: name, Version: "1.0.0", Publisher: "alice",
		Dist:      registry.Dist{Key: registry.TarballKey(name, "1.0.0"), Shasum: "abc", Size: 3},
		CreatedAt: now,
	}
	keyless := &registry.Version{
		ID: uuid.New(), Name: name, Version: "1.1.0", Publisher: "alice",
		CreatedAt: now.Add(time.Second),
	}
	require.NoError(t, repo.CreateVersion(ctx, first))
	require.NoError(t, repo.CreateVersion(ctx, keyless))

	t.Run("duplicate", func(t *testing.T) {
		dup := *first
		dup.ID = uuid.New()
		assert.ErrorIs(t, repo.CreateVersion(ctx, &dup), registry.ErrVersionExists)
	})

	t.Run("list", func(t *testing.T) {
		versions, err := repo.ListVersionsByName(ctx, name)
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, "1.0.0", versions[0].Version)
		assert.Equal(t, first.Dist.Key, versions[0].Dist.Key)
		_, ok := versions[1].BlobKey()
		assert.False(t, ok)
	})

	t.Run("remove all", func(t *testing.T) {
		require.NoError(t, repo.RemoveAllVersions(ctx, name))
		versions, err := repo.ListVersionsByName(ctx, name)
		require.NoError(t, err)
		assert.Empty(t, versions)
		assert.ErrorIs(t, repo.RemoveAllVersions(ctx, name), registry.ErrPackageNotFound)
	})
}
