package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-registry/pkg/registry"
	"github.com/tendant/simple-registry/pkg/registry/repo/sqlite"
)

func openTestRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	v1 := &registry.Version{
		ID: uuid.New(), Name: "@scope/pkg", Version: "1.0.0", Publisher: "alice",
		Dist:      registry.Dist{Key: registry.TarballKey("@scope/pkg", "1.0.0"), Shasum: "abc", Size: 3},
		CreatedAt: now,
	}
	v2 := &registry.Version{
		ID: uuid.New(), Name: "@scope/pkg", Version: "2.0.0", Publisher: "bob",
		CreatedAt: now.Add(time.Minute),
	}
	require.NoError(t, repo.CreateVersion(ctx, v2))
	require.NoError(t, repo.CreateVersion(ctx, v1))

	t.Run("duplicate version", func(t *testing.T) {
		dup := *v1
		dup.ID = uuid.New()
		assert.ErrorIs(t, repo.CreateVersion(ctx, &dup), registry.ErrVersionExists)
	})

	t.Run("list is ordered and round-trips", func(t *testing.T) {
		versions, err := repo.ListVersionsByName(ctx, "@scope/pkg")
		require.NoError(t, err)
		require.Len(t, versions, 2)

		assert.Equal(t, v1.ID, versions[0].ID)
		assert.Equal(t, v1.Dist.Key, versions[0].Dist.Key)
		assert.Equal(t, int64(3), versions[0].Dist.Size)
		assert.True(t, v1.CreatedAt.Equal(versions[0].CreatedAt))

		_, ok := versions[1].BlobKey()
		assert.False(t, ok)
	})

	t.Run("remove all", func(t *testing.T) {
		require.NoError(t, repo.RemoveAllVersions(ctx, "@scope/pkg"))

		versions, err := repo.ListVersionsByName(ctx, "@scope/pkg")
		require.NoError(t, err)
		assert.Empty(t, versions)

		assert.ErrorIs(t, repo.RemoveAllVersions(ctx, "@scope/pkg"), registry.ErrPackageNotFound)
	})
}
