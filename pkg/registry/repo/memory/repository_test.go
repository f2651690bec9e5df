package memory_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-registry/pkg/registry"
	"github.com/tendant/simple-registry/pkg/registry/repo/memory"
)

func newVersion(name, version string, created time.Time) *registry.Version {
	return &registry.Version{
		ID:        uuid.New(),
		Name:      name,
		Version:   version,
		Publisher: "alice",
		Dist: registry.Dist{
			Key:  registry.TarballKey(name, version),
			Size: 10,
		},
		CreatedAt: created,
	}
}

func TestRepository_CreateAndList(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.CreateVersion(ctx, newVersion("@scope/pkg", "2.0.0", now.Add(time.Minute))))
	require.NoError(t, repo.CreateVersion(ctx, newVersion("@scope/pkg", "1.0.0", now)))
	require.NoError(t, repo.CreateVersion(ctx, newVersion("other", "1.0.0", now)))

	versions, err := repo.ListVersionsByName(ctx, "@scope/pkg")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "1.0.0", versions[0].Version)
	assert.Equal(t, "2.0.0", versions[1].Version)

	t.Run("duplicate version", func(t *testing.T) {
		err := repo.CreateVersion(ctx, newVersion("@scope/pkg", "1.0.0", now))
		assert.ErrorIs(t, err, registry.ErrVersionExists)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		versions[0].Dist.Key = ""
		again, err := repo.ListVersionsByName(ctx, "@scope/pkg")
		require.NoError(t, err)
		assert.NotEmpty(t, again[0].Dist.Key)
	})

	t.Run("unknown package lists empty", func(t *testing.T) {
		versions, err := repo.ListVersionsByName(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, versions)
	})
}

func TestRepository_RemoveAllVersions(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.CreateVersion(ctx, newVersion("pkg", "1.0.0", now)))
	require.NoError(t, repo.CreateVersion(ctx, newVersion("pkg", "1.1.0", now)))
	require.NoError(t, repo.CreateVersion(ctx, newVersion("keep", "1.0.0", now)))

	require.NoError(t, repo.RemoveAllVersions(ctx, "pkg"))

	versions, err := repo.ListVersionsByName(ctx, "pkg")
	require.NoError(t, err)
	assert.Empty(t, versions)

	kept, err := repo.ListVersionsByName(ctx, "keep")
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	err = repo.RemoveAllVersions(ctx, "pkg")
	assert.ErrorIs(t, err, registry.ErrPackageNotFound)
}

func TestRepository_ConcurrentRemove(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.CreateVersion(ctx, newVersion("pkg", fmt.Sprintf("1.0.%d", i), time.Now())))
	}

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.RemoveAllVersions(ctx, "pkg")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, registry.ErrPackageNotFound)
	}
	assert.Equal(t, 1, succeeded)
}
