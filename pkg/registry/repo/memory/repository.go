package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tendant/simple-registry/pkg/registry"
)

// Repository implements registry.Repository using in-memory storage
type Repository struct {
	mu       sync.RWMutex
	versions map[string][]*registry.Version // package name -> versions
}

// New creates a new in-memory repository
func New() registry.Repository {
	return &Repository{
		versions: make(map[string][]*registry.Version),
	}
}

func (r *Repository) ListVersionsByName(ctx context.Context, name string) ([]*registry.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.versions[name]
	result := make([]*registry.Version, 0, len(stored))
	for _, v := range stored {
		// Return a copy to prevent external modifications
		versionCopy := *v
		result = append(result, &versionCopy)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

func (r *Repository) RemoveAllVersions(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.versions[name]) == 0 {
		return registry.ErrPackageNotFound
	}

	delete(r.versions, name)
	return nil
}

func (r *Repository) CreateVersion(ctx context.Context, version *registry.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range r.versions[version.Name] {
		if v.Version == version.Version {
			return registry.ErrVersionExists
		}
	}

	// Create a copy to avoid external modifications
	versionCopy := *version
	r.versions[version.Name] = append(r.versions[version.Name], &versionCopy)

	return nil
}
