package registry_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-registry/pkg/registry"
	"github.com/tendant/simple-registry/pkg/registry/repo/memory"
	memorystorage "github.com/tendant/simple-registry/pkg/registry/storage/memory"
)

var (
	admin = &registry.Identity{Name: "admin", IsAdmin: true}
	user  = &registry.Identity{Name: "user"}
)

// spyStore records every call that reaches the blob store and can be told
// to fail deletions.
type spyStore struct {
	*memorystorage.Backend

	mu        sync.Mutex
	calls     []string
	deleteErr error
}

func newSpyStore() *spyStore {
	return &spyStore{Backend: memorystorage.New()}
}

func (s *spyStore) record(op, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op+" "+key)
}

func (s *spyStore) Upload(ctx context.Context, key string, r io.Reader) error {
	s.record("upload", key)
	return s.Backend.Upload(ctx, key, r)
}

func (s *spyStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	s.record("download", key)
	return s.Backend.Download(ctx, key)
}

func (s *spyStore) Delete(ctx context.Context, key string) error {
	s.record("delete", key)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Backend.Delete(ctx, key)
}

func (s *spyStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *spyStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// failingRepo delegates to a real repository but fails RemoveAllVersions.
type failingRepo struct {
	registry.Repository
	removeErr error
}

func (r *failingRepo) RemoveAllVersions(ctx context.Context, name string) error {
	return r.removeErr
}

var errStoreDown = errors.New("store down")

type fixture struct {
	svc   registry.Service
	repo  registry.Repository
	store *spyStore
}

func newFixture(t *testing.T, opts ...registry.Option) *fixture {
	t.Helper()
	f := &fixture{repo: memory.New(), store: newSpyStore()}
	f.svc = f.build(t, f.repo, opts...)
	return f
}

func (f *fixture) build(t *testing.T, repo registry.Repository, opts ...registry.Option) registry.Service {
	t.Helper()
	svc, err := registry.New(append([]registry.Option{
		registry.WithRepository(repo),
		registry.WithBlobStore(f.store),
	}, opts...)...)
	require.NoError(t, err)
	return svc
}

func (f *fixture) publish(t *testing.T, name string, versions ...string) {
	t.Helper()
	for _, v := range versions {
		_, err := f.svc.Publish(context.Background(), user, registry.PublishRequest{
			Name:    name,
			Version: v,
			Tarball: []byte("tarball " + name + "@" + v),
		})
		require.NoError(t, err)
	}
	f.store.reset()
}

// addKeyless stores a version record that never had a tarball.
func (f *fixture) addKeyless(t *testing.T, name, version string) {
	t.Helper()
	require.NoError(t, f.repo.CreateVersion(context.Background(), &registry.Version{
		ID:        uuid.New(),
		Name:      name,
		Version:   version,
		Publisher: "user",
		CreatedAt: time.Now().UTC(),
	}))
}
