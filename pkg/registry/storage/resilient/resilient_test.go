package resilient_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	circuit "github.com/rubyist/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-registry/pkg/registry"
	"github.com/tendant/simple-registry/pkg/registry/storage/memory"
	"github.com/tendant/simple-registry/pkg/registry/storage/resilient"
)

// stubStore fails or blocks on Delete as configured
type stubStore struct {
	deleteErr error
	block     bool
	calls     atomic.Int32
}

func (s *stubStore) Upload(ctx context.Context, objectKey string, reader io.Reader) error {
	return nil
}

func (s *stubStore) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (s *stubStore) Delete(ctx context.Context, objectKey string) error {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.deleteErr
}

func TestStore_PassesThrough(t *testing.T) {
	backend := memory.New()
	store := resilient.New(backend, resilient.Config{Name: "memory"})
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "pkg/-/pkg-1.0.0.tgz", strings.NewReader("data")))
	rc, err := store.Download(ctx, "pkg/-/pkg-1.0.0.tgz")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "data", string(data))

	require.NoError(t, store.Delete(ctx, "pkg/-/pkg-1.0.0.tgz"))
	assert.False(t, backend.Exists("pkg/-/pkg-1.0.0.tgz"))
}

func TestStore_NotFoundDoesNotTrip(t *testing.T) {
	stub := &stubStore{deleteErr: registry.ErrBlobNotFound}
	store := resilient.New(stub, resilient.Config{Threshold: 2})

	for i := 0; i < 5; i++ {
		err := store.Delete(context.Background(), "missing")
		assert.ErrorIs(t, err, registry.ErrBlobNotFound)
	}
	assert.Equal(t, int32(5), stub.calls.Load())
	assert.Equal(t, "closed", store.State())
}

func TestStore_BreakerOpensAfterThreshold(t *testing.T) {
	stub := &stubStore{deleteErr: errors.New("backend down")}
	store := resilient.New(stub, resilient.Config{Name: "s3", Threshold: 2, InitialBackoff: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := store.Delete(ctx, "key")
		var storageErr *registry.StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, "s3", storageErr.Backend)
		assert.Equal(t, "delete", storageErr.Op)
	}
	assert.Equal(t, "open", store.State())

	err := store.Delete(ctx, "key")
	assert.ErrorIs(t, err, circuit.ErrBreakerOpen)
	assert.Equal(t, int32(2), stub.calls.Load())
}

func TestStore_TimeoutIsAnOrdinaryError(t *testing.T) {
	stub := &stubStore{block: true}
	store := resilient.New(stub, resilient.Config{Timeout: 20 * time.Millisecond})

	start := time.Now()
	err := store.Delete(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
