package s3_test

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-registry/pkg/registry"
	s3storage "github.com/tendant/simple-registry/pkg/registry/storage/s3"
)

func TestNew_RequiresBucket(t *testing.T) {
	_, err := s3storage.New(s3storage.Config{})
	assert.Error(t, err)
}

// TestS3Backend runs against a real S3-compatible endpoint, e.g. MinIO:
//
//	TEST_S3_ENDPOINT=http://localhost:9000 go test ./pkg/registry/storage/s3
func TestS3Backend(t *testing.T) {
	endpoint := os.Getenv("TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_S3_ENDPOINT not set")
	}

	backend, err := s3storage.New(s3storage.Config{
		Endpoint:               endpoint,
		Bucket:                 "registry-test",
		Prefix:                 "tarballs",
		AccessKeyID:            envOr("TEST_S3_ACCESS_KEY", "minioadmin"),
		SecretAccessKey:        envOr("TEST_S3_SECRET_KEY", "minioadmin"),
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	key := "@scope/pkg/-/pkg-1.0.0.tgz"

	require.NoError(t, backend.Upload(ctx, key, strings.NewReader("tarball")))

	reader, err := backend.Download(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	reader.Close()
	require.NoError(t, err)
	assert.Equal(t, "tarball", string(data))

	require.NoError(t, backend.Delete(ctx, key))
	assert.ErrorIs(t, backend.Delete(ctx, key), registry.ErrBlobNotFound)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
