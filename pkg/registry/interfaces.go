package registry

import (
	"context"
	"io"
)

// Repository defines the metadata store of version records
type Repository interface {
	// ListVersionsByName returns every version record of a package, oldest
	// first. An empty result means the package does not exist.
	ListVersionsByName(ctx context.Context, name string) ([]*Version, error)

	// RemoveAllVersions deletes every version record of a package as one
	// unit. It returns ErrPackageNotFound when there was nothing to delete.
	RemoveAllVersions(ctx context.Context, name string) error

	// CreateVersion stores a new version record. It returns
	// ErrVersionExists when name and version are already taken.
	CreateVersion(ctx context.Context, version *Version) error
}

// BlobStore defines the interface for tarball storage backends
type BlobStore interface {
	// Upload stores content under objectKey
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// Download opens the content stored under objectKey
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete removes objectKey. It returns ErrBlobNotFound when absent.
	Delete(ctx context.Context, objectKey string) error
}

// EventSink receives lifecycle notifications. Errors are logged by the
// service and never returned to callers.
type EventSink interface {
	PackagePublished(ctx context.Context, version *Version) error
	PackageUnpublished(ctx context.Context, outcome *UnpublishOutcome) error
}

// Service is the registry's public API
type Service interface {
	// Unpublish removes every version of a package. Only administrators may
	// unpublish. Tarball cleanup failures do not fail the call.
	Unpublish(ctx context.Context, identity *Identity, name string) (*UnpublishOutcome, error)

	// GetPackage returns the read view of a package.
	GetPackage(ctx context.Context, name string) (*Package, error)

	// Publish stores one new version and its tarball.
	Publish(ctx context.Context, identity *Identity, req PublishRequest) (*Version, error)

	// DownloadTarball opens the tarball of a package by file name.
	DownloadTarball(ctx context.Context, name, filename string) (io.ReadCloser, error)
}
