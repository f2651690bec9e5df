package registry

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"time"

	"github.com/google/uuid"
)

const maxNameLength = 214

var (
	namePattern    = regexp.MustCompile(`^(@[a-z0-9][a-z0-9._~-]*/)?[a-z0-9][a-z0-9._~-]*$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)
)

// service implements the Service interface
type service struct {
	repository         Repository
	blobStore          BlobStore
	eventSink          EventSink
	logger             *slog.Logger
	removeTarball      func() bool
	cleanupConcurrency int
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the metadata repository
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the tarball store
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRemoveTarballOnUnpublish fixes whether Unpublish deletes tarballs.
func WithRemoveTarballOnUnpublish(enabled bool) Option {
	return WithTarballPolicy(func() bool { return enabled })
}

// WithTarballPolicy sets a function consulted once per Unpublish to decide
// whether tarballs are deleted. It lets the setting change at runtime.
func WithTarballPolicy(policy func() bool) Option {
	return func(s *service) {
		if policy != nil {
			s.removeTarball = policy
		}
	}
}

// WithCleanupConcurrency bounds the number of concurrent tarball deletions.
func WithCleanupConcurrency(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.cleanupConcurrency = n
		}
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		logger:             slog.Default(),
		removeTarball:      func() bool { return true },
		cleanupConcurrency: 4,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}

	return s, nil
}

// TarballKey returns the blob key of a version's tarball, e.g.
// "@scope/name/-/name-1.0.0.tgz".
func TarballKey(name, version string) string {
	return name + "/-/" + TarballFilename(name, version)
}

// TarballFilename returns the npm file name of a version's tarball.
func TarballFilename(name, version string) string {
	return BaseName(name) + "-" + version + ".tgz"
}

// ValidateName reports whether name is an acceptable package name.
func ValidateName(name string) error {
	if name == "" || len(name) > maxNameLength || !namePattern.MatchString(name) {
		return fmt.Errorf("%w: name %q", ErrInvalidPackage, name)
	}
	return nil
}

func (s *service) GetPackage(ctx context.Context, name string) (*Package, error) {
	versions, err := s.repository.ListVersionsByName(ctx, name)
	if err != nil {
		return nil, &PackageError{Name: name, Op: "get", Err: err}
	}
	if len(versions) == 0 {
		return nil, &PackageError{Name: name, Op: "get", Err: ErrPackageNotFound}
	}

	pkg := &Package{
		Name:     name,
		Versions: make(map[string]*Version, len(versions)),
		DistTags: make(map[string]string, 1),
		Time:     make(map[string]time.Time, len(versions)+2),
	}
	var latest *Version
	for _, v := range versions {
		pkg.Versions[v.Version] = v
		pkg.Time[v.Version] = v.CreatedAt
		if latest == nil || !v.CreatedAt.Before(latest.CreatedAt) {
			latest = v
		}
	}
	pkg.DistTags["latest"] = latest.Version
	pkg.Time["created"] = versions[0].CreatedAt
	pkg.Time["modified"] = latest.CreatedAt

	return pkg, nil
}

func (s *service) Publish(ctx context.Context, identity *Identity, req PublishRequest) (*Version, error) {
	if err := AuthorizePublish(identity, req.Name); err != nil {
		return nil, err
	}
	if err := ValidateName(req.Name); err != nil {
		return nil, err
	}
	if !versionPattern.MatchString(req.Version) {
		return nil, fmt.Errorf("%w: version %q", ErrInvalidPackage, req.Version)
	}
	if len(req.Tarball) == 0 {
		return nil, fmt.Errorf("%w: empty tarball", ErrInvalidPackage)
	}

	existing, err := s.repository.ListVersionsByName(ctx, req.Name)
	if err != nil {
		return nil, &PackageError{Name: req.Name, Op: "publish", Err: err}
	}
	for _, v := range existing {
		if v.Version == req.Version {
			return nil, &PackageError{Name: req.Name, Op: "publish", Err: ErrVersionExists}
		}
	}

	key := TarballKey(req.Name, req.Version)
	if err := s.blobStore.Upload(ctx, key, bytes.NewReader(req.Tarball)); err != nil {
		return nil, &PackageError{Name: req.Name, Op: "publish", Err: err}
	}

	sum := sha1.Sum(req.Tarball)
	version := &Version{
		ID:        uuid.New(),
		Name:      req.Name,
		Version:   req.Version,
		Publisher: identity.Name,
		Dist: Dist{
			Key:     key,
			Tarball: req.TarballURL,
			Shasum:  hex.EncodeToString(sum[:]),
			Size:    int64(len(req.Tarball)),
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repository.CreateVersion(ctx, version); err != nil {
		// A concurrent publish of the same version owns the blob now.
		if !errors.Is(err, ErrVersionExists) {
			if derr := s.blobStore.Delete(ctx, key); derr != nil {
				s.logger.WarnContext(ctx, "failed to remove orphaned tarball", "package", req.Name, "key", key, "error", derr)
			}
		}
		return nil, &PackageError{Name: req.Name, Op: "publish", Err: err}
	}

	if s.eventSink != nil {
		if err := s.eventSink.PackagePublished(ctx, version); err != nil {
			s.logger.WarnContext(ctx, "event sink failed", "event", "published", "package", req.Name, "error", err)
		}
	}

	return version, nil
}

func (s *service) DownloadTarball(ctx context.Context, name, filename string) (io.ReadCloser, error) {
	versions, err := s.repository.ListVersionsByName(ctx, name)
	if err != nil {
		return nil, &PackageError{Name: name, Op: "download", Err: err}
	}
	for _, v := range versions {
		key, ok := v.BlobKey()
		if !ok || path.Base(key) != filename {
			continue
		}
		reader, err := s.blobStore.Download(ctx, key)
		if errors.Is(err, ErrBlobNotFound) {
			break
		}
		if err != nil {
			return nil, &PackageError{Name: name, Op: "download", Err: err}
		}
		return reader, nil
	}
	return nil, &PackageError{Name: name, Op: "download", Err: ErrPackageNotFound}
}
