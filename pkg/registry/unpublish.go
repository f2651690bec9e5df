package registry

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Unpublish authorizes the caller, erases every version record of name and
// then, when the tarball policy allows it, deletes the tarballs. Only the
// authorization, existence and metadata steps can fail the call; tarball
// failures are logged and listed in the outcome.
func (s *service) Unpublish(ctx context.Context, identity *Identity, name string) (*UnpublishOutcome, error) {
	if err := AuthorizeUnpublish(identity, name); err != nil {
		return nil, err
	}

	// Captured before the erase: the repository returns nothing afterwards.
	versions, err := s.repository.ListVersionsByName(ctx, name)
	if err != nil {
		return nil, &PackageError{Name: name, Op: "unpublish", Err: err}
	}
	if len(versions) == 0 {
		return nil, &PackageError{Name: name, Op: "unpublish", Err: ErrPackageNotFound}
	}

	// Once the erase starts it runs to completion regardless of the caller.
	ctx = context.WithoutCancel(ctx)

	outcome := &UnpublishOutcome{Name: name, VersionsRemoved: len(versions)}
	if err := s.repository.RemoveAllVersions(ctx, name); err != nil {
		if !errors.Is(err, ErrPackageNotFound) {
			s.logger.ErrorContext(ctx, "failed to remove package versions", "package", name, "error", err)
			return nil, &PackageError{Name: name, Op: "unpublish", Err: fmt.Errorf("%w: %w", ErrMetadataFailure, err)}
		}
		// Someone else erased it between our list and our delete. The winner
		// owns the tarballs; the same keys may already belong to a republish.
		s.logger.InfoContext(ctx, "package already removed", "package", name, "by", identity.Name)
		return &UnpublishOutcome{Name: name, MetadataDeleted: true}, nil
	}
	outcome.MetadataDeleted = true

	if s.removeTarball() {
		s.cleanupTarballs(ctx, outcome, versions)
	}

	if s.eventSink != nil {
		if err := s.eventSink.PackageUnpublished(ctx, outcome); err != nil {
			s.logger.WarnContext(ctx, "event sink failed", "event", "unpublished", "package", name, "error", err)
		}
	}

	return outcome, nil
}

type cleanupResult struct {
	attempted bool
	err       error
}

// cleanupTarballs deletes the tarball of every listed version. Each deletion
// is isolated: a failure is recorded and never cancels the others.
func (s *service) cleanupTarballs(ctx context.Context, outcome *UnpublishOutcome, versions []*Version) {
	outcome.BlobCleanupAttempted = true

	results := make([]cleanupResult, len(versions))
	var g errgroup.Group
	g.SetLimit(s.cleanupConcurrency)
	for i, v := range versions {
		key, ok := v.BlobKey()
		if !ok {
			continue
		}
		g.Go(func() error {
			results[i] = cleanupResult{attempted: true, err: s.blobStore.Delete(ctx, key)}
			return nil
		})
	}
	_ = g.Wait()

	for i, v := range versions {
		res := results[i]
		switch {
		case !res.attempted, errors.Is(res.err, ErrBlobNotFound):
			outcome.BlobsSkipped++
		case res.err == nil:
			outcome.BlobsRemoved++
		default:
			failure := &CleanupFailure{Name: v.Name, Version: v.Version, Key: v.Dist.Key, Err: res.err}
			outcome.BlobCleanupErrors = append(outcome.BlobCleanupErrors, failure)
			s.logger.WarnContext(ctx, "failed to remove tarball",
				"package", v.Name,
				"version", v.Version,
				"key", v.Dist.Key,
				"error", res.err)
		}
	}
}
