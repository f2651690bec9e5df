package registry

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Version is the metadata record of one published version of a package.
type Version struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Publisher string    `json:"publisher"`
	Dist      Dist      `json:"dist"`
	CreatedAt time.Time `json:"created_at"`
}

// Dist describes the tarball of a version.
type Dist struct {
	// Key is the blob store object key. Empty when no tarball was stored.
	Key     string `json:"key,omitempty"`
	Tarball string `json:"tarball"`
	Shasum  string `json:"shasum"`
	Size    int64  `json:"size"`
}

// BlobKey returns the tarball key and whether the version has one.
func (v *Version) BlobKey() (string, bool) {
	if v == nil || v.Dist.Key == "" {
		return "", false
	}
	return v.Dist.Key, true
}

// Package is the read view of every version published under one name.
type Package struct {
	Name     string               `json:"name"`
	Versions map[string]*Version  `json:"versions"`
	DistTags map[string]string    `json:"dist-tags"`
	Time     map[string]time.Time `json:"time"`
}

// Scope returns the "@scope" prefix of a scoped name, or "".
func Scope(name string) string {
	if !strings.HasPrefix(name, "@") {
		return ""
	}
	if i := strings.Index(name, "/"); i > 0 {
		return name[:i]
	}
	return ""
}

// BaseName strips the scope from a package name.
func BaseName(name string) string {
	if scope := Scope(name); scope != "" {
		return name[len(scope)+1:]
	}
	return name
}

// Identity is an authenticated actor.
type Identity struct {
	Name    string `json:"name"`
	IsAdmin bool   `json:"is_admin"`
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by WithIdentity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// UnpublishOutcome summarises a completed unpublish.
type UnpublishOutcome struct {
	Name                 string
	VersionsRemoved      int
	MetadataDeleted      bool
	BlobCleanupAttempted bool
	BlobsRemoved         int
	BlobsSkipped         int
	// BlobCleanupErrors follows the order in which the versions were listed.
	BlobCleanupErrors []*CleanupFailure
}

// PublishRequest carries a single version to publish.
type PublishRequest struct {
	Name    string
	Version string
	Tarball []byte
	// TarballURL is the public download URL recorded in Dist.Tarball.
	TarballURL string
}
