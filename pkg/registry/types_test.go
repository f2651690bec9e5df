package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tendant/simple-registry/pkg/registry"
)

func TestNames(t *testing.T) {
	tests := []struct {
		name, scope, base string
	}{
		{"pkg", "", "pkg"},
		{"@scope/pkg", "@scope", "pkg"},
		{"@broken", "", "@broken"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.scope, registry.Scope(tt.name), tt.name)
		assert.Equal(t, tt.base, registry.BaseName(tt.name), tt.name)
	}

	assert.Equal(t, "@scope/pkg/-/pkg-1.0.0.tgz", registry.TarballKey("@scope/pkg", "1.0.0"))
	assert.NoError(t, registry.ValidateName("@scope/pkg-a"))
	assert.ErrorIs(t, registry.ValidateName("../etc"), registry.ErrInvalidPackage)
}

func TestBlobKey(t *testing.T) {
	var missing *registry.Version
	_, ok := missing.BlobKey()
	assert.False(t, ok)

	_, ok = (&registry.Version{}).BlobKey()
	assert.False(t, ok)

	key, ok := (&registry.Version{Dist: registry.Dist{Key: "k"}}).BlobKey()
	assert.True(t, ok)
	assert.Equal(t, "k", key)
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, registry.IdentityFromContext(ctx))

	ctx = registry.WithIdentity(ctx, admin)
	assert.Equal(t, admin, registry.IdentityFromContext(ctx))
}

func TestAuthorizeUnpublish(t *testing.T) {
	assert.ErrorIs(t, registry.AuthorizeUnpublish(nil, "pkg"), registry.ErrUnauthorized)
	assert.ErrorIs(t, registry.AuthorizeUnpublish(user, "pkg"), registry.ErrForbidden)
	assert.NoError(t, registry.AuthorizeUnpublish(admin, "pkg"))

	assert.ErrorIs(t, registry.AuthorizePublish(nil, "pkg"), registry.ErrUnauthorized)
	assert.NoError(t, registry.AuthorizePublish(user, "pkg"))
}
