package registry

// AuthorizeUnpublish decides whether identity may unpublish the named
// package. A nil identity is ErrUnauthorized; any identity without the admin
// role is ErrForbidden, including the package's own publisher. It does not
// consult the repository, so a denial reveals nothing about existence.
func AuthorizeUnpublish(identity *Identity, name string) error {
	if identity == nil {
		return ErrUnauthorized
	}
	if !identity.IsAdmin {
		return ErrForbidden
	}
	return nil
}

// AuthorizePublish requires an authenticated identity.
func AuthorizePublish(identity *Identity, name string) error {
	if identity == nil {
		return ErrUnauthorized
	}
	return nil
}
