package registry

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrUnauthorized indicates the caller is not authenticated
	ErrUnauthorized = errors.New("login first")

	// ErrForbidden indicates the caller lacks the role for the operation
	ErrForbidden = errors.New("only administrators can unpublish")

	// ErrPackageNotFound indicates no version of a package exists
	ErrPackageNotFound = errors.New("package not found")

	// ErrVersionExists indicates a publish targeted an existing version
	ErrVersionExists = errors.New("version already exists")

	// ErrInvalidPackage indicates a malformed name, version or tarball
	ErrInvalidPackage = errors.New("invalid package")

	// ErrMetadataFailure indicates the metadata repository could not erase a package
	ErrMetadataFailure = errors.New("metadata erase failed")

	// ErrBlobNotFound indicates the blob store has no object under a key
	ErrBlobNotFound = errors.New("object not found")
)

// PackageError represents an error related to a package operation
type PackageError struct {
	Name string
	Op   string
	Err  error
}

func (e *PackageError) Error() string {
	return fmt.Sprintf("package operation %s failed for %s: %v", e.Op, e.Name, e.Err)
}

func (e *PackageError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// CleanupFailure records a tarball that could not be removed after its
// version records were erased.
type CleanupFailure struct {
	Name    string
	Version string
	Key     string
	Err     error
}

func (e *CleanupFailure) Error() string {
	return fmt.Sprintf("remove tarball %s of %s@%s: %v", e.Key, e.Name, e.Version, e.Err)
}

func (e *CleanupFailure) Unwrap() error {
	return e.Err
}
