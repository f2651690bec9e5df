// Package registry implements the package lifecycle of an npm-style registry
// on top of two independent stores: a metadata Repository holding one record
// per published version and a BlobStore holding the tarballs.
//
// The two stores are not transactional with each other. The metadata view is
// authoritative: Unpublish reports success as soon as every version record
// for a package is gone, and removing the tarballs afterwards is advisory
// cleanup whose failures are logged and recorded but never returned.
//
// Implementations of the repository (memory, Postgres, SQLite) and blob
// store (memory, filesystem, S3) live in subpackages.
package registry
