package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-registry/pkg/registry"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements registry.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return registry.ErrVersionExists
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (r *Repository) ListVersionsByName(ctx context.Context, name string) ([]*registry.Version, error) {
	query := `
		SELECT id, name, version, publisher, dist_key, dist_tarball,
		       dist_shasum, dist_size, created_at
		FROM package_versions WHERE name = $1
		ORDER BY created_at, version`

	rows, err := r.db.Query(ctx, query, name)
	if err != nil {
		return nil, r.handlePostgresError("list versions", err)
	}
	defer rows.Close()

	var versions []*registry.Version
	for rows.Next() {
		var v registry.Version
		var key *string
		if err := rows.Scan(
			&v.ID, &v.Name, &v.Version, &v.Publisher, &key, &v.Dist.Tarball,
			&v.Dist.Shasum, &v.Dist.Size, &v.CreatedAt); err != nil {
			return nil, r.handlePostgresError("scan version", err)
		}
		if key != nil {
			v.Dist.Key = *key
		}
		versions = append(versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, r.handlePostgresError("list versions", err)
	}

	return versions, nil
}

// RemoveAllVersions deletes every row of the package in a single statement,
// so readers observe either all versions or none.
func (r *Repository) RemoveAllVersions(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM package_versions WHERE name = $1`, name)
	if err != nil {
		return r.handlePostgresError("remove versions", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrPackageNotFound
	}
	return nil
}

func (r *Repository) CreateVersion(ctx context.Context, version *registry.Version) error {
	query := `
		INSERT INTO package_versions (
			id, name, version, publisher, dist_key, dist_tarball,
			dist_shasum, dist_size, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	var key *string
	if k, ok := version.BlobKey(); ok {
		key = &k
	}

	_, err := r.db.Exec(ctx, query,
		version.ID, version.Name, version.Version, version.Publisher, key,
		version.Dist.Tarball, version.Dist.Shasum, version.Dist.Size, version.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create version", err)
	}
	return nil
}
