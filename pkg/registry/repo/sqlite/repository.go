// Package sqlite is a single-file metadata repository for small
// installations, backed by mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/tendant/simple-registry/pkg/registry"
	"github.com/tendant/simple-registry/pkg/registry/repo/sqlite/migrations"
)

// Repository implements registry.Repository on SQLite
type Repository struct {
	db *sql.DB
}

// Open opens the database at path (":memory:" for a private in-memory
// database) and applies the migrations.
func Open(ctx context.Context, path string) (*Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers; one connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// New wraps an open, migrated database.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (r *Repository) ListVersionsByName(ctx context.Context, name string) ([]*registry.Version, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, version, publisher, dist_key, dist_tarball,
		       dist_shasum, dist_size, created_at
		FROM package_versions WHERE name = ?
		ORDER BY created_at, version`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*registry.Version
	for rows.Next() {
		var v registry.Version
		var key sql.NullString
		var created int64
		if err := rows.Scan(&v.ID, &v.Name, &v.Version, &v.Publisher, &key,
			&v.Dist.Tarball, &v.Dist.Shasum, &v.Dist.Size, &created); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		v.Dist.Key = key.String
		v.CreatedAt = time.Unix(0, created).UTC()
		versions = append(versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return versions, nil
}

func (r *Repository) RemoveAllVersions(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM package_versions WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to remove versions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove versions: %w", err)
	}
	if n == 0 {
		return registry.ErrPackageNotFound
	}
	return nil
}

func (r *Repository) CreateVersion(ctx context.Context, version *registry.Version) error {
	var key sql.NullString
	if k, ok := version.BlobKey(); ok {
		key = sql.NullString{String: k, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO package_versions (
			id, name, version, publisher, dist_key, dist_tarball,
			dist_shasum, dist_size, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		version.ID.String(), version.Name, version.Version, version.Publisher, key,
		version.Dist.Tarball, version.Dist.Shasum, version.Dist.Size, version.CreatedAt.UnixNano())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return registry.ErrVersionExists
		}
		return fmt.Errorf("failed to create version: %w", err)
	}
	return nil
}
