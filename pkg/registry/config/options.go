package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithRegistryURL sets the public base URL
func WithRegistryURL(url string) Option {
	return func(c *ServerConfig) error {
		c.RegistryURL = url
		return nil
	}
}

// WithDatabase configures the metadata repository. For sqlite, url is the
// database file path.
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case "memory":
		case "postgres":
			if url == "" {
				return fmt.Errorf("database URL is required for postgres")
			}
			c.DatabaseURL = url
		case "sqlite":
			if url == "" {
				return fmt.Errorf("database path is required for sqlite")
			}
			c.SQLitePath = url
		default:
			return fmt.Errorf("database type must be 'memory', 'postgres' or 'sqlite', got: %s", dbType)
		}
		c.DatabaseType = dbType
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMemoryStorage keeps tarballs in memory
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageType = "memory"
		return nil
	}
}

// WithFilesystemStorage stores tarballs under baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.StorageType = "fs"
		c.StorageFSDir = baseDir
		return nil
	}
}

// WithS3Storage stores tarballs in S3
func WithS3Storage(s3 S3Config) Option {
	return func(c *ServerConfig) error {
		if s3.Bucket == "" {
			return fmt.Errorf("s3 bucket cannot be empty")
		}
		if s3.Region == "" {
			s3.Region = c.S3.Region
		}
		c.StorageType = "s3"
		c.S3 = s3
		return nil
	}
}

// WithRemoveTarballOnUnpublish sets whether unpublish deletes tarballs
func WithRemoveTarballOnUnpublish(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.RemoveTarballOnUnpublish = enabled
		return nil
	}
}

// WithCleanupConcurrency bounds parallel tarball deletions
func WithCleanupConcurrency(n int) Option {
	return func(c *ServerConfig) error {
		if n < 1 {
			return fmt.Errorf("cleanup concurrency must be at least 1, got %d", n)
		}
		c.CleanupConcurrency = n
		return nil
	}
}

// WithBlobCallTimeout sets the per-call deadline for blob store calls
func WithBlobCallTimeout(d time.Duration) Option {
	return func(c *ServerConfig) error {
		if d <= 0 {
			return fmt.Errorf("blob call timeout must be positive")
		}
		c.BlobCallTimeout = d
		return nil
	}
}

// WithAdmins sets the user names holding the admin role
func WithAdmins(names ...string) Option {
	return func(c *ServerConfig) error {
		c.Admins = append([]string(nil), names...)
		return nil
	}
}

// WithUser registers a user with a bcrypt password hash
func WithUser(name, bcryptHash string) Option {
	return func(c *ServerConfig) error {
		if name == "" || bcryptHash == "" {
			return fmt.Errorf("user name and hash are required")
		}
		if c.Users == nil {
			c.Users = make(map[string]string)
		}
		c.Users[name] = bcryptHash
		return nil
	}
}

// WithJWTSecret enables Bearer tokens signed with secret
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithEventLogging toggles the logging event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}
